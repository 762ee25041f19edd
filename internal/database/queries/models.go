package queries

import "database/sql"

type Snapshot struct {
	DomainedPath string
	Ino          int64
	Mtime        int64
	FileType     string
	Sha1         string
	Size         int64
}

// Resource is one row of the resources table. Every metadata column is a
// nullable JSON blob.
type Resource struct {
	Sha1              string
	Name              sql.NullString
	Forge             sql.NullString
	Neoforge          sql.NullString
	Fabric            sql.NullString
	Quilt             sql.NullString
	Liteloader        sql.NullString
	Resourcepack      sql.NullString
	Shaderpack        sql.NullString
	Save              sql.NullString
	Modpack           sql.NullString
	CurseforgeModpack sql.NullString
	McbbsModpack      sql.NullString
	MmcModpack        sql.NullString
	ModrinthModpack   sql.NullString
	Github            sql.NullString
	Gitlab            sql.NullString
	Curseforge        sql.NullString
	Modrinth          sql.NullString
	Instance          sql.NullString
}

// resourceColumns lists the resources columns in scan order.
var resourceColumns = []string{
	"sha1", "name",
	"forge", "neoforge", "fabric", "quilt", "liteloader",
	"resourcepack", "shaderpack", "save",
	"modpack", "curseforge_modpack", "mcbbs_modpack", "mmc_modpack", "modrinth_modpack",
	"github", "gitlab", "curseforge", "modrinth", "instance",
}

func (r *Resource) fields() []interface{} {
	return []interface{}{
		&r.Sha1, &r.Name,
		&r.Forge, &r.Neoforge, &r.Fabric, &r.Quilt, &r.Liteloader,
		&r.Resourcepack, &r.Shaderpack, &r.Save,
		&r.Modpack, &r.CurseforgeModpack, &r.McbbsModpack, &r.MmcModpack, &r.ModrinthModpack,
		&r.Github, &r.Gitlab, &r.Curseforge, &r.Modrinth, &r.Instance,
	}
}

func (r *Resource) values() []interface{} {
	fields := r.fields()
	values := make([]interface{}, len(fields))
	values[0] = r.Sha1
	for i := 1; i < len(fields); i++ {
		values[i] = *fields[i].(*sql.NullString)
	}
	return values
}

// Column returns the field backing the named column, or nil.
func (r *Resource) Column(name string) *sql.NullString {
	for i, col := range resourceColumns {
		if col == name && i > 0 {
			return r.fields()[i].(*sql.NullString)
		}
	}
	return nil
}
