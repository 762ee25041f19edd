package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resdex/internal/database/queries"
	"resdex/internal/resource"
)

// variantColumn maps a variant type to the resources column holding it.
func variantColumn(t resource.ResourceType) string {
	return strings.ReplaceAll(string(t), "-", "_")
}

func nullJSON(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// encodeMetadata builds the row for hash. Absent fields stay NULL so an
// upsert keeps whatever is already stored.
func encodeMetadata(hash string, m resource.Metadata) (queries.Resource, error) {
	row := queries.Resource{Sha1: hash, Name: nullString(m.Name)}
	for _, v := range m.Variants {
		col := row.Column(variantColumn(v.Type()))
		if col == nil {
			return row, fmt.Errorf("no column for resource type %s", v.Type())
		}
		val, err := nullJSON(v)
		if err != nil {
			return row, fmt.Errorf("encoding %s metadata: %w", v.Type(), err)
		}
		*col = val
	}
	if err := encodeSources(&row, m.Github, m.Gitlab, m.Curseforge, m.Modrinth, m.Instance); err != nil {
		return row, err
	}
	return row, nil
}

func encodeSources(row *queries.Resource, github, gitlab *resource.GitSource, curseforge *resource.CurseforgeSource, modrinth *resource.ModrinthSource, instance *resource.InstanceSource) error {
	var err error
	set := func(dst *sql.NullString, v any, isNil bool) {
		if err != nil || isNil {
			return
		}
		*dst, err = nullJSON(v)
	}
	set(&row.Github, github, github == nil)
	set(&row.Gitlab, gitlab, gitlab == nil)
	set(&row.Curseforge, curseforge, curseforge == nil)
	set(&row.Modrinth, modrinth, modrinth == nil)
	set(&row.Instance, instance, instance == nil)
	if err != nil {
		return fmt.Errorf("encoding source: %w", err)
	}
	return nil
}

// decodeMetadata is lenient: a column that no longer decodes is skipped so
// one bad blob does not hide the rest of the row.
func decodeMetadata(row queries.Resource) (resource.Metadata, []error) {
	var errs []error
	m := resource.Metadata{Name: row.Name.String}
	for _, t := range resource.ResourceTypes {
		col := row.Column(variantColumn(t))
		if col == nil || !col.Valid {
			continue
		}
		v, err := resource.DecodeVariant(t, []byte(col.String))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.Set(v)
	}
	decode := func(col sql.NullString, dst any) bool {
		if !col.Valid {
			return false
		}
		if err := json.Unmarshal([]byte(col.String), dst); err != nil {
			errs = append(errs, err)
			return false
		}
		return true
	}
	if v := new(resource.GitSource); decode(row.Github, v) {
		m.Github = v
	}
	if v := new(resource.GitSource); decode(row.Gitlab, v) {
		m.Gitlab = v
	}
	if v := new(resource.CurseforgeSource); decode(row.Curseforge, v) {
		m.Curseforge = v
	}
	if v := new(resource.ModrinthSource); decode(row.Modrinth, v) {
		m.Modrinth = v
	}
	if v := new(resource.InstanceSource); decode(row.Instance, v) {
		m.Instance = v
	}
	return m, errs
}

func encodeSnapshot(s *resource.Snapshot) queries.Snapshot {
	return queries.Snapshot{
		DomainedPath: s.DomainedPath,
		Ino:          int64(s.Ino),
		Mtime:        s.Mtime.UnixMilli(),
		FileType:     string(s.Kind),
		Sha1:         s.Hash,
		Size:         s.Size,
	}
}

func decodeSnapshot(s queries.Snapshot) *resource.Snapshot {
	return &resource.Snapshot{
		DomainedPath: s.DomainedPath,
		Ino:          uint64(s.Ino),
		Mtime:        time.UnixMilli(s.Mtime),
		Size:         s.Size,
		Kind:         resource.FileKind(s.FileType),
		Hash:         s.Sha1,
	}
}

func decodeSnapshots(rows []queries.Snapshot) []*resource.Snapshot {
	out := make([]*resource.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = decodeSnapshot(r)
	}
	return out
}
