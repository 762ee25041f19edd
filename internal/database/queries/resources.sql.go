package queries

import (
	"context"
	"fmt"
	"strings"
)

var resourceSelect = `SELECT ` + strings.Join(resourceColumns, ", ") + ` FROM resources`

const listResources = ` WHERE sha1 IN (%s)`

func (q *Queries) ListResources(ctx context.Context, sha1s []string) ([]Resource, error) {
	if len(sha1s) == 0 {
		return nil, nil
	}
	query := resourceSelect + fmt.Sprintf(listResources, placeholders(len(sha1s)))
	rows, err := q.db.QueryContext(ctx, query, stringArgs(sha1s)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Resource
	for rows.Next() {
		var i Resource
		if err := rows.Scan(i.fields()...); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// upsertResource keeps the stored value of any column the new row leaves NULL.
var upsertResource = func() string {
	var set []string
	for _, col := range resourceColumns[1:] {
		set = append(set, fmt.Sprintf("%s = COALESCE(excluded.%s, resources.%s)", col, col, col))
	}
	return `INSERT INTO resources (` + strings.Join(resourceColumns, ", ") + `)
VALUES (` + placeholders(len(resourceColumns)) + `)
ON CONFLICT (sha1) DO UPDATE SET ` + strings.Join(set, ", ")
}()

func (q *Queries) UpsertResource(ctx context.Context, arg Resource) error {
	_, err := q.db.ExecContext(ctx, upsertResource, arg.values()...)
	return err
}

const insertTag = `INSERT INTO tags (sha1, tag) VALUES (?, ?) ON CONFLICT DO NOTHING`

func (q *Queries) InsertTag(ctx context.Context, sha1, tag string) error {
	_, err := q.db.ExecContext(ctx, insertTag, sha1, tag)
	return err
}

const deleteTag = `DELETE FROM tags WHERE sha1 = ? AND tag = ?`

func (q *Queries) DeleteTag(ctx context.Context, sha1, tag string) error {
	_, err := q.db.ExecContext(ctx, deleteTag, sha1, tag)
	return err
}

const insertUri = `INSERT INTO uris (sha1, uri) VALUES (?, ?) ON CONFLICT DO NOTHING`

func (q *Queries) InsertUri(ctx context.Context, sha1, uri string) error {
	_, err := q.db.ExecContext(ctx, insertUri, sha1, uri)
	return err
}

const insertIcon = `INSERT INTO icons (sha1, icon) VALUES (?, ?) ON CONFLICT DO NOTHING`

func (q *Queries) InsertIcon(ctx context.Context, sha1, icon string) error {
	_, err := q.db.ExecContext(ctx, insertIcon, sha1, icon)
	return err
}

// Pair is one (sha1, value) row of an auxiliary table.
type Pair struct {
	Sha1  string
	Value string
}

func (q *Queries) listPairs(ctx context.Context, query string, args []interface{}) ([]Pair, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Pair
	for rows.Next() {
		var i Pair
		if err := rows.Scan(&i.Sha1, &i.Value); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTags = `SELECT sha1, tag FROM tags WHERE sha1 IN (%s) ORDER BY sha1, tag`

func (q *Queries) ListTags(ctx context.Context, sha1s []string) ([]Pair, error) {
	if len(sha1s) == 0 {
		return nil, nil
	}
	return q.listPairs(ctx, fmt.Sprintf(listTags, placeholders(len(sha1s))), stringArgs(sha1s))
}

const listUris = `SELECT sha1, uri FROM uris WHERE sha1 IN (%s) ORDER BY sha1, uri`

func (q *Queries) ListUris(ctx context.Context, sha1s []string) ([]Pair, error) {
	if len(sha1s) == 0 {
		return nil, nil
	}
	return q.listPairs(ctx, fmt.Sprintf(listUris, placeholders(len(sha1s))), stringArgs(sha1s))
}

const listIcons = `SELECT sha1, icon FROM icons WHERE sha1 IN (%s) ORDER BY sha1, icon`

func (q *Queries) ListIcons(ctx context.Context, sha1s []string) ([]Pair, error) {
	if len(sha1s) == 0 {
		return nil, nil
	}
	return q.listPairs(ctx, fmt.Sprintf(listIcons, placeholders(len(sha1s))), stringArgs(sha1s))
}

const listSha1ByUris = `SELECT sha1, uri FROM uris WHERE uri IN (%s) ORDER BY uri, sha1`

func (q *Queries) ListSha1ByUris(ctx context.Context, uris []string) ([]Pair, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	return q.listPairs(ctx, fmt.Sprintf(listSha1ByUris, placeholders(len(uris))), stringArgs(uris))
}

const listSha1ByUriPrefix = `SELECT sha1, uri FROM uris WHERE uri LIKE ? ESCAPE '\' ORDER BY uri, sha1`

func (q *Queries) ListSha1ByUriPrefix(ctx context.Context, prefix string) ([]Pair, error) {
	return q.listPairs(ctx, listSha1ByUriPrefix, []interface{}{EscapeLike(prefix) + "%"})
}

const orphanFilter = ` WHERE sha1 NOT IN (SELECT sha1 FROM snapshots)`

// DeleteOrphans removes metadata and auxiliary rows whose hash no snapshot
// references, returning the number of resources rows removed.
func (q *Queries) DeleteOrphans(ctx context.Context) (int64, error) {
	for _, table := range []string{"tags", "uris", "icons"} {
		if _, err := q.db.ExecContext(ctx, "DELETE FROM "+table+orphanFilter); err != nil {
			return 0, fmt.Errorf("deleting orphaned %s: %w", table, err)
		}
	}
	res, err := q.db.ExecContext(ctx, "DELETE FROM resources"+orphanFilter)
	if err != nil {
		return 0, fmt.Errorf("deleting orphaned resources: %w", err)
	}
	return res.RowsAffected()
}
