package queries

import (
	"context"
	"fmt"
)

const snapshotColumns = `domained_path, ino, mtime, file_type, sha1, size`

func scanSnapshots(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
	Close() error
}) ([]Snapshot, error) {
	defer rows.Close()
	var items []Snapshot
	for rows.Next() {
		var i Snapshot
		if err := rows.Scan(&i.DomainedPath, &i.Ino, &i.Mtime, &i.FileType, &i.Sha1, &i.Size); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSnapshot = `SELECT ` + snapshotColumns + ` FROM snapshots WHERE domained_path = ?`

func (q *Queries) GetSnapshot(ctx context.Context, domainedPath string) (Snapshot, error) {
	row := q.db.QueryRowContext(ctx, getSnapshot, domainedPath)
	var i Snapshot
	err := row.Scan(&i.DomainedPath, &i.Ino, &i.Mtime, &i.FileType, &i.Sha1, &i.Size)
	return i, err
}

const getSnapshotByIno = `SELECT ` + snapshotColumns + ` FROM snapshots WHERE ino = ? ORDER BY domained_path LIMIT 1`

func (q *Queries) GetSnapshotByIno(ctx context.Context, ino int64) (Snapshot, error) {
	row := q.db.QueryRowContext(ctx, getSnapshotByIno, ino)
	var i Snapshot
	err := row.Scan(&i.DomainedPath, &i.Ino, &i.Mtime, &i.FileType, &i.Sha1, &i.Size)
	return i, err
}

const listSnapshotsBySha1s = `SELECT ` + snapshotColumns + ` FROM snapshots WHERE sha1 IN (%s) ORDER BY domained_path`

func (q *Queries) ListSnapshotsBySha1s(ctx context.Context, sha1s []string) ([]Snapshot, error) {
	if len(sha1s) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(listSnapshotsBySha1s, placeholders(len(sha1s)))
	rows, err := q.db.QueryContext(ctx, query, stringArgs(sha1s)...)
	if err != nil {
		return nil, err
	}
	return scanSnapshots(rows)
}

const listSnapshotsByInos = `SELECT ` + snapshotColumns + ` FROM snapshots WHERE ino IN (%s) ORDER BY domained_path`

func (q *Queries) ListSnapshotsByInos(ctx context.Context, inos []int64) ([]Snapshot, error) {
	if len(inos) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(inos))
	for i, ino := range inos {
		args[i] = ino
	}
	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(listSnapshotsByInos, placeholders(len(inos))), args...)
	if err != nil {
		return nil, err
	}
	return scanSnapshots(rows)
}

const listSnapshotsByPrefix = `SELECT ` + snapshotColumns + ` FROM snapshots
WHERE domained_path LIKE ? ESCAPE '\'
ORDER BY domained_path
LIMIT ? OFFSET ?`

type ListSnapshotsByPrefixParams struct {
	Prefix string
	Limit  int
	Offset int
}

func (q *Queries) ListSnapshotsByPrefix(ctx context.Context, arg ListSnapshotsByPrefixParams) ([]Snapshot, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshotsByPrefix, EscapeLike(arg.Prefix)+"%", limitOrAll(arg.Limit), arg.Offset)
	if err != nil {
		return nil, err
	}
	return scanSnapshots(rows)
}

const searchSnapshots = `SELECT s.domained_path, s.ino, s.mtime, s.file_type, s.sha1, s.size
FROM snapshots s
LEFT JOIN resources r ON r.sha1 = s.sha1
WHERE s.domained_path LIKE ? ESCAPE '\'
  AND (substr(s.domained_path, ?) LIKE ? ESCAPE '\' OR r.name LIKE ? ESCAPE '\')
ORDER BY s.domained_path
LIMIT ? OFFSET ?`

type SearchSnapshotsParams struct {
	Prefix  string
	Keyword string
	Limit   int
	Offset  int
}

// SearchSnapshots matches Keyword against the part of the path after Prefix
// and against the display name.
func (q *Queries) SearchSnapshots(ctx context.Context, arg SearchSnapshotsParams) ([]Snapshot, error) {
	pattern := "%" + EscapeLike(arg.Keyword) + "%"
	rows, err := q.db.QueryContext(ctx, searchSnapshots,
		EscapeLike(arg.Prefix)+"%", len(arg.Prefix)+1, pattern, pattern,
		limitOrAll(arg.Limit), arg.Offset)
	if err != nil {
		return nil, err
	}
	return scanSnapshots(rows)
}

const upsertSnapshot = `INSERT INTO snapshots (` + snapshotColumns + `)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (domained_path) DO UPDATE SET
    ino = excluded.ino,
    mtime = excluded.mtime,
    file_type = excluded.file_type,
    sha1 = excluded.sha1,
    size = excluded.size`

func (q *Queries) UpsertSnapshot(ctx context.Context, arg Snapshot) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot,
		arg.DomainedPath, arg.Ino, arg.Mtime, arg.FileType, arg.Sha1, arg.Size)
	return err
}

const deleteSnapshot = `DELETE FROM snapshots WHERE domained_path = ?`

func (q *Queries) DeleteSnapshot(ctx context.Context, domainedPath string) error {
	_, err := q.db.ExecContext(ctx, deleteSnapshot, domainedPath)
	return err
}

const deleteSnapshotsByPrefix = `DELETE FROM snapshots WHERE domained_path LIKE ? ESCAPE '\'`

func (q *Queries) DeleteSnapshotsByPrefix(ctx context.Context, prefix string) error {
	_, err := q.db.ExecContext(ctx, deleteSnapshotsByPrefix, EscapeLike(prefix)+"%")
	return err
}
