package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"resdex/internal/database/migrations"
	"resdex/internal/database/queries"
	"resdex/internal/resource"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements resource.Store on a single SQLite file.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *queries.Queries
	logger  resource.Logger
}

// DefaultBusyTimeoutMS is used when no busy timeout is configured.
const DefaultBusyTimeoutMS = 5000

// NewSQLiteDatabase opens path, migrates it to the latest schema and returns
// the store. path can be a file path or ":memory:". A failed migration is
// logged and the store keeps working on whatever schema is present.
func NewSQLiteDatabase(path string, logger resource.Logger) (*SQLiteDatabase, error) {
	return openSQLiteDatabase(path, DefaultBusyTimeoutMS, logger)
}

func openSQLiteDatabase(path string, busyTimeoutMS int, logger resource.Logger) (*SQLiteDatabase, error) {
	if logger == nil {
		logger = resource.NewNopLogger()
	}
	db, err := openConnection(path, busyTimeoutMS)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDatabase{
		db:      db,
		queries: queries.New(db),
		logger:  logger,
	}
	if err := migrations.MigrateUp(db); err != nil {
		logger.Error("database migration failed, continuing on existing schema", "path", path, "error", err)
	} else if err := s.CheckMigrations(); err != nil {
		logger.Warn("database schema is not current", "path", path, "error", err)
	}
	return s, nil
}

// dsn carries the connection settings as driver parameters; the driver
// applies them to every connection the pool opens.
func dsn(path string, busyTimeoutMS int) string {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = DefaultBusyTimeoutMS
	}
	if path == ":memory:" {
		return fmt.Sprintf("file::memory:?_busy_timeout=%d&_foreign_keys=1", busyTimeoutMS)
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=1&_synchronous=NORMAL",
		path, busyTimeoutMS)
}

// openConnection opens a SQLite connection pool for path.
func openConnection(path string, busyTimeoutMS int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path, busyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// Snapshot operations

func (s *SQLiteDatabase) GetSnapshot(ctx context.Context, domainedPath string) (*resource.Snapshot, error) {
	row, err := s.queries.GetSnapshot(ctx, domainedPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting snapshot %s: %w", domainedPath, err)
	}
	return decodeSnapshot(row), nil
}

func (s *SQLiteDatabase) GetSnapshotByInode(ctx context.Context, ino uint64) (*resource.Snapshot, error) {
	row, err := s.queries.GetSnapshotByIno(ctx, int64(ino))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting snapshot by inode %d: %w", ino, err)
	}
	return decodeSnapshot(row), nil
}

func (s *SQLiteDatabase) GetSnapshotsByHash(ctx context.Context, hash string) ([]*resource.Snapshot, error) {
	return s.GetSnapshotsByHashes(ctx, []string{hash})
}

func (s *SQLiteDatabase) GetSnapshotsByHashes(ctx context.Context, hashes []string) ([]*resource.Snapshot, error) {
	rows, err := s.queries.ListSnapshotsBySha1s(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots by hash: %w", err)
	}
	return decodeSnapshots(rows), nil
}

func (s *SQLiteDatabase) ListSnapshots(ctx context.Context, prefix string, page resource.Page) ([]*resource.Snapshot, error) {
	rows, err := s.queries.ListSnapshotsByPrefix(ctx, queries.ListSnapshotsByPrefixParams{
		Prefix: prefix,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots under %q: %w", prefix, err)
	}
	return decodeSnapshots(rows), nil
}

func (s *SQLiteDatabase) SearchSnapshots(ctx context.Context, prefix, keyword string, page resource.Page) ([]*resource.Snapshot, error) {
	rows, err := s.queries.SearchSnapshots(ctx, queries.SearchSnapshotsParams{
		Prefix:  prefix,
		Keyword: keyword,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("searching snapshots for %q: %w", keyword, err)
	}
	return decodeSnapshots(rows), nil
}

func (s *SQLiteDatabase) FindSnapshotsByInodes(ctx context.Context, inos []uint64) ([]*resource.Snapshot, error) {
	args := make([]int64, len(inos))
	for i, ino := range inos {
		args[i] = int64(ino)
	}
	rows, err := s.queries.ListSnapshotsByInos(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots by inode: %w", err)
	}
	return decodeSnapshots(rows), nil
}

func (s *SQLiteDatabase) UpsertSnapshot(ctx context.Context, snap *resource.Snapshot) error {
	if err := s.queries.UpsertSnapshot(ctx, encodeSnapshot(snap)); err != nil {
		return fmt.Errorf("upserting snapshot %s: %w", snap.DomainedPath, err)
	}
	return nil
}

// UpsertSnapshots writes every snapshot in one transaction.
func (s *SQLiteDatabase) UpsertSnapshots(ctx context.Context, snaps []*resource.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	for _, snap := range snaps {
		if err := qtx.UpsertSnapshot(ctx, encodeSnapshot(snap)); err != nil {
			return fmt.Errorf("upserting snapshot %s: %w", snap.DomainedPath, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) RemoveSnapshot(ctx context.Context, domainedPath string) error {
	if err := s.queries.DeleteSnapshot(ctx, domainedPath); err != nil {
		return fmt.Errorf("removing snapshot %s: %w", domainedPath, err)
	}
	return nil
}

func (s *SQLiteDatabase) RemoveSnapshotsUnder(ctx context.Context, prefix string) error {
	if err := s.queries.DeleteSnapshotsByPrefix(ctx, prefix); err != nil {
		return fmt.Errorf("removing snapshots under %q: %w", prefix, err)
	}
	return nil
}

// Metadata operations

func (s *SQLiteDatabase) GetEntry(ctx context.Context, hash string) (*resource.Entry, error) {
	entries, err := s.GetEntries(ctx, []string{hash})
	if err != nil {
		return nil, err
	}
	return entries[hash], nil
}

// GetEntries returns an entry for every hash that has a metadata row or any
// auxiliary row. Hashes with neither are absent from the map.
func (s *SQLiteDatabase) GetEntries(ctx context.Context, hashes []string) (map[string]*resource.Entry, error) {
	out := make(map[string]*resource.Entry)
	if len(hashes) == 0 {
		return out, nil
	}
	hashes = dedupe(hashes)

	rows, err := s.queries.ListResources(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	entry := func(hash string) *resource.Entry {
		e, ok := out[hash]
		if !ok {
			e = &resource.Entry{Hash: hash}
			out[hash] = e
		}
		return e
	}
	for _, row := range rows {
		meta, errs := decodeMetadata(row)
		for _, err := range errs {
			s.logger.Warn("skipping undecodable metadata column", "hash", row.Sha1, "error", err)
		}
		entry(row.Sha1).Metadata = meta
	}

	tags, err := s.queries.ListTags(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	for _, p := range tags {
		e := entry(p.Sha1)
		e.Tags = append(e.Tags, p.Value)
	}
	uris, err := s.queries.ListUris(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("listing uris: %w", err)
	}
	for _, p := range uris {
		e := entry(p.Sha1)
		e.URIs = append(e.URIs, p.Value)
	}
	icons, err := s.queries.ListIcons(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("listing icons: %w", err)
	}
	for _, p := range icons {
		e := entry(p.Sha1)
		e.Icons = append(e.Icons, p.Value)
	}
	return out, nil
}

// UpsertMetadata merges meta into the row for hash and appends uris and icons
// in a single transaction.
func (s *SQLiteDatabase) UpsertMetadata(ctx context.Context, hash string, meta resource.Metadata, uris, icons []string) error {
	row, err := encodeMetadata(hash, meta)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	if err := qtx.UpsertResource(ctx, row); err != nil {
		return fmt.Errorf("upserting resource %s: %w", hash, err)
	}
	if err := appendAux(ctx, qtx, hash, nil, uris, icons); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// UpdateEntries applies every update in one transaction.
func (s *SQLiteDatabase) UpdateEntries(ctx context.Context, updates []resource.Update) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	for _, u := range updates {
		row := queries.Resource{Sha1: u.Hash, Name: nullString(u.Name)}
		if err := encodeSources(&row, u.Github, u.Gitlab, u.Curseforge, u.Modrinth, u.Instance); err != nil {
			return err
		}
		if err := qtx.UpsertResource(ctx, row); err != nil {
			return fmt.Errorf("updating resource %s: %w", u.Hash, err)
		}
		if err := appendAux(ctx, qtx, u.Hash, u.Tags, u.URIs, u.Icons); err != nil {
			return err
		}
		for _, tag := range u.RemoveTags {
			if err := qtx.DeleteTag(ctx, u.Hash, tag); err != nil {
				return fmt.Errorf("removing tag %q from %s: %w", tag, u.Hash, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func appendAux(ctx context.Context, q *queries.Queries, hash string, tags, uris, icons []string) error {
	for _, tag := range tags {
		if err := q.InsertTag(ctx, hash, tag); err != nil {
			return fmt.Errorf("inserting tag for %s: %w", hash, err)
		}
	}
	for _, uri := range uris {
		if err := q.InsertUri(ctx, hash, uri); err != nil {
			return fmt.Errorf("inserting uri for %s: %w", hash, err)
		}
	}
	for _, icon := range icons {
		if err := q.InsertIcon(ctx, hash, icon); err != nil {
			return fmt.Errorf("inserting icon for %s: %w", hash, err)
		}
	}
	return nil
}

func (s *SQLiteDatabase) HashesByURIs(ctx context.Context, uris []string) ([]string, error) {
	pairs, err := s.queries.ListSha1ByUris(ctx, uris)
	if err != nil {
		return nil, fmt.Errorf("looking up uris: %w", err)
	}
	return pairHashes(pairs), nil
}

func (s *SQLiteDatabase) HashesByURIPrefix(ctx context.Context, prefix string) ([]string, error) {
	pairs, err := s.queries.ListSha1ByUriPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("looking up uri prefix %q: %w", prefix, err)
	}
	return pairHashes(pairs), nil
}

func (s *SQLiteDatabase) SweepOrphans(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := s.queries.WithTx(tx).DeleteOrphans(ctx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return n, nil
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// pairHashes returns the distinct hashes in first-seen order.
func pairHashes(pairs []queries.Pair) []string {
	seen := make(map[string]bool, len(pairs))
	var out []string
	for _, p := range pairs {
		if !seen[p.Sha1] {
			seen[p.Sha1] = true
			out = append(out, p.Sha1)
		}
	}
	return out
}

func dedupe(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

var _ resource.Store = (*SQLiteDatabase)(nil)
