package cache

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLTable names the table and columns used by a SQLStore.
type SQLTable struct {
	Table         string
	IDColumn      string
	EntryColumn   string
	ExpiresColumn string
}

// DefaultSQLTable returns the default cache(id, entry, expires) layout.
func DefaultSQLTable() SQLTable {
	return SQLTable{Table: "cache", IDColumn: "id", EntryColumn: "entry", ExpiresColumn: "expires"}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t SQLTable) validate() error {
	for _, name := range []string{t.Table, t.IDColumn, t.EntryColumn, t.ExpiresColumn} {
		if !identifier.MatchString(name) {
			return errors.Wrapf(ErrConfiguration, "invalid sql identifier %q", name)
		}
	}
	return nil
}

// SQLStore keeps entries in a relational table. The payload column holds
// the msgpack encoded value, the expires column unix nanoseconds (0 never).
type SQLStore struct {
	db     *sqlx.DB
	table  SQLTable
	now    func() time.Time
	create bool
	owned  bool
}

var (
	_ Store         = (*SQLStore)(nil)
	_ Clearer       = (*SQLStore)(nil)
	_ PrefixRemover = (*SQLStore)(nil)
)

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLTable overrides table and column names.
func WithSQLTable(table SQLTable) SQLOption {
	return func(s *SQLStore) { s.table = table }
}

// WithCreateTable controls whether the table is created if missing. Defaults to true.
func WithCreateTable(create bool) SQLOption {
	return func(s *SQLStore) { s.create = create }
}

// WithSQLClock overrides the time source used when purging expired rows.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOwnedDB makes Close close the database handle.
func WithOwnedDB() SQLOption {
	return func(s *SQLStore) { s.owned = true }
}

// NewSQLStore returns a store using db. The caller owns db unless
// WithOwnedDB is given.
func NewSQLStore(ctx context.Context, db *sqlx.DB, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{db: db, table: DefaultSQLTable(), now: time.Now, create: true}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.table.validate(); err != nil {
		return nil, err
	}
	if s.create {
		if err := s.createTable(ctx); err != nil {
			return nil, errors.Wrap(err, "cache: creating table")
		}
	}
	return s, nil
}

// NewSQLite opens a SQLite database (pure Go, no CGO) and returns a store
// owning it. An empty path or ":memory:" uses an in-memory database.
func NewSQLite(ctx context.Context, path string, opts ...SQLOption) (*SQLStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	s, err := NewSQLStore(ctx, db, append(opts, WithOwnedDB())...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) dialect() string {
	switch s.db.DriverName() {
	case "postgres", "pgx", "pgx/v5":
		return "postgres"
	default:
		return "sqlite"
	}
}

func (s *SQLStore) createTable(ctx context.Context) error {
	blob, text := "BLOB", "TEXT"
	if s.dialect() == "postgres" {
		blob = "BYTEA"
	}
	t := s.table
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (%s %s PRIMARY KEY, %s %s NOT NULL, %s BIGINT NOT NULL DEFAULT 0)`,
		t.Table, t.IDColumn, text, t.EntryColumn, blob, t.ExpiresColumn))
	return err
}

func (s *SQLStore) q(format string, args ...any) string {
	return s.db.Rebind(fmt.Sprintf(format, args...))
}

// prefixClause matches ids starting with prefix. substr compares exactly,
// unlike LIKE which ignores ASCII case on SQLite.
func (s *SQLStore) prefixClause(prefix string) (string, []any) {
	return fmt.Sprintf(`substr(%s, 1, ?) = ?`, s.table.IDColumn), []any{utf8.RuneCountInString(prefix), prefix}
}

type sqlRow struct {
	Entry   []byte `db:"entry"`
	Expires int64  `db:"expires"`
}

func (s *SQLStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	t := s.table
	var row sqlRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT %s AS entry, %s AS expires FROM %s WHERE %s = ?`,
		t.EntryColumn, t.ExpiresColumn, t.Table, t.IDColumn), key)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Data: Encoded(row.Entry), ExpiresAt: expiresTime(row.Expires)}, true, nil
}

func (s *SQLStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM %s WHERE %s = ?`, s.table.Table, s.table.IDColumn), key)
	return n > 0, err
}

// Put replaces the row in a transaction, delete then insert, which works
// the same on every dialect.
func (s *SQLStore) Put(ctx context.Context, key string, entry Entry, _ time.Duration) error {
	data, err := encodeData(entry.Data)
	if err != nil {
		return err
	}
	t := s.table
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM %s WHERE %s = ?`, t.Table, t.IDColumn), key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)`,
		t.Table, t.IDColumn, t.EntryColumn, t.ExpiresColumn), key, data, expiresNanos(entry.ExpiresAt)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM %s WHERE %s = ?`, s.table.Table, s.table.IDColumn), key)
	return err
}

func (s *SQLStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	where, args := s.prefixClause(prefix)
	var keys []string
	err := s.db.SelectContext(ctx, &keys, s.q(`SELECT %s FROM %s WHERE %s`,
		s.table.IDColumn, s.table.Table, where), args...)
	return keys, err
}

func (s *SQLStore) RemovePrefix(ctx context.Context, prefix string) error {
	where, args := s.prefixClause(prefix)
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM %s WHERE %s`, s.table.Table, where), args...)
	return err
}

func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table.Table))
	return err
}

func (s *SQLStore) Size(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table.Table))
	return n, err
}

// Stats purges expired rows before counting.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	t := s.table
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM %s WHERE %s != 0 AND %s <= ?`,
		t.Table, t.ExpiresColumn, t.ExpiresColumn), s.now().UnixNano()); err != nil {
		return nil, err
	}
	size, err := s.Size(ctx)
	if err != nil {
		return nil, err
	}
	return Stats{StatsSize: size}, nil
}

func (s *SQLStore) Available(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// DB returns the database handle.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
