package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leeforge/strata/adapter"
	apperrors "github.com/leeforge/strata/errors"
	"github.com/leeforge/strata/json"
	"github.com/leeforge/strata/runtime/migration"
)

// Dialect selects placeholder syntax.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return "", apperrors.NewValidation(fmt.Sprintf("unsupported sql driver %q", driver))
	}
}

// Store keeps every document as a JSON row of one table keyed by
// (type, id). Ids are UUIDs.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the table name (default "records").
func WithTable(table string) Option {
	return func(s *Store) { s.table = table }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store on db.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		table:   "records",
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens driver/dsn and returns a store owning the connection.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "open "+driver)
	}
	return New(db, dialect, opts...), nil
}

// bind rewrites "?" placeholders for the dialect.
func (s *Store) bind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Name implements migration.Strategy.
func (s *Store) Name() string { return "sqlstore:" + s.table }

// Migrate creates the records table.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	type TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (type, id)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "create table "+s.table)
	}
	s.logger.Info("records table ready", zap.String("table", s.table), zap.String("dialect", string(s.dialect)))
	return nil
}

func (s *Store) Load(ctx context.Context, typ, id string) (adapter.Document, bool, error) {
	query := s.bind(fmt.Sprintf("SELECT data FROM %s WHERE type = ? AND id = ?", s.table))
	var raw string
	err := s.db.QueryRowContext(ctx, query, typ, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "load "+typ+":"+id)
	}
	doc, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (s *Store) Scan(ctx context.Context, typ string) ([]adapter.Document, error) {
	query := s.bind(fmt.Sprintf("SELECT data FROM %s WHERE type = ? ORDER BY id", s.table))
	rows, err := s.db.QueryContext(ctx, query, typ)
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "scan "+typ)
	}
	defer rows.Close()

	out := []adapter.Document{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "scan "+typ)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "scan "+typ)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, typ, id string, doc adapter.Document) error {
	raw, err := json.MarshalToString(doc)
	if err != nil {
		return fmt.Errorf("encode %s:%s: %w", typ, id, err)
	}
	query := s.bind(fmt.Sprintf(
		"INSERT INTO %s (type, id, data) VALUES (?, ?, ?) ON CONFLICT (type, id) DO UPDATE SET data = excluded.data",
		s.table))
	if _, err := s.db.ExecContext(ctx, query, typ, id, raw); err != nil {
		return apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "save "+typ+":"+id)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, typ, id string) error {
	query := s.bind(fmt.Sprintf("DELETE FROM %s WHERE type = ? AND id = ?", s.table))
	if _, err := s.db.ExecContext(ctx, query, typ, id); err != nil {
		return apperrors.WrapWithType(err, apperrors.ErrorTypeAdapter, "remove "+typ+":"+id)
	}
	return nil
}

func (s *Store) NextID(context.Context, string) (any, error) {
	return uuid.NewString(), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func decode(raw string) (adapter.Document, error) {
	var doc adapter.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Ensure Store implements adapter.Store and migration.Strategy.
var (
	_ adapter.Store      = (*Store)(nil)
	_ migration.Strategy = (*Store)(nil)
)
