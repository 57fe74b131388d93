package resolver

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/smartcare-health/smartcare-hms/internal/tenantctx"
)

// schemaNamePattern guards schema identifiers that end up in SQL. Schema names
// are generated from tenant codes at creation time; anything else is refused.
var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidSchemaName reports whether name is safe to use as a schema identifier.
func ValidSchemaName(name string) bool {
	return schemaNamePattern.MatchString(name)
}

// Session is a database session scoped to one schema for one request.
type Session interface {
	tenantctx.Querier
	// Release resets the session's search path and returns it to the pool.
	// Must run on every exit path of the request.
	Release(ctx context.Context)
}

// SessionFactory opens schema-scoped sessions. Which schema is always an
// explicit argument; there is no ambient current-schema state to get wrong.
type SessionFactory interface {
	Acquire(ctx context.Context, schema string) (Session, error)
}

// PoolSessionFactory implements SessionFactory over a pgx pool by pinning one
// connection per request and setting its search path.
type PoolSessionFactory struct {
	pool *pgxpool.Pool
}

func NewPoolSessionFactory(pool *pgxpool.Pool) *PoolSessionFactory {
	return &PoolSessionFactory{pool: pool}
}

func (f *PoolSessionFactory) Acquire(ctx context.Context, schema string) (Session, error) {
	if !ValidSchemaName(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}

	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	searchPath := pq.QuoteIdentifier(schema)
	if schema != tenantctx.PublicSchema {
		searchPath += ", public"
	}
	if _, err := conn.Exec(ctx, "SET search_path TO "+searchPath); err != nil {
		conn.Release()
		return nil, fmt.Errorf("set search_path to %s: %w", schema, err)
	}

	return &poolSession{conn: conn}, nil
}

type poolSession struct {
	conn *pgxpool.Conn
}

func (s *poolSession) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.conn.Exec(ctx, sql, args...)
}

func (s *poolSession) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.conn.Query(ctx, sql, args...)
}

func (s *poolSession) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.conn.QueryRow(ctx, sql, args...)
}

func (s *poolSession) Release(ctx context.Context) {
	// Pooled connections keep session state across checkouts, so the search
	// path must be reset before this connection can serve another tenant. If
	// the reset fails the connection is destroyed rather than returned dirty.
	if _, err := s.conn.Exec(ctx, "SET search_path TO public"); err != nil {
		_ = s.conn.Conn().Close(ctx)
	}
	s.conn.Release()
}
