package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/ternhq/tern/pkg/retrieval"
)

type pgxIConn interface {
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Ping(ctx context.Context) error
}

// GraphDBStorage implements the store.GraphStore interface using
// PostgreSQL with pgvector for vector similarity search. All access is
// read-only; the ingestion pipeline owns writes.
type GraphDBStorage struct {
	conn  pgxIConn
	trace retrieval.Tracer
}

type GraphDBStorageOption func(*GraphDBStorage)

func WithTracer(trace retrieval.Tracer) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.trace = trace
	}
}

// NewGraphDBStorageWithConnection creates a new GraphDBStorage using an
// existing database connection or pool.
func NewGraphDBStorageWithConnection(
	ctx context.Context,
	conn pgxIConn,
	opts ...GraphDBStorageOption,
) (*GraphDBStorage, error) {
	s := &GraphDBStorage{
		conn: conn,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

// Ping verifies the database is reachable.
func (s *GraphDBStorage) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
