package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/searchkit/searchkit/pkg/config"
	"github.com/searchkit/searchkit/pkg/search"
)

// PostgresSource streams rows from a table as documents using keyset
// pagination on the key column, so large tables never need an offset
// scan. Every column becomes a document field; []byte values are
// returned as strings.
type PostgresSource struct {
	db      *sqlx.DB
	query   string
	keyCol  string
	lastKey string
	started bool
	done    bool
}

// NewPostgresSource connects to the configured database and prepares
// the paginated query.
func NewPostgresSource(ctx context.Context, cfg *config.Config) (*PostgresSource, error) {
	if !cfg.HasPostgres() {
		return nil, fmt.Errorf("postgres source is not configured (set PG_HOST, PG_NAME, PG_SOURCE_TABLE)")
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	table := pq.QuoteIdentifier(cfg.Postgres.Table)
	keyCol := pq.QuoteIdentifier(cfg.Postgres.KeyCol)
	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE ($1::text IS NULL OR %s::text > $1) ORDER BY %s LIMIT $2",
		table, keyCol, keyCol,
	)

	return &PostgresSource{
		db:     db,
		query:  query,
		keyCol: cfg.Postgres.KeyCol,
	}, nil
}

// Next returns the next page of rows.
func (s *PostgresSource) Next(ctx context.Context, size int) ([]search.Document, error) {
	if s.done {
		return nil, io.EOF
	}
	if size <= 0 {
		size = 1000
	}

	var cursor sql.NullString
	if s.started {
		cursor = sql.NullString{String: s.lastKey, Valid: true}
	}

	rows, err := s.db.QueryxContext(ctx, s.query, cursor, size)
	if err != nil {
		return nil, fmt.Errorf("failed to query source table: %w", err)
	}
	defer rows.Close()

	batch := make([]search.Document, 0, size)
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return batch, fmt.Errorf("failed to scan source row: %w", err)
		}
		doc := search.Document{}
		for column, value := range row {
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			doc[column] = value
		}
		batch = append(batch, doc)
	}
	if err := rows.Err(); err != nil {
		return batch, fmt.Errorf("failed to read source rows: %w", err)
	}

	if len(batch) < size {
		s.done = true
		if len(batch) == 0 {
			return nil, io.EOF
		}
		return batch, io.EOF
	}

	last := batch[len(batch)-1][s.keyCol]
	if last == nil {
		return batch, fmt.Errorf("key column %q missing from source rows", s.keyCol)
	}
	s.lastKey = fmt.Sprintf("%v", last)
	s.started = true
	return batch, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}
