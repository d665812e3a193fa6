package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Tables created by older builds used JSONB, which reorders keys; the ALTER
// converts them in place and is a no-op once the column is JSON.
var postgresSchema = []string{`
CREATE TABLE IF NOT EXISTS visnote_documents (
	name       TEXT PRIMARY KEY,
	body       JSON NOT NULL,
	revision   BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`ALTER TABLE visnote_documents ALTER COLUMN body TYPE JSON USING body::text::json`,
}

// Postgres stores documents in a JSON column, which keeps the bytes as written.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to databaseURL and ensures the documents table exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", pgError(err))
	}
	for _, stmt := range postgresSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create documents table: %w", pgError(err))
		}
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM visnote_documents WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document %s: %w", name, pgError(err))
	}
	return body, nil
}

func (p *Postgres) Put(ctx context.Context, name string, data []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO visnote_documents (name, body) VALUES ($1, $2::json)
		ON CONFLICT (name) DO UPDATE SET
			body = EXCLUDED.body,
			revision = visnote_documents.revision + 1,
			updated_at = now()`,
		name, string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", name, pgError(err))
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func pgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "28000", "28P01", "42501":
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case "53100", "53200", "54000":
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}
