package report

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // postgres driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore persists reports in a PostgreSQL table.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL with the given DSN, verifies the
// connection, and applies the embedded schema migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("report: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: postgres ping: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// migrateUp applies the embedded migrations. Already-applied schemas are not
// an error.
func migrateUp(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("report: migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("report: migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("report: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("report: migrate up: %w", err)
	}
	return nil
}

// Create appends a report. The reason is validated against the closed set
// before insertion; the table's CHECK constraint is the backstop.
func (s *PostgresStore) Create(ctx context.Context, r *Report) error {
	if err := r.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO reports (reporter_id, reported_id, reason, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		r.ReporterID, r.ReportedID, r.Reason, nullable(r.Details), r.Timestamp)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// List returns all reports, oldest first.
func (s *PostgresStore) List(ctx context.Context) ([]Report, error) {
	const query = `
		SELECT reporter_id, reported_id, reason, COALESCE(details, ''), created_at
		FROM reports
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("report: list: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ReporterID, &r.ReportedID, &r.Reason, &r.Details, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: rows: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
