package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/docsync/internal/changelog"
	"github.com/iudanet/docsync/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Log is the SQLite-backed change log implementation.
// One row per accepted change; (collection, seq) is unique and seq is
// assigned inside a transaction, so sequences stay gapless under
// concurrent appenders.
type Log struct {
	db *sql.DB
}

// New opens (or creates) the change log database at dbPath and runs
// migrations. Use ":memory:" for an in-memory database (useful for testing).
func New(ctx context.Context, dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite с WAL mode поддерживает несколько читателей, но только
	// одного писателя; один коннект сериализует транзакции append
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	log := &Log{db: db}

	if err := log.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return log, nil
}

// runMigrations выполняет миграции из embedded FS
func (l *Log) runMigrations() error {
	goose.SetDialect("sqlite3")
	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(l.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// Append assigns the next sequence for the collection and durably stores
// the entry. Sequence assignment and insert happen in one transaction.
func (l *Log) Append(ctx context.Context, collection string, change models.ChangeEvent, originSession string) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM change_log WHERE collection = ?`,
		collection,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to assign sequence: %w", err)
	}

	change.Seq = seq
	payload, err := json.Marshal(&change)
	if err != nil {
		return 0, fmt.Errorf("failed to encode change: %w", err)
	}

	loggedAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO change_log (collection, seq, document_id, op, change, origin_session, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		collection,
		seq,
		change.DocumentID,
		string(change.Op),
		payload,
		originSession,
		loggedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entry: %w", err)
	}

	return seq, nil
}

// EntriesSince returns entries with sequence greater than since, ascending,
// capped at limit
func (l *Log) EntriesSince(ctx context.Context, collection string, since int64, limit int) ([]changelog.Entry, error) {
	query := `
		SELECT collection, seq, change, origin_session, logged_at
		FROM change_log
		WHERE collection = ? AND seq > ?
		ORDER BY seq ASC
	`
	args := []any{collection, since}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []changelog.Entry
	for rows.Next() {
		var (
			entry    changelog.Entry
			payload  []byte
			loggedAt int64
		)
		if err := rows.Scan(&entry.Collection, &entry.Seq, &payload, &entry.OriginSession, &loggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Change); err != nil {
			return nil, fmt.Errorf("failed to decode change: %w", err)
		}
		entry.LoggedAt = time.Unix(loggedAt, 0).UTC()
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

// CurrentSequence returns the latest assigned sequence for the collection,
// 0 if it has never been written
func (l *Log) CurrentSequence(ctx context.Context, collection string) (int64, error) {
	var seq int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM change_log WHERE collection = ?`,
		collection,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to query current sequence: %w", err)
	}

	return seq, nil
}

// Close closes the database connection
func (l *Log) Close() error {
	return l.db.Close()
}

// DB returns the underlying database connection for testing purposes
func (l *Log) DB() *sql.DB {
	return l.db
}
