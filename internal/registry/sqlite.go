// Package registry persists which chat rooms the bot joins at startup.
// The administrative connect flow appends to it; the runtime only reads.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteRegistry implements domain.ChannelRegistry using SQLite.
type SQLiteRegistry struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLite(dbPath string, logger *slog.Logger) (*SQLiteRegistry, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create registry directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open registry database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &SQLiteRegistry{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry migration failed: %w", err)
	}
	return r, nil
}

func (r *SQLiteRegistry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		name      TEXT PRIMARY KEY,
		added_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := r.db.Exec(schema)
	return err
}

// AddChannel registers a room to join. Adding an existing room is a no-op.
func (r *SQLiteRegistry) AddChannel(ctx context.Context, name string) error {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "#")))
	if name == "" {
		return fmt.Errorf("channel name is empty")
	}

	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO channels (name) VALUES (?)`, name)
	if err != nil {
		return fmt.Errorf("add channel %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.logger.Info("channel registered", "channel", name)
	}
	return nil
}

// ListChannels returns registered rooms in registration order.
func (r *SQLiteRegistry) ListChannels(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM channels ORDER BY added_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}
