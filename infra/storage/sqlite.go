package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mstgnz/paykit/infra/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS plans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	monthly_price TEXT NOT NULL DEFAULT '0',
	yearly_price TEXT NOT NULL DEFAULT '0',
	is_active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	plan_id INTEGER NOT NULL REFERENCES plans(id),
	billing_frequency TEXT NOT NULL,
	start_date TIMESTAMP NOT NULL,
	end_date TIMESTAMP NOT NULL,
	auto_renew BOOLEAN NOT NULL DEFAULT 1,
	status TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 0,
	payment_provider TEXT NOT NULL DEFAULT '',
	provider_subscription_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_provider_id ON subscriptions(provider_subscription_id);

CREATE TABLE IF NOT EXISTS payments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subscription_id INTEGER REFERENCES subscriptions(id),
	amount TEXT NOT NULL,
	currency TEXT NOT NULL,
	payment_date TIMESTAMP NOT NULL,
	payment_method TEXT NOT NULL DEFAULT '',
	reference_number TEXT NOT NULL,
	status TEXT NOT NULL,
	payment_response TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_reference ON payments(reference_number);

CREATE TABLE IF NOT EXISTS webhook_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	event_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '{}',
	received_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_webhook_events_provider_event ON webhook_events(provider, event_id);
`

// NewSQLiteStore opens (creating if needed) the SQLite database at dbPath.
// WAL mode and immediate transactions let several processes share the file.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=20000&_txlock=immediate&_foreign_keys=on", dbPath)

	db, err := sql.Open(DriverSQLite, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		logger.Warn("Failed to read SQLite journal mode", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
	}

	logger.Info("SQLite storage initialized", logger.LogContext{
		Fields: map[string]any{"path": dbPath, "journal_mode": journalMode},
	})
	return newSQLStore(db, DriverSQLite, dbPath), nil
}
