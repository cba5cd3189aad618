package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mstgnz/paykit/infra/logger"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS plans (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	monthly_price NUMERIC(12,2) NOT NULL DEFAULT 0,
	yearly_price NUMERIC(12,2) NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	plan_id BIGINT NOT NULL REFERENCES plans(id),
	billing_frequency TEXT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	end_date TIMESTAMPTZ NOT NULL,
	auto_renew BOOLEAN NOT NULL DEFAULT TRUE,
	status TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT FALSE,
	payment_provider TEXT NOT NULL DEFAULT '',
	provider_subscription_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_provider_id ON subscriptions(provider_subscription_id);

CREATE TABLE IF NOT EXISTS payments (
	id BIGSERIAL PRIMARY KEY,
	subscription_id BIGINT REFERENCES subscriptions(id),
	amount NUMERIC(12,2) NOT NULL,
	currency CHAR(3) NOT NULL,
	payment_date TIMESTAMPTZ NOT NULL,
	payment_method TEXT NOT NULL DEFAULT '',
	reference_number TEXT NOT NULL,
	status TEXT NOT NULL,
	payment_response TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_reference ON payments(reference_number);

CREATE TABLE IF NOT EXISTS webhook_events (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	event_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	payload JSONB NOT NULL DEFAULT '{}',
	received_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_webhook_events_provider_event ON webhook_events(provider, event_id);
`

// NewPostgresStore connects to dsn, retrying the first ping a few times
// while the database starts, and prepares the schema
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	const attempts = 5
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}
		if attempt == attempts {
			db.Close()
			return nil, fmt.Errorf("failed to ping database after %d attempts: %w", attempts, err)
		}

		logger.Warn("Failed to ping database, retrying", logger.LogContext{
			Fields: map[string]any{"attempt": attempt, "error": err.Error()},
		})
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("PostgreSQL storage initialized")
	return newSQLStore(db, DriverPostgres, ""), nil
}
