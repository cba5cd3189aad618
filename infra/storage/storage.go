// Package storage persists plans, subscriptions, payments and webhook
// audit rows through database/sql. SQLite and PostgreSQL share one
// repository implementation; only placeholders and schema differ.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/provider"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var _ provider.Store = (*SQLStore)(nil)
var _ provider.AuditSink = (*SQLStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implements provider.Repository on top of a querier
type repo struct {
	q      querier
	driver string

	// retry is set for SQLite outside transactions, where SQLITE_BUSY is
	// worth waiting out
	retry bool
}

// SQLStore is a provider.Store backed by a database/sql connection pool
type SQLStore struct {
	*repo
	db   *sql.DB
	path string
}

// Open connects to driver/dsn and prepares the schema
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLiteStore(ctx, dsn)
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func newSQLStore(db *sql.DB, driver, path string) *SQLStore {
	return &SQLStore{
		repo: &repo{q: db, driver: driver, retry: driver == DriverSQLite},
		db:   db,
		path: path,
	}
}

// DB returns the underlying pool
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Driver returns the database driver name
func (s *SQLStore) Driver() string {
	return s.driver
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is rolled back when
// fn returns an error or panics.
func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo provider.Repository) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &repo{q: tx, driver: s.driver}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to roll back transaction", rbErr, logger.LogContext{
				Fields: map[string]any{"driver": s.driver},
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// bind rewrites ? placeholders to $n for PostgreSQL
func (r *repo) bind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (r *repo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := r.withRetry(ctx, func() error {
		var err error
		res, err = r.q.ExecContext(ctx, r.bind(query), args...)
		return err
	})
	return res, err
}

// insert runs an INSERT ... RETURNING id statement
func (r *repo) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func() error {
		return r.q.QueryRowContext(ctx, r.bind(query), args...).Scan(&id)
	})
	return id, err
}

// withRetry retries operation while SQLite reports a locked database,
// backing off 10ms, 20ms, 40ms
func (r *repo) withRetry(ctx context.Context, operation func() error) error {
	const maxRetries = 3

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !r.retry || !isBusy(err) {
			return err
		}

		lastErr = err
		if attempt == maxRetries {
			break
		}

		backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
		logger.Debug("SQLite busy, retrying", logger.LogContext{
			Fields: map[string]any{"backoff": backoff.String(), "attempt": attempt + 1},
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries+1, lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return provider.ErrRecordNotFound
	}
	return err
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return provider.ErrRecordNotFound
	}
	return nil
}

func stamp(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// GetPlan returns a plan by id
func (r *repo) GetPlan(ctx context.Context, id int64) (*provider.Plan, error) {
	plan := &provider.Plan{}
	err := r.q.QueryRowContext(ctx, r.bind(`
		SELECT id, name, monthly_price, yearly_price, is_active
		FROM plans WHERE id = ?`), id).
		Scan(&plan.ID, &plan.Name, &plan.MonthlyPrice, &plan.YearlyPrice, &plan.IsActive)
	if err != nil {
		return nil, notFound(err)
	}
	return plan, nil
}

// CreatePlan inserts a plan and sets its ID
func (r *repo) CreatePlan(ctx context.Context, plan *provider.Plan) error {
	id, err := r.insert(ctx, `
		INSERT INTO plans (name, monthly_price, yearly_price, is_active)
		VALUES (?, ?, ?, ?) RETURNING id`,
		plan.Name, plan.MonthlyPrice.StringFixed(2), plan.YearlyPrice.StringFixed(2), plan.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	plan.ID = id
	return nil
}

const subscriptionColumns = `id, user_id, plan_id, billing_frequency, start_date, end_date, auto_renew,
	status, is_active, payment_provider, provider_subscription_id, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*provider.Subscription, error) {
	sub := &provider.Subscription{}
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.BillingFrequency, &sub.StartDate, &sub.EndDate,
		&sub.AutoRenew, &sub.Status, &sub.IsActive, &sub.PaymentProvider, &sub.ProviderSubscriptionID,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return sub, nil
}

// CreateSubscription inserts sub and sets its ID
func (r *repo) CreateSubscription(ctx context.Context, sub *provider.Subscription) error {
	now := time.Now().UTC()
	stamp(&sub.CreatedAt, now)
	stamp(&sub.UpdatedAt, now)

	id, err := r.insert(ctx, `
		INSERT INTO subscriptions (user_id, plan_id, billing_frequency, start_date, end_date, auto_renew,
			status, is_active, payment_provider, provider_subscription_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		sub.UserID, sub.PlanID, string(sub.BillingFrequency), sub.StartDate.UTC(), sub.EndDate.UTC(), sub.AutoRenew,
		string(sub.Status), sub.IsActive, sub.PaymentProvider, sub.ProviderSubscriptionID,
		sub.CreatedAt.UTC(), sub.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	sub.ID = id
	return nil
}

// GetSubscription returns a subscription by id
func (r *repo) GetSubscription(ctx context.Context, id int64) (*provider.Subscription, error) {
	return scanSubscription(r.q.QueryRowContext(ctx,
		r.bind(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`), id))
}

// GetSubscriptionByProviderID returns the subscription a provider knows as providerSubscriptionID
func (r *repo) GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*provider.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, provider.ErrRecordNotFound
	}
	return scanSubscription(r.q.QueryRowContext(ctx,
		r.bind(`SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE provider_subscription_id = ? ORDER BY id DESC LIMIT 1`), providerSubscriptionID))
}

// UpdateSubscription writes every mutable column of sub
func (r *repo) UpdateSubscription(ctx context.Context, sub *provider.Subscription) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}

	res, err := r.exec(ctx, `
		UPDATE subscriptions SET plan_id = ?, billing_frequency = ?, start_date = ?, end_date = ?,
			auto_renew = ?, status = ?, is_active = ?, payment_provider = ?, provider_subscription_id = ?,
			updated_at = ?
		WHERE id = ?`,
		sub.PlanID, string(sub.BillingFrequency), sub.StartDate.UTC(), sub.EndDate.UTC(), sub.AutoRenew,
		string(sub.Status), sub.IsActive, sub.PaymentProvider, sub.ProviderSubscriptionID,
		sub.UpdatedAt.UTC(), sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return affectedOrNotFound(res)
}

// CreatePayment inserts payment and sets its ID
func (r *repo) CreatePayment(ctx context.Context, payment *provider.Payment) error {
	now := time.Now().UTC()
	stamp(&payment.CreatedAt, now)
	stamp(&payment.UpdatedAt, now)
	stamp(&payment.PaymentDate, now)

	id, err := r.insert(ctx, `
		INSERT INTO payments (subscription_id, amount, currency, payment_date, payment_method,
			reference_number, status, payment_response, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		nullableID(payment.SubscriptionID), payment.Amount.String(), payment.Currency, payment.PaymentDate.UTC(),
		payment.PaymentMethod, payment.ReferenceNumber, string(payment.Status), payment.PaymentResponse,
		payment.UpdatedBy, payment.CreatedAt.UTC(), payment.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	payment.ID = id
	return nil
}

// GetPaymentByReference returns the newest payment with the given reference number
func (r *repo) GetPaymentByReference(ctx context.Context, reference string) (*provider.Payment, error) {
	if reference == "" {
		return nil, provider.ErrRecordNotFound
	}

	payment := &provider.Payment{}
	var subscriptionID sql.NullInt64
	err := r.q.QueryRowContext(ctx, r.bind(`
		SELECT id, subscription_id, amount, currency, payment_date, payment_method, reference_number,
			status, payment_response, updated_by, created_at, updated_at
		FROM payments WHERE reference_number = ? ORDER BY id DESC LIMIT 1`), reference).
		Scan(&payment.ID, &subscriptionID, &payment.Amount, &payment.Currency, &payment.PaymentDate,
			&payment.PaymentMethod, &payment.ReferenceNumber, &payment.Status, &payment.PaymentResponse,
			&payment.UpdatedBy, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	payment.SubscriptionID = subscriptionID.Int64
	return payment, nil
}

// UpdatePayment writes every mutable column of payment
func (r *repo) UpdatePayment(ctx context.Context, payment *provider.Payment) error {
	if payment.UpdatedAt.IsZero() {
		payment.UpdatedAt = time.Now().UTC()
	}

	res, err := r.exec(ctx, `
		UPDATE payments SET subscription_id = ?, amount = ?, currency = ?, payment_method = ?,
			status = ?, payment_response = ?, updated_by = ?, updated_at = ?
		WHERE id = ?`,
		nullableID(payment.SubscriptionID), payment.Amount.String(), payment.Currency, payment.PaymentMethod,
		string(payment.Status), payment.PaymentResponse, payment.UpdatedBy, payment.UpdatedAt.UTC(), payment.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return affectedOrNotFound(res)
}

// WebhookRecord is a stored webhook audit row
type WebhookRecord struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"eventId"`
	Provider  string    `json:"provider"`
	EventType string    `json:"eventType"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordWebhook implements provider.AuditSink
func (s *SQLStore) RecordWebhook(ctx context.Context, event *provider.WebhookEvent, result *provider.WebhookResult) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	status, message := "", ""
	if result != nil {
		status, message = result.Status, result.Message
	}

	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	_, err = s.exec(ctx, `
		INSERT INTO webhook_events (event_id, provider, event_type, status, message, payload, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.Provider, event.EventType, status, message, string(payload),
		receivedAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record webhook: %w", err)
	}
	return nil
}

// RecentWebhooks returns the newest audit rows for providerName, or for
// every provider when providerName is empty
func (s *SQLStore) RecentWebhooks(ctx context.Context, providerName string, limit int) ([]WebhookRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, event_id, provider, event_type, status, message, payload, created_at FROM webhook_events`
	args := []any{}
	if providerName != "" {
		query += ` WHERE provider = ?`
		args = append(args, providerName)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook events: %w", err)
	}
	defer rows.Close()

	var out []WebhookRecord
	for rows.Next() {
		var rec WebhookRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Provider, &rec.EventType, &rec.Status,
			&rec.Message, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SeedPlans inserts plans that do not exist yet, matched by name
func (s *SQLStore) SeedPlans(ctx context.Context, plans []provider.Plan) error {
	for i := range plans {
		var exists int
		err := s.q.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM plans WHERE name = ?`), plans[i].Name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check plan %q: %w", plans[i].Name, err)
		}
		if exists > 0 {
			continue
		}
		if err := s.CreatePlan(ctx, &plans[i]); err != nil {
			return err
		}
	}
	return nil
}

// DefaultPlans is the catalogue created by SeedPlans at first start
func DefaultPlans() []provider.Plan {
	return []provider.Plan{
		{Name: "Free", MonthlyPrice: decimal.Zero, YearlyPrice: decimal.Zero, IsActive: true},
		{Name: "Pro", MonthlyPrice: decimal.RequireFromString("19.99"), YearlyPrice: decimal.RequireFromString("199.99"), IsActive: true},
		{Name: "Business", MonthlyPrice: decimal.RequireFromString("49.99"), YearlyPrice: decimal.RequireFromString("499.99"), IsActive: true},
	}
}
