package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var bootstrapStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT UNIQUE,
		phone_number TEXT UNIQUE,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		ip_address TEXT,
		country_code TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS ix_jobs_user_created ON jobs (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS history (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		pdf_name TEXT NOT NULL,
		title TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_history_user_created ON history (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS billing_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		credits INT NOT NULL,
		features JSONB NOT NULL DEFAULT '[]',
		is_best_value BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS user_credits (
		user_id TEXT PRIMARY KEY,
		credits_balance INT NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_transactions (
		id UUID PRIMARY KEY,
		transaction_id TEXT UNIQUE NOT NULL,
		user_id TEXT NOT NULL,
		plan_id TEXT REFERENCES billing_plans (id),
		credits_added INT NOT NULL,
		amount_paid DOUBLE PRECISION NOT NULL,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		gateway_order_id TEXT,
		gateway_payment_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ix_credit_tx_user ON credit_transactions (user_id)`,
	`INSERT INTO billing_plans (id, name, price, credits, features, is_best_value) VALUES
		('starter', 'Starter', 99, 10, '["10 paper credits"]', FALSE),
		('standard', 'Standard', 249, 30, '["30 paper credits", "Priority processing"]', TRUE),
		('premium', 'Premium', 499, 75, '["75 paper credits", "Priority processing"]', FALSE)
	ON CONFLICT (id) DO NOTHING`,
}

// Bootstrap creates the service schema if it does not exist yet. Statements are
// idempotent so repeated startups are safe.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range bootstrapStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
