package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// BillingRepositoryPG implements domain.BillingRepository.
type BillingRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewBillingRepository creates a new billing repository backed by PostgreSQL.
func NewBillingRepository(pool *pgxpool.Pool) *BillingRepositoryPG {
	return &BillingRepositoryPG{pool: pool}
}

// ListPlans returns all purchasable plans.
func (r *BillingRepositoryPG) ListPlans(ctx context.Context) ([]domain.BillingPlan, error) {
	query := `
SELECT id, name, price, credits, features, is_best_value, created_at, updated_at
FROM billing_plans
ORDER BY price ASC;
`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.BillingPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

// GetPlan fetches one plan by identifier.
func (r *BillingRepositoryPG) GetPlan(ctx context.Context, id string) (*domain.BillingPlan, error) {
	query := `
SELECT id, name, price, credits, features, is_best_value, created_at, updated_at
FROM billing_plans
WHERE id = $1;
`
	plan, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return plan, nil
}

func scanPlan(row pgx.Row) (*domain.BillingPlan, error) {
	var plan domain.BillingPlan
	var features []byte
	if err := row.Scan(&plan.ID, &plan.Name, &plan.Price, &plan.Credits, &features, &plan.IsBestValue, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
		return nil, err
	}
	if len(features) > 0 {
		_ = json.Unmarshal(features, &plan.Features)
	}
	return &plan, nil
}

// GetUserCredits returns the balance row, defaulting to zero for unknown users.
func (r *BillingRepositoryPG) GetUserCredits(ctx context.Context, userID string) (*domain.UserCredit, error) {
	query := `SELECT user_id, credits_balance, last_updated FROM user_credits WHERE user_id = $1;`
	row := r.pool.QueryRow(ctx, query, userID)
	var uc domain.UserCredit
	if err := row.Scan(&uc.UserID, &uc.CreditsBalance, &uc.LastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.UserCredit{UserID: userID, CreditsBalance: 0, LastUpdated: time.Now()}, nil
		}
		return nil, err
	}
	return &uc, nil
}

// AddCredits adjusts a user's balance, creating the row when missing.
func (r *BillingRepositoryPG) AddCredits(ctx context.Context, userID string, delta int) error {
	query := `
INSERT INTO user_credits (user_id, credits_balance, last_updated)
VALUES ($1, GREATEST($2, 0), now())
ON CONFLICT (user_id)
DO UPDATE SET credits_balance = GREATEST(user_credits.credits_balance + $2, 0), last_updated = now();
`
	_, err := r.pool.Exec(ctx, query, userID, delta)
	return err
}

// CreateTransaction records a pending purchase.
func (r *BillingRepositoryPG) CreateTransaction(ctx context.Context, tx *domain.CreditTransaction) error {
	query := `
INSERT INTO credit_transactions
    (id, transaction_id, user_id, plan_id, credits_added, amount_paid, payment_method, payment_status, gateway_order_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''));
`
	_, err := r.pool.Exec(ctx, query,
		tx.ID,
		tx.TransactionID,
		tx.UserID,
		tx.PlanID,
		tx.CreditsAdded,
		tx.AmountPaid,
		tx.PaymentMethod,
		tx.PaymentStatus,
		tx.GatewayOrderID,
	)
	return err
}

// GetTransaction fetches a purchase by its public transaction id.
func (r *BillingRepositoryPG) GetTransaction(ctx context.Context, transactionID string) (*domain.CreditTransaction, error) {
	query := `
SELECT id, transaction_id, user_id, plan_id, credits_added, amount_paid, payment_method,
       payment_status, COALESCE(gateway_order_id, ''), COALESCE(gateway_payment_id, ''), created_at, updated_at
FROM credit_transactions
WHERE transaction_id = $1;
`
	row := r.pool.QueryRow(ctx, query, transactionID)
	var tx domain.CreditTransaction
	if err := row.Scan(
		&tx.ID,
		&tx.TransactionID,
		&tx.UserID,
		&tx.PlanID,
		&tx.CreditsAdded,
		&tx.AmountPaid,
		&tx.PaymentMethod,
		&tx.PaymentStatus,
		&tx.GatewayOrderID,
		&tx.GatewayPaymentID,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// UpdateTransactionStatus moves a pending purchase to a terminal state.
func (r *BillingRepositoryPG) UpdateTransactionStatus(ctx context.Context, transactionID string, status domain.PaymentStatus, gatewayPaymentID string) error {
	query := `
UPDATE credit_transactions
SET payment_status = $2,
    gateway_payment_id = COALESCE(NULLIF($3, ''), gateway_payment_id),
    updated_at = now()
WHERE transaction_id = $1 AND payment_status = 'pending';
`
	tag, err := r.pool.Exec(ctx, query, transactionID, status, gatewayPaymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.BillingRepository = (*BillingRepositoryPG)(nil)
