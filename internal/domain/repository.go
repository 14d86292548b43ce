package domain

import (
	"context"
	"time"
)

// UserRepository defines access methods for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// JobRepository defines persistence for processing jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// MarkProcessing moves a pending job into the processing state.
	MarkProcessing(ctx context.Context, jobID string) error
	// Finalize writes a terminal status. It must leave already-terminal rows
	// untouched and report whether the row was updated.
	Finalize(ctx context.Context, jobID string, status JobStatus, errMsg string, completedAt time.Time) (bool, error)
	GetByID(ctx context.Context, jobID string) (*Job, error)
}

// HistoryRepository handles persistence for retained results.
type HistoryRepository interface {
	Create(ctx context.Context, item *HistoryItem) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]HistoryItem, error)
	GetByID(ctx context.Context, userID, id string) (*HistoryItem, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// BillingRepository handles plans, balances, and credit transactions.
type BillingRepository interface {
	ListPlans(ctx context.Context) ([]BillingPlan, error)
	GetPlan(ctx context.Context, id string) (*BillingPlan, error)
	GetUserCredits(ctx context.Context, userID string) (*UserCredit, error)
	AddCredits(ctx context.Context, userID string, delta int) error
	CreateTransaction(ctx context.Context, tx *CreditTransaction) error
	GetTransaction(ctx context.Context, transactionID string) (*CreditTransaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID string, status PaymentStatus, gatewayPaymentID string) error
}
