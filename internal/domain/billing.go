package domain

import "time"

// PaymentStatus enumerates credit-transaction states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// BillingPlan describes a purchasable credit bundle.
type BillingPlan struct {
	ID          string
	Name        string
	Price       float64
	Credits     int
	Features    []string
	IsBestValue bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredit is a user's current credit balance.
type UserCredit struct {
	UserID         string
	CreditsBalance int
	LastUpdated    time.Time
}

// CreditTransaction records one credit purchase through the payment gateway.
type CreditTransaction struct {
	ID               string
	TransactionID    string
	UserID           string
	PlanID           string
	CreditsAdded     int
	AmountPaid       float64
	PaymentMethod    string
	PaymentStatus    PaymentStatus
	GatewayOrderID   string
	GatewayPaymentID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
