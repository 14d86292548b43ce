package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

type planDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Credits     int      `json:"credits"`
	Features    []string `json:"features"`
	IsBestValue bool     `json:"is_best_value"`
}

type purchaseRequest struct {
	PlanID        string `json:"plan_id"`
	PaymentMethod string `json:"payment_method"`
}

type purchaseResponse struct {
	TransactionID string  `json:"transaction_id"`
	OrderID       string  `json:"order_id"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
}

type purchaseCompleteRequest struct {
	TransactionID    string `json:"transaction_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Status           string `json:"status"`
}

// Plans lists the purchasable credit bundles.
func (a *App) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := a.Billing.ListPlans(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("list plans failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load plans")
		return
	}
	out := make([]planDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, planDTO{
			ID:          p.ID,
			Name:        p.Name,
			Price:       p.Price,
			Credits:     p.Credits,
			Features:    p.Features,
			IsBestValue: p.IsBestValue,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"plans": out})
}

// Credits reports the caller's current balance.
func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	credits, err := a.Billing.GetUserCredits(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("get credits failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credits")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"credits_balance": credits.CreditsBalance,
		"last_updated":    credits.LastUpdated.UTC().Format(time.RFC3339),
	})
}

// Purchase opens a pending credit transaction against the payment gateway.
// The gateway integration is a mock: order ids are generated locally and the
// purchase is completed by a follow-up call rather than a gateway webhook.
func (a *App) Purchase(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	plan, err := a.Billing.GetPlan(r.Context(), req.PlanID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "plan not found")
		return
	}

	method := req.PaymentMethod
	if method == "" {
		method = "mock"
	}
	tx := &domain.CreditTransaction{
		ID:             uuid.NewString(),
		TransactionID:  fmt.Sprintf("txn_%s", uuid.NewString()[:8]),
		UserID:         userID,
		PlanID:         plan.ID,
		CreditsAdded:   plan.Credits,
		AmountPaid:     plan.Price,
		PaymentMethod:  method,
		PaymentStatus:  domain.PaymentStatusPending,
		GatewayOrderID: fmt.Sprintf("order_%s", uuid.NewString()[:12]),
	}
	if err := a.Billing.CreateTransaction(r.Context(), tx); err != nil {
		a.Logger.Error().Err(err).Msg("create transaction failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start purchase")
		return
	}
	a.json(w, http.StatusCreated, purchaseResponse{
		TransactionID: tx.TransactionID,
		OrderID:       tx.GatewayOrderID,
		Amount:        tx.AmountPaid,
		Status:        string(tx.PaymentStatus),
	})
}

// PurchaseComplete settles a pending transaction with the gateway outcome.
// A completed payment credits the balance; a failed one only records the
// failure.
func (a *App) PurchaseComplete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req purchaseCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	outcome := domain.PaymentStatusCompleted
	switch req.Status {
	case "", string(domain.PaymentStatusCompleted):
	case string(domain.PaymentStatusFailed):
		outcome = domain.PaymentStatusFailed
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "status must be completed or failed")
		return
	}

	tx, err := a.Billing.GetTransaction(r.Context(), req.TransactionID)
	if err != nil || tx.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "transaction not found")
		return
	}
	if tx.PaymentStatus != domain.PaymentStatusPending {
		a.error(w, http.StatusConflict, "conflict", "transaction already settled")
		return
	}

	paymentID := req.GatewayPaymentID
	if paymentID == "" && outcome == domain.PaymentStatusCompleted {
		paymentID = fmt.Sprintf("pay_%s", uuid.NewString()[:12])
	}
	if err := a.Billing.UpdateTransactionStatus(r.Context(), req.TransactionID, outcome, paymentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusConflict, "conflict", "transaction already settled")
			return
		}
		a.Logger.Error().Err(err).Msg("settle transaction failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to complete purchase")
		return
	}

	creditsAdded := 0
	if outcome == domain.PaymentStatusCompleted {
		if err := a.Billing.AddCredits(r.Context(), userID, tx.CreditsAdded); err != nil {
			a.Logger.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("credit grant failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to grant credits")
			return
		}
		creditsAdded = tx.CreditsAdded
	}
	a.json(w, http.StatusOK, map[string]any{
		"transaction_id": tx.TransactionID,
		"status":         string(outcome),
		"credits_added":  creditsAdded,
	})
}
