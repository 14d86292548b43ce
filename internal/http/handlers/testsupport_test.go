package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"server/internal/auth"
	"server/internal/domain"
	"server/internal/infra"
)

const testJWTSecret = "handlers-test-secret"

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*domain.User{}}
}

func (m *memUserRepo) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if (user.Email != "" && u.Email == user.Email) || (user.PhoneNumber != "" && u.PhoneNumber == user.PhoneNumber) {
			return domain.ErrDuplicate
		}
	}
	cp := *user
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PhoneNumber == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *user
	cp.UpdatedAt = time.Now().UTC()
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type memHistoryRepo struct {
	mu    sync.Mutex
	items []domain.HistoryItem
}

func (m *memHistoryRepo) Create(ctx context.Context, item *domain.HistoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *item)
	return nil
}

func (m *memHistoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []domain.HistoryItem
	for i := len(m.items) - 1; i >= 0; i-- {
		it := m.items[i]
		if it.UserID == userID && it.ExpiresAt.After(now) {
			out = append(out, it)
		}
	}
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memHistoryRepo) GetByID(ctx context.Context, userID, id string) (*domain.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ID == id && it.UserID == userID && it.ExpiresAt.After(time.Now()) {
			cp := it
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memHistoryRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var kept []domain.HistoryItem
	var deleted int64
	for _, it := range m.items {
		if it.ExpiresAt.After(now) {
			kept = append(kept, it)
		} else {
			deleted++
		}
	}
	m.items = kept
	return deleted, nil
}

type memBillingRepo struct {
	mu       sync.Mutex
	plans    []domain.BillingPlan
	balances map[string]int
	txs      map[string]*domain.CreditTransaction
}

func newMemBillingRepo(plans ...domain.BillingPlan) *memBillingRepo {
	return &memBillingRepo{
		plans:    plans,
		balances: map[string]int{},
		txs:      map[string]*domain.CreditTransaction{},
	}
}

func (m *memBillingRepo) ListPlans(ctx context.Context) ([]domain.BillingPlan, error) {
	return m.plans, nil
}

func (m *memBillingRepo) GetPlan(ctx context.Context, id string) (*domain.BillingPlan, error) {
	for _, p := range m.plans {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memBillingRepo) GetUserCredits(ctx context.Context, userID string) (*domain.UserCredit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.UserCredit{
		UserID:         userID,
		CreditsBalance: m.balances[userID],
		LastUpdated:    time.Now().UTC(),
	}, nil
}

func (m *memBillingRepo) AddCredits(ctx context.Context, userID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.balances[userID] + delta
	if next < 0 {
		next = 0
	}
	m.balances[userID] = next
	return nil
}

func (m *memBillingRepo) CreateTransaction(ctx context.Context, tx *domain.CreditTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.txs[tx.TransactionID] = &cp
	return nil
}

func (m *memBillingRepo) GetTransaction(ctx context.Context, transactionID string) (*domain.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.txs[transactionID]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memBillingRepo) UpdateTransactionStatus(ctx context.Context, transactionID string, status domain.PaymentStatus, gatewayPaymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[transactionID]
	if !ok || tx.PaymentStatus != domain.PaymentStatusPending {
		return domain.ErrNotFound
	}
	tx.PaymentStatus = status
	tx.GatewayPaymentID = gatewayPaymentID
	return nil
}

func newTestApp() *App {
	logger := zerolog.Nop()
	return &App{
		Logger: logger,
		Cfg: &infra.Config{
			JWTSecret:            testJWTSecret,
			HistoryRetentionDays: 10,
		},
		Users:     newMemUserRepo(),
		History:   &memHistoryRepo{},
		Billing:   newMemBillingRepo(),
		Validator: auth.NewValidator(testJWTSecret, false, logger),
	}
}
