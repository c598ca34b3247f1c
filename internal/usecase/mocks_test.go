//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/domain/ports/repository"
	"esim-reseller/internal/usecase"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// fakeTx is the opaque transaction handle handed to callbacks by MockTxManager.
type fakeTx struct{}

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	Calls      int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the callback immediately; the in-memory repositories ignore the
// handle, so there is nothing to commit or roll back.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Calls++
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, fakeTx{})
}

// -----------------------------
// In-memory repositories
// -----------------------------

type MockUserRepo struct {
	mu    sync.RWMutex
	store map[string]*model.User
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo { return &MockUserRepo{store: make(map[string]*model.User)} }

func (m *MockUserRepo) Add(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.ID] = &cp
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) FindByReferralCode(ctx context.Context, tx repository.Tx, code string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type MockBundleRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Bundle
}

var _ repository.BundleRepository = (*MockBundleRepo)(nil)

func NewMockBundleRepo() *MockBundleRepo {
	return &MockBundleRepo{store: make(map[string]*model.Bundle)}
}

func (m *MockBundleRepo) Add(b *model.Bundle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.store[b.Code] = &cp
}

func (m *MockBundleRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.store[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

type MockOrderRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Order
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo { return &MockOrderRepo{store: make(map[string]*model.Order)} }

func (m *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.store[o.ID] = &cp
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepo) FindByUserAndID(ctx context.Context, tx repository.Tx, userID, id string) (*model.Order, error) {
	o, err := m.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (m *MockOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Order
	for _, o := range m.store {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ApplyPatch mirrors the production semantics: only pending orders change.
func (m *MockOrderRepo) ApplyPatch(ctx context.Context, tx repository.Tx, id string, patch model.OrderPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok || o.OrderStatus != model.OrderStatusPending {
		return false, nil
	}
	if patch.PaymentStatus != nil {
		o.PaymentStatus = *patch.PaymentStatus
	}
	if patch.OrderStatus != nil {
		o.OrderStatus = *patch.OrderStatus
	}
	if patch.PaymentIntentCode != nil {
		o.PaymentIntentCode = *patch.PaymentIntentCode
	}
	if patch.FulfillmentOrderID != nil {
		o.FulfillmentOrderID = patch.FulfillmentOrderID
	}
	if patch.CallbackTime != nil {
		o.CallbackTime = patch.CallbackTime
	}
	return true, nil
}

type MockWalletRepo struct {
	mu    sync.RWMutex
	store map[string]*model.UserWallet // by user id
}

var _ repository.WalletRepository = (*MockWalletRepo)(nil)

func NewMockWalletRepo() *MockWalletRepo {
	return &MockWalletRepo{store: make(map[string]*model.UserWallet)}
}

func (m *MockWalletRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserWallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.store {
		if w.ID == id {
			cp := *w
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockWalletRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.UserWallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MockWalletRepo) Create(ctx context.Context, tx repository.Tx, w *model.UserWallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[w.UserID]; ok {
		return nil
	}
	cp := *w
	m.store[w.UserID] = &cp
	return nil
}

func (m *MockWalletRepo) ApplyDelta(ctx context.Context, tx repository.Tx, userID string, delta int64) (*model.UserWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	if w.Amount+delta < 0 {
		return nil, domain.ErrInsufficientFunds
	}
	w.Amount += delta
	w.UpdatedAt = time.Now()
	cp := *w
	return &cp, nil
}

type MockWalletTxnRepo struct {
	mu   sync.RWMutex
	rows []*model.WalletTransaction
}

var _ repository.WalletTransactionRepository = (*MockWalletTxnRepo)(nil)

func NewMockWalletTxnRepo() *MockWalletTxnRepo { return &MockWalletTxnRepo{} }

func (m *MockWalletTxnRepo) Save(ctx context.Context, tx repository.Tx, t *model.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockWalletTxnRepo) ListByWallet(ctx context.Context, tx repository.Tx, walletID string, offset, limit int) ([]*model.WalletTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.WalletTransaction
	for _, t := range m.rows {
		if t.WalletID == walletID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockWalletTxnRepo) SumByWallet(ctx context.Context, tx repository.Tx, walletID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, t := range m.rows {
		if t.WalletID == walletID {
			sum += t.Amount
		}
	}
	return sum, nil
}

type MockPromotionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Promotion // by code
}

var _ repository.PromotionRepository = (*MockPromotionRepo)(nil)

func NewMockPromotionRepo() *MockPromotionRepo {
	return &MockPromotionRepo{store: make(map[string]*model.Promotion)}
}

func (m *MockPromotionRepo) Add(p *model.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.Code] = &cp
}

func (m *MockPromotionRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPromotionRepo) FindByRuleID(ctx context.Context, tx repository.Tx, ruleID string) (*model.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.RuleID == ruleID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPromotionRepo) IncrementUsage(ctx context.Context, tx repository.Tx, code string, maxUsage int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[code]
	if !ok || p.TimesUsed >= maxUsage {
		return false, nil
	}
	p.TimesUsed++
	return true, nil
}

type MockRuleRepo struct {
	mu    sync.RWMutex
	store map[string]*model.PromotionRule
}

var _ repository.PromotionRuleRepository = (*MockRuleRepo)(nil)

func NewMockRuleRepo() *MockRuleRepo {
	return &MockRuleRepo{store: make(map[string]*model.PromotionRule)}
}

func (m *MockRuleRepo) Add(r *model.PromotionRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.store[r.ID] = &cp
}

func (m *MockRuleRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromotionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type MockUsageRepo struct {
	mu   sync.RWMutex
	rows []*model.PromotionUsage
}

var _ repository.PromotionUsageRepository = (*MockUsageRepo)(nil)

func NewMockUsageRepo() *MockUsageRepo { return &MockUsageRepo{} }

func (m *MockUsageRepo) Save(ctx context.Context, tx repository.Tx, u *model.PromotionUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Status == model.UsageStatusCompleted && m.hasCompletedLocked(u.UserID, u.PromotionCode, u.ReferralCode) {
		return domain.ErrPromotionAlreadyUsed
	}
	cp := *u
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockUsageRepo) hasCompletedLocked(userID string, promoCode, referralCode *string) bool {
	for _, r := range m.rows {
		if r.UserID != userID || r.Status != model.UsageStatusCompleted {
			continue
		}
		if promoCode != nil && r.PromotionCode != nil && *r.PromotionCode == *promoCode {
			return true
		}
		if referralCode != nil && r.ReferralCode != nil && *r.ReferralCode == *referralCode {
			return true
		}
	}
	return false
}

func (m *MockUsageRepo) ListByUserAndPromoCode(ctx context.Context, tx repository.Tx, userID, code string, status *model.UsageStatus) ([]*model.PromotionUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PromotionUsage
	for _, r := range m.rows {
		if r.UserID == userID && r.PromotionCode != nil && *r.PromotionCode == code {
			if status != nil && r.Status != *status {
				continue
			}
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockUsageRepo) ListByUserAndReferralCode(ctx context.Context, tx repository.Tx, userID, code string) ([]*model.PromotionUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PromotionUsage
	for _, r := range m.rows {
		if r.UserID == userID && r.ReferralCode != nil && *r.ReferralCode == code {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockUsageRepo) CountByReferralCode(ctx context.Context, tx repository.Tx, code string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rows {
		if r.ReferralCode != nil && *r.ReferralCode == code {
			n++
		}
	}
	return n, nil
}

func (m *MockUsageRepo) FindPendingReferralByUser(ctx context.Context, tx repository.Tx, userID string) (*model.PromotionUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var oldest *model.PromotionUsage
	for _, r := range m.rows {
		if r.UserID == userID && r.ReferralCode != nil && r.Status == model.UsageStatusPending {
			if oldest == nil || r.CreatedAt.Before(oldest.CreatedAt) {
				oldest = r
			}
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *oldest
	return &cp, nil
}

func (m *MockUsageRepo) ListCompletedByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PromotionUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PromotionUsage
	for _, r := range m.rows {
		if r.UserID == userID && r.Status == model.UsageStatusCompleted {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockUsageRepo) UpdateStatusByPromoCode(ctx context.Context, tx repository.Tx, userID, code string, status model.UsageStatus) error {
	return m.updateStatus(userID, &code, nil, status)
}

func (m *MockUsageRepo) UpdateStatusByReferralCode(ctx context.Context, tx repository.Tx, userID, code string, status model.UsageStatus) error {
	return m.updateStatus(userID, nil, &code, status)
}

func (m *MockUsageRepo) updateStatus(userID string, promoCode, referralCode *string, status model.UsageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == model.UsageStatusCompleted && m.hasCompletedLocked(userID, promoCode, referralCode) {
		for _, r := range m.rows {
			if r.UserID == userID && r.Status == model.UsageStatusPending && matchCode(r, promoCode, referralCode) {
				return domain.ErrPromotionAlreadyUsed
			}
		}
		return nil
	}
	for _, r := range m.rows {
		if r.UserID == userID && r.Status == model.UsageStatusPending && matchCode(r, promoCode, referralCode) {
			r.Status = status
		}
	}
	return nil
}

func matchCode(r *model.PromotionUsage, promoCode, referralCode *string) bool {
	if promoCode != nil {
		return r.PromotionCode != nil && *r.PromotionCode == *promoCode
	}
	return r.ReferralCode != nil && *r.ReferralCode == *referralCode
}

type MockProfileRepo struct {
	mu    sync.RWMutex
	store map[string]*model.UserProfile
}

var _ repository.ProfileRepository = (*MockProfileRepo)(nil)

func NewMockProfileRepo() *MockProfileRepo {
	return &MockProfileRepo{store: make(map[string]*model.UserProfile)}
}

func (m *MockProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *MockProfileRepo) FindByUserAndICCID(ctx context.Context, tx repository.Tx, userID, iccid string) (*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.UserID == userID && p.ICCID == iccid {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockProfileRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockProfileRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserProfile
	for _, p := range m.store {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type MockProfileBundleRepo struct {
	mu   sync.RWMutex
	rows []*model.UserProfileBundle
}

var _ repository.ProfileBundleRepository = (*MockProfileBundleRepo)(nil)

func NewMockProfileBundleRepo() *MockProfileBundleRepo { return &MockProfileBundleRepo{} }

func (m *MockProfileBundleRepo) Save(ctx context.Context, tx repository.Tx, b *model.UserProfileBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockProfileBundleRepo) ListByProfile(ctx context.Context, tx repository.Tx, profileID string) ([]*model.UserProfileBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserProfileBundle
	for _, b := range m.rows {
		if b.ProfileID == profileID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockProfileBundleRepo) CountByOrderID(ctx context.Context, tx repository.Tx, orderID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, b := range m.rows {
		if b.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

type MockEventRepo struct {
	mu        sync.Mutex
	processed map[string]bool
}

var _ repository.ProcessedEventRepository = (*MockEventRepo)(nil)

func NewMockEventRepo() *MockEventRepo { return &MockEventRepo{processed: make(map[string]bool)} }

func (m *MockEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[eventID] {
		return domain.ErrDuplicateEvent
	}
	m.processed[eventID] = true
	return nil
}

type MockOutboxRepo struct {
	mu   sync.Mutex
	rows []*model.Notification
}

var _ repository.NotificationOutboxRepository = (*MockOutboxRepo)(nil)

func NewMockOutboxRepo() *MockOutboxRepo { return &MockOutboxRepo{} }

func (m *MockOutboxRepo) Enqueue(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockOutboxRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Notification
	for _, n := range m.rows {
		if n.Status == model.NotificationPending {
			cp := *n
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockOutboxRepo) CountPending(ctx context.Context, tx repository.Tx) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.Status == model.NotificationPending {
			n++
		}
	}
	return n, nil
}

func (m *MockOutboxRepo) MarkSent(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.rows {
		if n.ID == id {
			n.Status = model.NotificationSent
			n.SentAt = &at
		}
	}
	return nil
}

func (m *MockOutboxRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, attempts int, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.rows {
		if n.ID == id {
			n.Attempts = attempts
			if terminal {
				n.Status = model.NotificationFailed
			}
		}
	}
	return nil
}

type MockVoucherRepo struct {
	mu    sync.Mutex
	store map[string]*model.Voucher // by code
}

var _ repository.VoucherRepository = (*MockVoucherRepo)(nil)

func NewMockVoucherRepo() *MockVoucherRepo {
	return &MockVoucherRepo{store: make(map[string]*model.Voucher)}
}

func (m *MockVoucherRepo) Add(v *model.Voucher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.store[v.Code] = &cp
}

func (m *MockVoucherRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MockVoucherRepo) Claim(ctx context.Context, tx repository.Tx, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.store {
		if v.ID == id {
			if !v.IsActive || v.IsUsed {
				return false, nil
			}
			v.IsUsed = true
			v.UsedBy = &userID
			v.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (m *MockOutboxRepo) Pending() []*model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Notification
	for _, n := range m.rows {
		if n.Status == model.NotificationPending {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

// -----------------------------
// Fake adapters
// -----------------------------

type MockPaymentGateway struct {
	mu sync.Mutex

	CreateIntentErr error
	RefundErr       error

	Intents  []*adapter.PaymentIntent
	Canceled []string
	Refunds  map[string]int64
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{Refunds: make(map[string]int64)}
}

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) CreateIntent(ctx context.Context, amount int64, currency, customerEmail string, metadata map[string]string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateIntentErr != nil {
		return nil, g.CreateIntentErr
	}
	pi := &adapter.PaymentIntent{ID: fmt.Sprintf("pi_test_%d", len(g.Intents)+1), ClientSecret: "secret"}
	g.Intents = append(g.Intents, pi)
	return pi, nil
}

func (g *MockPaymentGateway) CancelIntent(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Canceled = append(g.Canceled, intentID)
	return nil
}

func (g *MockPaymentGateway) RefundPayment(ctx context.Context, intentID string, amount int64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefundErr != nil {
		return g.RefundErr
	}
	g.Refunds[intentID] = amount
	return nil
}

func (g *MockPaymentGateway) ParseWebhook(payload []byte, signatureHeader string) (*adapter.WebhookEvent, error) {
	return nil, domain.ErrInvalidArgument
}

type MockCarrierBilling struct {
	mu sync.Mutex

	RequestErr error
	ConfirmErr error

	Requested map[string]int64 // order id -> amount
	Confirmed []string
}

var _ adapter.CarrierBillingGateway = (*MockCarrierBilling)(nil)

func NewMockCarrierBilling() *MockCarrierBilling {
	return &MockCarrierBilling{Requested: make(map[string]int64)}
}

func (c *MockCarrierBilling) Name() string { return "mock-dcb" }

func (c *MockCarrierBilling) RequestCharge(ctx context.Context, msisdn string, amount int64, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RequestErr != nil {
		return c.RequestErr
	}
	c.Requested[orderID] = amount
	return nil
}

func (c *MockCarrierBilling) ConfirmCharge(ctx context.Context, otp, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConfirmErr != nil {
		return c.ConfirmErr
	}
	c.Confirmed = append(c.Confirmed, orderID)
	return nil
}

type MockFulfillmentClient struct {
	mu sync.Mutex

	CreateErr      error
	TopUpErr       error
	Unavailable    bool
	CreatedOrders  []string
	CreatedTopUps  []string
	nextOrderIndex int
}

var _ adapter.FulfillmentClient = (*MockFulfillmentClient)(nil)

func NewMockFulfillmentClient() *MockFulfillmentClient { return &MockFulfillmentClient{} }

func (f *MockFulfillmentClient) CreateOrder(ctx context.Context, bundleCode, uniqueID string) (*adapter.FulfillmentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextOrderIndex++
	f.CreatedOrders = append(f.CreatedOrders, uniqueID)
	return &adapter.FulfillmentOrder{
		OrderID:        fmt.Sprintf("hub-%d", f.nextOrderIndex),
		ICCID:          fmt.Sprintf("89880000000000000%02d", f.nextOrderIndex),
		SMDPAddress:    "smdp.example.com",
		ActivationCode: "AC-" + uniqueID,
		AllowTopUp:     true,
		Validity:       "30d",
	}, nil
}

func (f *MockFulfillmentClient) CreateTopUp(ctx context.Context, bundleCode, fulfillmentOrderID, uniqueID string) (*adapter.FulfillmentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TopUpErr != nil {
		return nil, f.TopUpErr
	}
	f.CreatedTopUps = append(f.CreatedTopUps, uniqueID)
	return &adapter.FulfillmentOrder{OrderID: fulfillmentOrderID, Validity: "30d"}, nil
}

func (f *MockFulfillmentClient) CheckBundleAvailable(ctx context.Context, bundleInfoCode string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Unavailable, nil
}

// -----------------------------
// Wired test environment
// -----------------------------

// testEnv wires every use case against the in-memory repositories, mirroring
// the production dependency graph.
type testEnv struct {
	users          *MockUserRepo
	bundles        *MockBundleRepo
	orders         *MockOrderRepo
	wallets        *MockWalletRepo
	walletTxns     *MockWalletTxnRepo
	promos         *MockPromotionRepo
	rules          *MockRuleRepo
	usages         *MockUsageRepo
	profiles       *MockProfileRepo
	profileBundles *MockProfileBundleRepo
	events         *MockEventRepo
	outbox         *MockOutboxRepo
	vouchers       *MockVoucherRepo
	gateway        *MockPaymentGateway
	carrier        *MockCarrierBilling
	fulfillment    *MockFulfillmentClient
	tm             *MockTxManager

	walletUC       usecase.WalletUseCase
	notifierUC     usecase.NotifierUseCase
	promoUC        usecase.PromotionUseCase
	settlementUC   usecase.SettlementUseCase
	provisioningUC usecase.ProvisioningUseCase
	orderUC        usecase.OrderUseCase
	webhookUC      usecase.WebhookUseCase
}

const testEnvName = "TEST"

func newTestEnv() *testEnv {
	e := &testEnv{
		users:          NewMockUserRepo(),
		bundles:        NewMockBundleRepo(),
		orders:         NewMockOrderRepo(),
		wallets:        NewMockWalletRepo(),
		walletTxns:     NewMockWalletTxnRepo(),
		promos:         NewMockPromotionRepo(),
		rules:          NewMockRuleRepo(),
		usages:         NewMockUsageRepo(),
		profiles:       NewMockProfileRepo(),
		profileBundles: NewMockProfileBundleRepo(),
		events:         NewMockEventRepo(),
		outbox:         NewMockOutboxRepo(),
		vouchers:       NewMockVoucherRepo(),
		gateway:        NewMockPaymentGateway(),
		carrier:        NewMockCarrierBilling(),
		fulfillment:    NewMockFulfillmentClient(),
		tm:             &MockTxManager{},
	}
	logger := newTestLogger()
	payCfg := config.PaymentConfig{Environment: testEnvName}
	refCfg := config.ReferralConfig{DefaultRuleID: "referral-rule", RewardAmount: 500}
	walletCfg := config.WalletConfig{DefaultCurrency: "EUR"}

	e.walletUC = usecase.NewWalletUseCase(e.wallets, e.walletTxns, e.vouchers, e.tm, walletCfg, logger)
	e.notifierUC = usecase.NewNotifierUseCase(e.outbox, e.users, logger)
	e.promoUC = usecase.NewPromotionUseCase(e.promos, e.rules, e.usages, e.users, e.bundles, e.tm, refCfg, logger)
	e.settlementUC = usecase.NewSettlementUseCase(e.usages, e.promos, e.rules, e.users, e.walletUC, e.tm, refCfg, logger)
	e.provisioningUC = usecase.NewProvisioningUseCase(e.fulfillment, e.orders, e.profiles, e.profileBundles, e.walletUC, e.gateway, e.notifierUC, e.tm, logger)
	e.orderUC = usecase.NewOrderUseCase(e.orders, e.bundles, e.profiles, e.promoUC, e.settlementUC, e.walletUC, e.provisioningUC, e.gateway, e.carrier, e.fulfillment, e.tm, payCfg, logger)
	e.webhookUC = usecase.NewWebhookUseCase(e.events, e.orders, e.profiles, e.orderUC, e.settlementUC, e.walletUC, e.provisioningUC, e.notifierUC, e.tm, payCfg, logger)
	return e
}

func (e *testEnv) seedUser(id, referralCode string) {
	e.users.Add(&model.User{ID: id, Email: id + "@example.com", ReferralCode: referralCode, CreatedAt: time.Now()})
}

func (e *testEnv) seedBundle(code string, price int64) *model.Bundle {
	b := &model.Bundle{Code: code, InfoCode: code + "-info", Name: "Bundle " + code, Price: price, Currency: "EUR", Stockable: true}
	e.bundles.Add(b)
	return b
}

func (e *testEnv) seedPromotion(code, ruleID string, action model.RuleAction, amount int64, maxUsage int) {
	e.rules.Add(&model.PromotionRule{
		ID:          ruleID,
		Action:      action,
		Event:       model.EventCreateOrder,
		Beneficiary: model.BeneficiaryReferrer,
		MaxUsage:    maxUsage,
		CreatedAt:   time.Now(),
	})
	e.promos.Add(&model.Promotion{
		ID:        "promo-" + code,
		RuleID:    ruleID,
		Code:      code,
		Amount:    amount,
		ValidFrom: time.Now().Add(-time.Hour),
		ValidTo:   time.Now().Add(time.Hour),
		IsActive:  true,
		CreatedAt: time.Now(),
	})
}

func (e *testEnv) seedReferralRule(action model.RuleAction, beneficiary model.Beneficiary, maxUsage int) {
	e.rules.Add(&model.PromotionRule{
		ID:          "referral-rule",
		Action:      action,
		Event:       model.EventCreateAccount,
		Beneficiary: beneficiary,
		MaxUsage:    maxUsage,
		CreatedAt:   time.Now(),
	})
}

func (e *testEnv) seedVoucher(code string, amount int64, active bool) {
	e.vouchers.Add(&model.Voucher{
		ID:        "voucher-" + code,
		Code:      code,
		Amount:    amount,
		IsActive:  active,
		CreatedAt: time.Now(),
	})
}

func (e *testEnv) walletBalance(userID string) int64 {
	w, err := e.wallets.FindByUserID(context.Background(), nil, userID)
	if err != nil {
		return 0
	}
	return w.Amount
}
