package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// In-memory repositories for router-level tests. Every transaction takes one
// global mutex, which stands in for the row locks Postgres would hold.

type memTransactor struct {
	mu sync.Mutex
}

func (m *memTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	return &memTx{release: m.mu.Unlock}, nil
}

type memTx struct {
	once    sync.Once
	release func()
}

func (t *memTx) done() error {
	t.once.Do(t.release)
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error          { return t.done() }
func (t *memTx) Rollback(ctx context.Context) error        { return t.done() }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                                 { return nil }

// --- stores and users ---

type memStores struct {
	mu     sync.Mutex
	stores map[uuid.UUID]domain.Store
}

func newMemStores() *memStores { return &memStores{stores: map[uuid.UUID]domain.Store{}} }

func (r *memStores) Create(ctx context.Context, tx pgx.Tx, s *domain.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.ID] = *s
	return nil
}

func (r *memStores) GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]domain.User{}} }

func (r *memUsers) Create(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.Username] = *u
	return nil
}

func (r *memUsers) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// --- wallets and ledger ---

type memWallets struct {
	mu      sync.Mutex
	byStore map[uuid.UUID]*domain.Wallet
}

func newMemWallets() *memWallets { return &memWallets{byStore: map[uuid.UUID]*domain.Wallet{}} }

func (r *memWallets) getOrCreateLocked(storeID uuid.UUID) *domain.Wallet {
	w, ok := r.byStore[storeID]
	if !ok {
		now := time.Now()
		w = &domain.Wallet{
			ID:        uuid.New(), StoreID: storeID, Currency: "NGN",
			KYCStatus: domain.KYCStatusNotStarted, CreatedAt: now, UpdatedAt: now,
		}
		r.byStore[storeID] = w
	}
	return w
}

func (r *memWallets) byID(id uuid.UUID) *domain.Wallet {
	for _, w := range r.byStore {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (r *memWallets) GetOrCreate(ctx context.Context, storeID uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := *r.getOrCreateLocked(storeID)
	return &w, nil
}

func (r *memWallets) GetByStoreID(ctx context.Context, storeID uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byStore[storeID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *memWallets) LockOrCreate(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (*domain.Wallet, error) {
	return r.GetOrCreate(ctx, storeID)
}

func (r *memWallets) GetByStoreIDForUpdate(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByStoreID(ctx, storeID)
}

func (r *memWallets) Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountKobo int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.byID(walletID); w != nil {
		w.AvailableKobo += amountKobo
	}
	return nil
}

func (r *memWallets) Debit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountKobo int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.byID(walletID)
	if w == nil || w.AvailableKobo < amountKobo {
		return false, nil
	}
	w.AvailableKobo -= amountKobo
	return true, nil
}

func (r *memWallets) SetPIN(ctx context.Context, storeID uuid.UUID, pinHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.getOrCreateLocked(storeID)
	w.PINHash = &pinHash
	w.PINSet = true
	w.FailedPINAttempts = 0
	w.IsLocked = false
	w.LockedUntil = nil
	return nil
}

func (r *memWallets) RecordPINFailure(ctx context.Context, storeID uuid.UUID, maxAttempts int, lockUntil time.Time) (*ports.PINFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.getOrCreateLocked(storeID)
	w.FailedPINAttempts++
	if w.FailedPINAttempts >= maxAttempts {
		w.IsLocked = true
		w.LockedUntil = &lockUntil
	}
	return &ports.PINFailure{Attempts: w.FailedPINAttempts, Locked: w.IsLocked, LockedUntil: w.LockedUntil}, nil
}

func (r *memWallets) ResetPINAttempts(ctx context.Context, storeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.getOrCreateLocked(storeID)
	w.FailedPINAttempts = 0
	w.IsLocked = false
	w.LockedUntil = nil
	return nil
}

func (r *memWallets) UpdateKYCStatus(ctx context.Context, tx pgx.Tx, storeID uuid.UUID, status domain.KYCStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOrCreateLocked(storeID).KYCStatus = status
	return nil
}

func (r *memWallets) ListStoreIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.byStore))
	for id := range r.byStore {
		ids = append(ids, id)
	}
	return ids, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
}

func (r *memLedger) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memLedger) ListAllByStore(ctx context.Context, storeID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.StoreID == storeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memLedger) ListByStore(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	all, _ := r.ListAllByStore(ctx, storeID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page, pageSize), int64(len(all)), nil
}

func (r *memLedger) WalletSum(ctx context.Context, storeID uuid.UUID) (decimal.Decimal, error) {
	all, _ := r.ListAllByStore(ctx, storeID)
	var sum int64
	for _, e := range all {
		sum += e.SignedKobo()
	}
	return money.FromKobo(sum), nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// --- storefront payments ---

type memOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.Order
}

func newMemOrders() *memOrders { return &memOrders{orders: map[uuid.UUID]domain.Order{}} }

func (r *memOrders) add(o domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}

func (r *memOrders) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *memOrders) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *memOrders) MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	o.Status = domain.OrderStatusPaid
	o.PaidAt = &paidAt
	r.orders[id] = o
	return nil
}

func (r *memOrders) MarkDeliveryScheduled(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order not found: %s", id)
	}
	if o.DeliveryScheduledAt == nil {
		o.DeliveryScheduledAt = &at
	}
	r.orders[id] = o
	return nil
}

type memPayments struct {
	mu    sync.Mutex
	byRef map[string]domain.PaymentTransaction
}

func newMemPayments() *memPayments {
	return &memPayments{byRef: map[string]domain.PaymentTransaction{}}
}

func (r *memPayments) Create(ctx context.Context, tx pgx.Tx, p *domain.PaymentTransaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := p.Provider + "|" + p.ProviderReference
	if _, ok := r.byRef[key]; ok {
		return false, nil
	}
	r.byRef[key] = *p
	return true, nil
}

func (r *memPayments) GetByReference(ctx context.Context, provider, reference string) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byRef[provider+"|"+reference]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type memEvents struct {
	mu     sync.Mutex
	events map[string]*domain.PaymentWebhookEvent
}

func newMemEvents() *memEvents {
	return &memEvents{events: map[string]*domain.PaymentWebhookEvent{}}
}

func (r *memEvents) byID(id uuid.UUID) *domain.PaymentWebhookEvent {
	for _, e := range r.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r *memEvents) Claim(ctx context.Context, evt *domain.PaymentWebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := evt.Provider + "|" + evt.ProviderEventID
	if _, ok := r.events[key]; ok {
		return false, nil
	}
	cp := *evt
	r.events[key] = &cp
	return true, nil
}

func (r *memEvents) GetByProviderEventID(ctx context.Context, provider, providerEventID string) (*domain.PaymentWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[provider+"|"+providerEventID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *memEvents) Reclaim(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, observedUpdatedAt, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byID(id)
	if e == nil || e.Status != status || !e.UpdatedAt.Equal(observedUpdatedAt) {
		return false, nil
	}
	e.Status = domain.WebhookEventReceived
	e.Attempts++
	e.UpdatedAt = now
	return true, nil
}

func (r *memEvents) MarkProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.byID(id); e != nil {
		e.Status = domain.WebhookEventProcessed
		e.ProcessedAt = &at
		e.UpdatedAt = at
	}
	return nil
}

func (r *memEvents) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextRetryAt *time.Time, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.byID(id); e != nil {
		e.Status = domain.WebhookEventFailed
		e.LastError = &lastError
		e.NextRetryAt = nextRetryAt
		e.UpdatedAt = at
	}
	return nil
}

func (r *memEvents) ClaimRetryable(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]domain.PaymentWebhookEvent, error) {
	return nil, nil
}

// --- withdrawals ---

type memWithdrawals struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Withdrawal
}

func newMemWithdrawals() *memWithdrawals {
	return &memWithdrawals{rows: map[uuid.UUID]*domain.Withdrawal{}}
}

func (r *memWithdrawals) Create(ctx context.Context, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.rows[w.ID] = &cp
	return nil
}

func (r *memWithdrawals) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *memWithdrawals) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	return r.GetByID(ctx, id)
}

func (r *memWithdrawals) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, referenceCode string) (*domain.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.rows {
		if w.ReferenceCode == referenceCode {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memWithdrawals) all() []domain.Withdrawal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Withdrawal, 0, len(r.rows))
	for _, w := range r.rows {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memWithdrawals) ListByStore(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.Withdrawal, int64, error) {
	var mine []domain.Withdrawal
	for _, w := range r.all() {
		if w.StoreID == storeID {
			mine = append(mine, w)
		}
	}
	return paginate(mine, page, pageSize), int64(len(mine)), nil
}

func (r *memWithdrawals) ReservedKobo(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (int64, error) {
	var sum int64
	for _, w := range r.all() {
		if w.StoreID == storeID && w.Status == domain.WithdrawalStatusProcessing {
			sum += w.AmountKobo
		}
	}
	return sum, nil
}

// transition applies fn when the row is in from. Mirrors the guarded UPDATE.
func (r *memWithdrawals) transition(id uuid.UUID, from domain.WithdrawalStatus, fn func(*domain.Withdrawal)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.rows[id]
	if !ok || w.Status != from {
		return false
	}
	fn(w)
	return true
}

func (r *memWithdrawals) MarkProcessing(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(id, domain.WithdrawalStatusPendingOTP, func(w *domain.Withdrawal) {
		w.Status = domain.WithdrawalStatusProcessing
		w.OTPHash = nil
		w.UpdatedAt = at
	}), nil
}

func (r *memWithdrawals) SetProviderReference(ctx context.Context, id uuid.UUID, providerRef string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.rows[id]; ok {
		w.ProviderReference = &providerRef
		w.UpdatedAt = at
	}
	return nil
}

func (r *memWithdrawals) MarkSucceeded(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string, at time.Time) (bool, error) {
	return r.transition(id, domain.WithdrawalStatusProcessing, func(w *domain.Withdrawal) {
		w.Status = domain.WithdrawalStatusSuccess
		if providerRef != "" {
			w.ProviderReference = &providerRef
		}
		w.UpdatedAt = at
	}), nil
}

func (r *memWithdrawals) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, from domain.WithdrawalStatus, reason string, at time.Time) (bool, error) {
	return r.transition(id, from, func(w *domain.Withdrawal) {
		w.Status = domain.WithdrawalStatusFailed
		w.FailureReason = &reason
		w.OTPHash = nil
		w.UpdatedAt = at
	}), nil
}

// --- kyc, beneficiaries, exports ---

type memKYC struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.KycRecord
}

func newMemKYC() *memKYC { return &memKYC{rows: map[uuid.UUID]domain.KycRecord{}} }

func (r *memKYC) Create(ctx context.Context, tx pgx.Tx, rec *domain.KycRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rec.ID] = *rec
	return nil
}

func (r *memKYC) GetByID(ctx context.Context, id uuid.UUID) (*domain.KycRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memKYC) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.KycRecord, error) {
	return r.GetByID(ctx, id)
}

func (r *memKYC) GetLatestByStore(ctx context.Context, storeID uuid.UUID) (*domain.KycRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.KycRecord
	for _, rec := range r.rows {
		if rec.StoreID == storeID && (latest == nil || rec.SubmittedAt.After(latest.SubmittedAt)) {
			cp := rec
			latest = &cp
		}
	}
	return latest, nil
}

func (r *memKYC) ListPending(ctx context.Context, limit int) ([]domain.KycRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.KycRecord
	for _, rec := range r.rows {
		if rec.Status == domain.KYCStatusPending && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memKYC) UpdateReview(ctx context.Context, tx pgx.Tx, rec *domain.KycRecord) error {
	return r.Create(ctx, tx, rec)
}

type memBeneficiaries struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.BankBeneficiary
}

func newMemBeneficiaries() *memBeneficiaries {
	return &memBeneficiaries{rows: map[uuid.UUID]domain.BankBeneficiary{}}
}

func (r *memBeneficiaries) Create(ctx context.Context, b *domain.BankBeneficiary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[b.ID] = *b
	return nil
}

func (r *memBeneficiaries) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankBeneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memBeneficiaries) FindActiveByHash(ctx context.Context, storeID uuid.UUID, bankCode, accountHash string) (*domain.BankBeneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.rows {
		if b.StoreID == storeID && b.BankCode == bankCode && b.AccountNumberHash == accountHash && b.IsActive {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *memBeneficiaries) ListByStore(ctx context.Context, storeID uuid.UUID) ([]domain.BankBeneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BankBeneficiary
	for _, b := range r.rows {
		if b.StoreID == storeID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memBeneficiaries) Deactivate(ctx context.Context, id, storeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok || b.StoreID != storeID || !b.IsActive {
		return false, nil
	}
	b.IsActive = false
	r.rows[id] = b
	return true, nil
}

type memExports struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.ExportJob
}

func newMemExports() *memExports { return &memExports{rows: map[uuid.UUID]*domain.ExportJob{}} }

func (r *memExports) Create(ctx context.Context, job *domain.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.rows[job.ID] = &cp
	return nil
}

func (r *memExports) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (r *memExports) SaveContent(ctx context.Context, job *domain.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rows[job.ID]; ok {
		cur.Status = job.Status
		cur.RowCount = job.RowCount
		cur.Content = job.Content
		cur.ExpiresAt = job.ExpiresAt
		cur.UpdatedAt = job.UpdatedAt
	}
	return nil
}

func (r *memExports) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rows[id]; ok {
		cur.Status = domain.ExportJobStatusExpired
		cur.Content = nil
		cur.UpdatedAt = at
	}
	return nil
}

// --- locks, incidents, monitoring, audit ---

// memLocks keeps the lock columns beside the rows they would live on.
type memLocks struct {
	mu      sync.Mutex
	known   func(kind domain.LockKind, id uuid.UUID) bool
	holders map[string]domain.LockHolder
}

func newMemLocks(withdrawals *memWithdrawals, exports *memExports) *memLocks {
	return &memLocks{
		holders: map[string]domain.LockHolder{},
		known: func(kind domain.LockKind, id uuid.UUID) bool {
			switch kind {
			case domain.LockKindWithdrawal:
				w, _ := withdrawals.GetByID(context.Background(), id)
				return w != nil
			case domain.LockKindExportJob:
				j, _ := exports.GetByID(context.Background(), id)
				return j != nil
			}
			return false
		},
	}
}

func lockKey(kind domain.LockKind, id uuid.UUID) string { return string(kind) + ":" + id.String() }

func (r *memLocks) TryAcquire(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string, now, staleBefore time.Time) (bool, error) {
	if !r.known(kind, id) {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.holders[lockKey(kind, id)]
	if h.LockedAt != nil && !h.LockedAt.Before(staleBefore) && *h.LockedBy != actor {
		return false, nil
	}
	r.holders[lockKey(kind, id)] = domain.LockHolder{Kind: kind, ID: id, LockedAt: &now, LockedBy: &actor}
	return true, nil
}

func (r *memLocks) GetHolder(ctx context.Context, kind domain.LockKind, id uuid.UUID) (*domain.LockHolder, error) {
	if !r.known(kind, id) {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holders[lockKey(kind, id)]
	if !ok {
		h = domain.LockHolder{Kind: kind, ID: id}
	}
	return &h, nil
}

func (r *memLocks) Release(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holders[lockKey(kind, id)]
	if !ok || h.LockedBy == nil || *h.LockedBy != actor {
		return false, nil
	}
	delete(r.holders, lockKey(kind, id))
	return true, nil
}

func (r *memLocks) SweepStale(ctx context.Context, kind domain.LockKind, staleBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, h := range r.holders {
		if h.Kind == kind && h.LockedAt != nil && h.LockedAt.Before(staleBefore) {
			delete(r.holders, k)
			n++
		}
	}
	return n, nil
}

type memIncidents struct {
	mu   sync.Mutex
	rows []domain.ReconciliationIncident
}

func (r *memIncidents) Create(ctx context.Context, inc *domain.ReconciliationIncident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *inc)
	return nil
}

func (r *memIncidents) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.ReconciliationIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.ReconciliationIncident{}
	for _, inc := range r.rows {
		if inc.RunID == runID {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (r *memIncidents) LatestRunID(ctx context.Context) (*uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rows) == 0 {
		return nil, nil
	}
	id := r.rows[len(r.rows)-1].RunID
	return &id, nil
}

type memMonitoring struct {
	withdrawals *memWithdrawals
}

func (r *memMonitoring) filter(keep func(domain.Withdrawal) bool, limit int) []domain.Withdrawal {
	var out []domain.Withdrawal
	for _, w := range r.withdrawals.all() {
		if keep(w) {
			out = append(out, w)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (r *memMonitoring) StuckWithdrawals(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Withdrawal, error) {
	return r.filter(func(w domain.Withdrawal) bool {
		return w.Status == domain.WithdrawalStatusProcessing && w.UpdatedAt.Before(updatedBefore)
	}, limit), nil
}

func (r *memMonitoring) AgingWithdrawals(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Withdrawal, error) {
	return r.filter(func(w domain.Withdrawal) bool {
		return w.Status == domain.WithdrawalStatusPendingOTP && w.CreatedAt.Before(createdBefore)
	}, limit), nil
}

func (r *memMonitoring) StuckExports(ctx context.Context, now time.Time, limit int) ([]domain.ExportJob, error) {
	return nil, nil
}

func (r *memMonitoring) AverageTimeToPaid(ctx context.Context, since time.Time, limit int) (*float64, error) {
	paid := r.filter(func(w domain.Withdrawal) bool {
		return w.Status == domain.WithdrawalStatusSuccess && !w.CreatedAt.Before(since)
	}, limit)
	if len(paid) == 0 {
		return nil, nil
	}
	var total float64
	for _, w := range paid {
		total += w.UpdatedAt.Sub(w.CreatedAt).Seconds()
	}
	avg := total / float64(len(paid))
	return &avg, nil
}

func (r *memMonitoring) CountWithdrawalsByStatus(ctx context.Context) (map[domain.WithdrawalStatus]int64, error) {
	counts := map[domain.WithdrawalStatus]int64{}
	for _, w := range r.withdrawals.all() {
		counts[w.Status]++
	}
	return counts, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *memAudit) Create(ctx context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memAudit) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
