package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/ledger"
	"kasbon/backend/internal/store"
	"kasbon/backend/internal/xid"
)

type overrideKey struct {
	sellerID    string
	productType string
}

// account is the aggregate guarded by one account lock: every record that a
// sale or payment on (branch, customer) may touch.
type account struct {
	entries     []domain.LedgerEntry
	sales       []domain.Sale
	payments    []domain.Payment
	commissions []domain.CommissionRecord
}

type Store struct {
	mu              sync.RWMutex
	branches        map[string]domain.Branch
	customers       map[string]domain.Customer
	sellers         map[string]domain.Seller
	products        map[string]domain.Product
	overrides       map[overrideKey]domain.CommissionOverride
	defaults        map[string]domain.CommissionDefault
	accounts        map[domain.AccountKey]*account
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	locksMu      sync.Mutex
	accountLocks map[domain.AccountKey]*sync.Mutex
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// when unset, dev defaults are used with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		sellerID string
	}{
		{"admin", adminPwd, domain.RoleAdmin, ""},
		{"dewi", cashierPwd, domain.RoleCashier, "seller-dewi"},
		{"cashier", cashierPwd, domain.RoleCashier, ""},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			SellerID:  u.sellerID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with two branches, a handful of
// customers, sellers and products, and a commission policy.
func NewSeeded() *Store {
	s := New()

	for _, b := range []domain.Branch{
		{ID: "main-branch", Name: "Toko Pusat", Active: true},
		{ID: "north-branch", Name: "Toko Utara", Active: true},
	} {
		s.branches[b.ID] = b
	}
	for _, c := range []domain.Customer{
		{ID: "cust-ana", Name: "Ana Wijaya", Phone: "0811000001", Active: true},
		{ID: "cust-budi", Name: "Budi Santoso", Phone: "0811000002", Active: true},
		{ID: "cust-citra", Name: "Citra Lestari", Phone: "0811000003", Active: true},
	} {
		s.customers[c.ID] = c
	}
	for _, sl := range []domain.Seller{
		{ID: "seller-dewi", Name: "Dewi", CommissionEnabled: true, Active: true},
		{ID: "seller-eko", Name: "Eko", CommissionEnabled: true, Active: true},
		{ID: "seller-fajar", Name: "Fajar", CommissionEnabled: false, Active: true},
	} {
		s.sellers[sl.ID] = sl
	}
	for _, p := range []domain.Product{
		{ID: "PRD-TV-01", Name: "LED TV 43 inch", ProductType: "electronics", PriceCents: 450000, Active: true},
		{ID: "PRD-FRIDGE-01", Name: "Kulkas 2 Pintu", ProductType: "appliance", PriceCents: 620000, Active: true},
		{ID: "PRD-SOFA-01", Name: "Sofa 3 Dudukan", ProductType: "furniture", PriceCents: 380000, Active: true},
		{ID: "PRD-CABLE-01", Name: "Kabel HDMI 2m", ProductType: "accessory", PriceCents: 4500, Active: true},
	} {
		s.products[p.ID] = p
	}

	now := time.Now().UTC()
	for _, d := range []domain.CommissionDefault{
		{ProductType: "electronics", UnitCommissionCents: 5000, Active: true},
		{ProductType: "appliance", UnitCommissionCents: 8000, Active: true},
		{ProductType: "furniture", UnitCommissionCents: 12000, Active: true},
		{ProductType: "accessory", UnitCommissionCents: 200, Active: false},
	} {
		d.UpdatedAt = now
		s.defaults[d.ProductType] = d
	}
	for _, o := range []domain.CommissionOverride{
		{SellerID: "seller-dewi", ProductType: "electronics", UnitCommissionCents: 7500, Active: true},
		{SellerID: "seller-eko", ProductType: "furniture", UnitCommissionCents: 20000, Active: false},
	} {
		o.UpdatedAt = now
		s.overrides[overrideKey{o.SellerID, o.ProductType}] = o
	}

	s.usersByUsername = seedUsers()
	return s
}

// New returns an empty store.
func New() *Store {
	return &Store{
		branches:        make(map[string]domain.Branch),
		customers:       make(map[string]domain.Customer),
		sellers:         make(map[string]domain.Seller),
		products:        make(map[string]domain.Product),
		overrides:       make(map[overrideKey]domain.CommissionOverride),
		defaults:        make(map[string]domain.CommissionDefault),
		accounts:        make(map[domain.AccountKey]*account),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
		accountLocks:    make(map[domain.AccountKey]*sync.Mutex),
	}
}

// PutBranch, PutCustomer, PutSeller and PutProduct load reference data; the
// engine itself never writes these.
func (s *Store) PutBranch(b domain.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[b.ID] = b
}

func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *Store) PutSeller(sl domain.Seller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellers[sl.ID] = sl
}

func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) GetBranch(_ context.Context, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[id]
	if !ok || !b.Active {
		return nil, fmt.Errorf("branch %s: %w", id, store.ErrNotFound)
	}
	return &b, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok || !c.Active {
		return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) GetSeller(_ context.Context, id string) (*domain.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.sellers[id]
	if !ok || !sl.Active {
		return nil, fmt.Errorf("seller %s: %w", id, store.ErrNotFound)
	}
	return &sl, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CommissionOverride(_ context.Context, sellerID string, productType string) (*domain.CommissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overrideLocked(sellerID, productType), nil
}

func (s *Store) CommissionDefault(_ context.Context, productType string) (*domain.CommissionDefault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultLocked(productType), nil
}

func (s *Store) overrideLocked(sellerID string, productType string) *domain.CommissionOverride {
	o, ok := s.overrides[overrideKey{sellerID, productType}]
	if !ok {
		return nil
	}
	return &o
}

func (s *Store) defaultLocked(productType string) *domain.CommissionDefault {
	d, ok := s.defaults[productType]
	if !ok {
		return nil
	}
	return &d
}

func (s *Store) UpsertCommissionOverride(_ context.Context, override domain.CommissionOverride) (*domain.CommissionOverride, error) {
	if override.SellerID == "" || override.ProductType == "" || override.UnitCommissionCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if override.UpdatedAt.IsZero() {
		override.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sellers[override.SellerID]; !ok {
		return nil, fmt.Errorf("seller %s: %w", override.SellerID, store.ErrNotFound)
	}
	s.overrides[overrideKey{override.SellerID, override.ProductType}] = override
	return &override, nil
}

func (s *Store) UpsertCommissionDefault(_ context.Context, def domain.CommissionDefault) (*domain.CommissionDefault, error) {
	if def.ProductType == "" || def.UnitCommissionCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if def.UpdatedAt.IsZero() {
		def.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[def.ProductType] = def
	return &def, nil
}

func (s *Store) ListCommissionOverrides(_ context.Context, sellerID string) ([]domain.CommissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.CommissionOverride, 0, len(s.overrides))
	for _, o := range s.overrides {
		if sellerID != "" && o.SellerID != sellerID {
			continue
		}
		result = append(result, o)
	}
	slices.SortFunc(result, func(a, b domain.CommissionOverride) int {
		if c := strings.Compare(a.SellerID, b.SellerID); c != 0 {
			return c
		}
		return strings.Compare(a.ProductType, b.ProductType)
	})
	return result, nil
}

func (s *Store) ListCommissionDefaults(_ context.Context) ([]domain.CommissionDefault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.CommissionDefault, 0, len(s.defaults))
	for _, d := range s.defaults {
		result = append(result, d)
	}
	slices.SortFunc(result, func(a, b domain.CommissionDefault) int {
		return strings.Compare(a.ProductType, b.ProductType)
	})
	return result, nil
}

func (s *Store) accountLock(key domain.AccountKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.accountLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[key] = lock
	}
	return lock
}

// WithAccount serializes every writer of one account. fn works on a private
// copy of the aggregate that replaces the shared one only when fn succeeds, so
// readers see either the state before or after the whole run.
func (s *Store) WithAccount(ctx context.Context, key domain.AccountKey, fn func(tx store.AccountTx) error) error {
	if key.BranchID == "" || key.CustomerID == "" {
		return store.ErrInvalidTransaction
	}
	lock := s.accountLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := cloneAccount(s.accounts[key])
	s.mu.RUnlock()

	tx := &accountTx{store: s, key: key, acct: working}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.accounts[key] = working
	s.mu.Unlock()
	return nil
}

func (s *Store) AccountBalance(_ context.Context, key domain.AccountKey) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct := s.accounts[key]
	if acct == nil || len(acct.entries) == 0 {
		return 0, nil
	}
	return acct.entries[len(acct.entries)-1].BalanceCents, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, key domain.AccountKey, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct := s.accounts[key]
	if acct == nil {
		return []domain.LedgerEntry{}, nil
	}
	entries := acct.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return slices.Clone(entries), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 32)
	for key, acct := range s.accounts {
		if filter.BranchID != "" && key.BranchID != filter.BranchID {
			continue
		}
		if filter.CustomerID != "" && key.CustomerID != filter.CustomerID {
			continue
		}
		for _, sale := range acct.sales {
			if filter.SellerID != "" && sale.SellerID != filter.SellerID {
				continue
			}
			if len(filter.States) > 0 && !slices.Contains(filter.States, sale.SettlementState) {
				continue
			}
			if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
				continue
			}
			if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
				continue
			}
			result = append(result, cloneSale(sale))
		}
	}
	ledger.SortOldestFirst(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListCommissionRecords(_ context.Context, filter domain.CommissionFilter) ([]domain.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CommissionRecord, 0, 32)
	for key, acct := range s.accounts {
		if filter.BranchID != "" && key.BranchID != filter.BranchID {
			continue
		}
		if filter.CustomerID != "" && key.CustomerID != filter.CustomerID {
			continue
		}
		for _, rec := range acct.commissions {
			if filter.SellerID != "" && rec.SellerID != filter.SellerID {
				continue
			}
			if len(filter.States) > 0 && !slices.Contains(filter.States, rec.State) {
				continue
			}
			result = append(result, rec)
		}
	}
	slices.SortFunc(result, compareCommissionByAge)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

type accountTx struct {
	store *Store
	key   domain.AccountKey
	acct  *account
}

func (t *accountTx) Key() domain.AccountKey {
	return t.key
}

func (t *accountTx) CommissionOverride(ctx context.Context, sellerID string, productType string) (*domain.CommissionOverride, error) {
	return t.store.CommissionOverride(ctx, sellerID, productType)
}

func (t *accountTx) CommissionDefault(ctx context.Context, productType string) (*domain.CommissionDefault, error) {
	return t.store.CommissionDefault(ctx, productType)
}

func (t *accountTx) Balance(_ context.Context) (int64, error) {
	if len(t.acct.entries) == 0 {
		return 0, nil
	}
	return t.acct.entries[len(t.acct.entries)-1].BalanceCents, nil
}

func (t *accountTx) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	prev, err := t.Balance(ctx)
	if err != nil {
		return nil, err
	}
	entry.BranchID = t.key.BranchID
	entry.CustomerID = t.key.CustomerID
	if entry.ID == "" {
		entry.ID = xid.New("le")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	posted, err := ledger.Post(prev, entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	t.acct.entries = append(t.acct.entries, posted)
	return &posted, nil
}

func (t *accountTx) CreateSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.Key() != t.key || len(sale.Lines) == 0 {
		return store.ErrInvalidTransaction
	}
	for _, existing := range t.acct.sales {
		if existing.ID == sale.ID {
			return store.ErrInvalidTransaction
		}
	}
	t.acct.sales = append(t.acct.sales, cloneSale(sale))
	return nil
}

func (t *accountTx) OpenSales(_ context.Context) ([]domain.Sale, error) {
	open := make([]domain.Sale, 0, len(t.acct.sales))
	for _, sale := range t.acct.sales {
		if sale.SettlementState != domain.SettlementPaid {
			open = append(open, cloneSale(sale))
		}
	}
	ledger.SortOldestFirst(open)
	return open, nil
}

func (t *accountTx) UpdateSaleSettlement(_ context.Context, saleID string, state domain.SettlementState, outstandingCents int64) error {
	if !state.Valid() || outstandingCents < 0 {
		return store.ErrInvalidTransaction
	}
	for i := range t.acct.sales {
		if t.acct.sales[i].ID == saleID {
			if outstandingCents > t.acct.sales[i].TotalCents {
				return store.ErrInvalidTransaction
			}
			t.acct.sales[i].SettlementState = state
			t.acct.sales[i].OutstandingCents = outstandingCents
			return nil
		}
	}
	return fmt.Errorf("sale %s: %w", saleID, store.ErrNotFound)
}

func (t *accountTx) CreatePayment(_ context.Context, payment domain.Payment) error {
	if payment.ID == "" || payment.AmountCents <= 0 {
		return store.ErrInvalidTransaction
	}
	payment.BranchID = t.key.BranchID
	payment.CustomerID = t.key.CustomerID
	t.acct.payments = append(t.acct.payments, payment)
	return nil
}

func (t *accountTx) CreateCommissionRecords(_ context.Context, records []domain.CommissionRecord) error {
	for _, rec := range records {
		if rec.ID == "" || rec.CollectedCents+rec.PendingCents != rec.TotalCents {
			return store.ErrInvalidTransaction
		}
		if rec.BranchID != t.key.BranchID || rec.CustomerID != t.key.CustomerID {
			return store.ErrInvalidTransaction
		}
	}
	t.acct.commissions = append(t.acct.commissions, records...)
	return nil
}

func (t *accountTx) PendingCommissions(_ context.Context, sellerID string) ([]domain.CommissionRecord, error) {
	result := make([]domain.CommissionRecord, 0, len(t.acct.commissions))
	for _, rec := range t.acct.commissions {
		if rec.State == domain.SettlementPaid {
			continue
		}
		if sellerID != "" && rec.SellerID != sellerID {
			continue
		}
		result = append(result, rec)
	}
	slices.SortFunc(result, compareCommissionByAge)
	return result, nil
}

func (t *accountTx) UpdateCommissionRecord(_ context.Context, record domain.CommissionRecord) error {
	if record.CollectedCents+record.PendingCents != record.TotalCents || !record.State.Valid() {
		return store.ErrInvalidTransaction
	}
	for i := range t.acct.commissions {
		if t.acct.commissions[i].ID != record.ID {
			continue
		}
		current := t.acct.commissions[i]
		if current.TotalCents != record.TotalCents || record.CollectedCents < current.CollectedCents {
			return store.ErrInvalidTransaction
		}
		current.CollectedCents = record.CollectedCents
		current.PendingCents = record.PendingCents
		current.State = record.State
		current.UpdatedAt = record.UpdatedAt
		t.acct.commissions[i] = current
		return nil
	}
	return fmt.Errorf("commission %s: %w", record.ID, store.ErrNotFound)
}

func compareCommissionByAge(a, b domain.CommissionRecord) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func cloneAccount(src *account) *account {
	if src == nil {
		return &account{}
	}
	dst := &account{
		entries:     slices.Clone(src.entries),
		payments:    slices.Clone(src.payments),
		commissions: slices.Clone(src.commissions),
		sales:       make([]domain.Sale, 0, len(src.sales)),
	}
	for _, sale := range src.sales {
		dst.sales = append(dst.sales, cloneSale(sale))
	}
	return dst
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	return dst
}
