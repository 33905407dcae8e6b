package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/ledger"
	"kasbon/backend/internal/store"
	"kasbon/backend/internal/xid"
)

//go:embed schema.sql
var schema string

const defaultMaxAttempts = 5

type Store struct {
	db          *sqlx.DB
	maxAttempts int
}

type Option func(*Store)

// WithMaxAttempts bounds how many times WithAccount re-runs a closure that lost
// a serialization race.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) GetBranch(ctx context.Context, id string) (*domain.Branch, error) {
	var branch domain.Branch
	err := s.db.GetContext(ctx, &branch, `SELECT id, name, active FROM branches WHERE id = $1 AND active = true`, id)
	if err != nil {
		return nil, notFound(err, "branch", id)
	}
	return &branch, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.GetContext(ctx, &customer, `SELECT id, name, phone, active FROM customers WHERE id = $1 AND active = true`, id)
	if err != nil {
		return nil, notFound(err, "customer", id)
	}
	return &customer, nil
}

func (s *Store) GetSeller(ctx context.Context, id string) (*domain.Seller, error) {
	var seller domain.Seller
	err := s.db.GetContext(ctx, &seller, `SELECT id, name, commission_enabled, active FROM sellers WHERE id = $1 AND active = true`, id)
	if err != nil {
		return nil, notFound(err, "seller", id)
	}
	return &seller, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var products []domain.Product
	if err := s.db.SelectContext(ctx, &products, `
		SELECT id, name, product_type, price_cents, active
		FROM products
		WHERE active = true AND id = ANY($1)
	`, ids); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) CommissionOverride(ctx context.Context, sellerID string, productType string) (*domain.CommissionOverride, error) {
	return commissionOverride(ctx, s.db, sellerID, productType)
}

func (s *Store) CommissionDefault(ctx context.Context, productType string) (*domain.CommissionDefault, error) {
	return commissionDefault(ctx, s.db, productType)
}

func commissionOverride(ctx context.Context, q sqlx.QueryerContext, sellerID string, productType string) (*domain.CommissionOverride, error) {
	var override domain.CommissionOverride
	err := sqlx.GetContext(ctx, q, &override, `
		SELECT seller_id, product_type, unit_commission_cents, active, updated_at
		FROM commission_overrides
		WHERE seller_id = $1 AND product_type = $2
	`, sellerID, productType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	override.UpdatedAt = override.UpdatedAt.UTC()
	return &override, nil
}

func commissionDefault(ctx context.Context, q sqlx.QueryerContext, productType string) (*domain.CommissionDefault, error) {
	var def domain.CommissionDefault
	err := sqlx.GetContext(ctx, q, &def, `
		SELECT product_type, unit_commission_cents, active, updated_at
		FROM commission_defaults
		WHERE product_type = $1
	`, productType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	def.UpdatedAt = def.UpdatedAt.UTC()
	return &def, nil
}

func (s *Store) UpsertCommissionOverride(ctx context.Context, override domain.CommissionOverride) (*domain.CommissionOverride, error) {
	if override.SellerID == "" || override.ProductType == "" || override.UnitCommissionCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if override.UpdatedAt.IsZero() {
		override.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO commission_overrides (seller_id, product_type, unit_commission_cents, active, updated_at)
		VALUES (:seller_id, :product_type, :unit_commission_cents, :active, :updated_at)
		ON CONFLICT (seller_id, product_type)
		DO UPDATE SET unit_commission_cents = EXCLUDED.unit_commission_cents, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`, override)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("seller %s: %w", override.SellerID, store.ErrNotFound)
		}
		return nil, err
	}
	return &override, nil
}

func (s *Store) UpsertCommissionDefault(ctx context.Context, def domain.CommissionDefault) (*domain.CommissionDefault, error) {
	if def.ProductType == "" || def.UnitCommissionCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if def.UpdatedAt.IsZero() {
		def.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO commission_defaults (product_type, unit_commission_cents, active, updated_at)
		VALUES (:product_type, :unit_commission_cents, :active, :updated_at)
		ON CONFLICT (product_type)
		DO UPDATE SET unit_commission_cents = EXCLUDED.unit_commission_cents, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`, def)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *Store) ListCommissionOverrides(ctx context.Context, sellerID string) ([]domain.CommissionOverride, error) {
	overrides := make([]domain.CommissionOverride, 0, 32)
	err := s.db.SelectContext(ctx, &overrides, `
		SELECT seller_id, product_type, unit_commission_cents, active, updated_at
		FROM commission_overrides
		WHERE ($1::text = '' OR seller_id = $1)
		ORDER BY seller_id, product_type
	`, sellerID)
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

func (s *Store) ListCommissionDefaults(ctx context.Context) ([]domain.CommissionDefault, error) {
	defaults := make([]domain.CommissionDefault, 0, 16)
	err := s.db.SelectContext(ctx, &defaults, `
		SELECT product_type, unit_commission_cents, active, updated_at
		FROM commission_defaults
		ORDER BY product_type
	`)
	if err != nil {
		return nil, err
	}
	return defaults, nil
}

// WithAccount runs fn inside one SERIALIZABLE transaction holding the row lock
// on the account. A serialization failure or deadlock re-runs fn from scratch;
// after the last attempt the error surfaces as store.ErrConflict.
func (s *Store) WithAccount(ctx context.Context, key domain.AccountKey, fn func(tx store.AccountTx) error) error {
	if key.BranchID == "" || key.CustomerID == "" {
		return store.ErrInvalidTransaction
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.withAccountOnce(ctx, key, fn)
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}

		backoff := time.Duration(attempt*attempt) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, lastErr)
}

func (s *Store) withAccountOnce(ctx context.Context, key domain.AccountKey, fn func(tx store.AccountTx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO customer_accounts (branch_id, customer_id, balance_cents, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (branch_id, customer_id) DO NOTHING
	`, key.BranchID, key.CustomerID); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("account %s/%s: %w", key.BranchID, key.CustomerID, store.ErrNotFound)
		}
		return err
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance, `
		SELECT balance_cents
		FROM customer_accounts
		WHERE branch_id = $1 AND customer_id = $2
		FOR UPDATE
	`, key.BranchID, key.CustomerID); err != nil {
		return err
	}

	if err := fn(&accountTx{tx: tx, key: key, balance: balance}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AccountBalance(ctx context.Context, key domain.AccountKey) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT balance_cents FROM customer_accounts WHERE branch_id = $1 AND customer_id = $2
	`, key.BranchID, key.CustomerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

const ledgerColumns = `id, branch_id, customer_id, kind, debit_cents, credit_cents, balance_cents, source_type, source_id, note, created_at`

func (s *Store) ListLedgerEntries(ctx context.Context, key domain.AccountKey, limit int) ([]domain.LedgerEntry, error) {
	entries := make([]domain.LedgerEntry, 0, 64)
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &entries, `
			SELECT `+ledgerColumns+` FROM (
				SELECT seq, `+ledgerColumns+`
				FROM ledger_entries
				WHERE branch_id = $1 AND customer_id = $2
				ORDER BY seq DESC
				LIMIT $3
			) latest
			ORDER BY seq
		`, key.BranchID, key.CustomerID, limit)
	} else {
		err = s.db.SelectContext(ctx, &entries, `
			SELECT `+ledgerColumns+`
			FROM ledger_entries
			WHERE branch_id = $1 AND customer_id = $2
			ORDER BY seq
		`, key.BranchID, key.CustomerID)
	}
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].CreatedAt = entries[i].CreatedAt.UTC()
	}
	return entries, nil
}

const saleColumns = `id, branch_id, customer_id, seller_id, payment_method, subtotal_cents, discount_cents, total_cents, settlement_state, outstanding_cents, created_at`

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	where, args := accountScope(filter.BranchID, filter.CustomerID, filter.SellerID)
	if len(filter.States) > 0 {
		args = append(args, statesArg(filter.States))
		where = append(where, fmt.Sprintf("settlement_state = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + saleColumns + ` FROM sales` + whereClause(where) + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	sales := make([]domain.Sale, 0, 32)
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, err
	}
	if err := loadSaleLines(ctx, s.db, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

const commissionColumns = `id, sale_id, line_no, branch_id, customer_id, seller_id, product_id, product_type, qty, unit_commission_cents, total_cents, collected_cents, pending_cents, state, created_at, updated_at`

func (s *Store) ListCommissionRecords(ctx context.Context, filter domain.CommissionFilter) ([]domain.CommissionRecord, error) {
	where, args := accountScope(filter.BranchID, filter.CustomerID, filter.SellerID)
	if len(filter.States) > 0 {
		args = append(args, statesArg(filter.States))
		where = append(where, fmt.Sprintf("state = ANY($%d)", len(args)))
	}

	query := `SELECT ` + commissionColumns + ` FROM commission_records` + whereClause(where) + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	records := make([]domain.CommissionRecord, 0, 32)
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, err
	}
	normalizeCommissionTimes(records)
	return records, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (:id, :branch_id, :actor_username, :actor_role, :action, :entity_type, :entity_id, :detail, :created_at)
	`, entry)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	err := s.db.SelectContext(ctx, &logs, `
		SELECT id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::text = '' OR branch_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, branchID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	for i := range logs {
		logs[i].CreatedAt = logs[i].CreatedAt.UTC()
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return store.ErrInvalidTransaction
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, seller_id, active, created_at)
		VALUES (:username, :password_hash, :role, :seller_id, :active, :created_at)
	`, user)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 16)
	err := s.db.SelectContext(ctx, &users, `
		SELECT username, password_hash, role, seller_id, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// accountTx is the store.AccountTx bound to one open SERIALIZABLE transaction.
// balance mirrors customer_accounts.balance_cents, which the transaction holds
// locked.
type accountTx struct {
	tx      *sqlx.Tx
	key     domain.AccountKey
	balance int64
}

func (t *accountTx) Key() domain.AccountKey {
	return t.key
}

func (t *accountTx) CommissionOverride(ctx context.Context, sellerID string, productType string) (*domain.CommissionOverride, error) {
	return commissionOverride(ctx, t.tx, sellerID, productType)
}

func (t *accountTx) CommissionDefault(ctx context.Context, productType string) (*domain.CommissionDefault, error) {
	return commissionDefault(ctx, t.tx, productType)
}

func (t *accountTx) Balance(_ context.Context) (int64, error) {
	return t.balance, nil
}

func (t *accountTx) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	entry.BranchID = t.key.BranchID
	entry.CustomerID = t.key.CustomerID
	if entry.ID == "" {
		entry.ID = xid.New("le")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	posted, err := ledger.Post(t.balance, entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}

	if _, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES (:id, :branch_id, :customer_id, :kind, :debit_cents, :credit_cents, :balance_cents, :source_type, :source_id, :note, :created_at)
	`, posted); err != nil {
		return nil, err
	}
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE customer_accounts SET balance_cents = $3, updated_at = now()
		WHERE branch_id = $1 AND customer_id = $2
	`, t.key.BranchID, t.key.CustomerID, posted.BalanceCents); err != nil {
		return nil, err
	}
	t.balance = posted.BalanceCents
	return &posted, nil
}

func (t *accountTx) CreateSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.Key() != t.key || len(sale.Lines) == 0 {
		return store.ErrInvalidTransaction
	}
	if _, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (:id, :branch_id, :customer_id, :seller_id, :payment_method, :subtotal_cents, :discount_cents, :total_cents, :settlement_state, :outstanding_cents, :created_at)
	`, sale); err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	for _, line := range sale.Lines {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, product_type, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, line.LineNo, line.ProductID, line.ProductType, line.Qty, line.UnitPriceCents); err != nil {
			return err
		}
	}
	return nil
}

func (t *accountTx) OpenSales(ctx context.Context) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, 16)
	if err := t.tx.SelectContext(ctx, &sales, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE branch_id = $1 AND customer_id = $2 AND settlement_state <> 'paid'
		ORDER BY created_at, id
	`, t.key.BranchID, t.key.CustomerID); err != nil {
		return nil, err
	}
	if err := loadSaleLines(ctx, t.tx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (t *accountTx) UpdateSaleSettlement(ctx context.Context, saleID string, state domain.SettlementState, outstandingCents int64) error {
	if !state.Valid() || outstandingCents < 0 {
		return store.ErrInvalidTransaction
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sales SET settlement_state = $4, outstanding_cents = $5
		WHERE id = $1 AND branch_id = $2 AND customer_id = $3
	`, saleID, t.key.BranchID, t.key.CustomerID, string(state), outstandingCents)
	if err != nil {
		if isCheckViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return requireOneRow(res, "sale", saleID)
}

func (t *accountTx) CreatePayment(ctx context.Context, payment domain.Payment) error {
	if payment.ID == "" || payment.AmountCents <= 0 {
		return store.ErrInvalidTransaction
	}
	payment.BranchID = t.key.BranchID
	payment.CustomerID = t.key.CustomerID
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO payments (id, branch_id, customer_id, method, amount_cents, seller_id, resolved_seller_id, reference, received_by, created_at)
		VALUES (:id, :branch_id, :customer_id, :method, :amount_cents, :seller_id, :resolved_seller_id, :reference, :received_by, :created_at)
	`, payment)
	return err
}

func (t *accountTx) CreateCommissionRecords(ctx context.Context, records []domain.CommissionRecord) error {
	for _, rec := range records {
		if rec.ID == "" || rec.CollectedCents+rec.PendingCents != rec.TotalCents {
			return store.ErrInvalidTransaction
		}
		if rec.BranchID != t.key.BranchID || rec.CustomerID != t.key.CustomerID {
			return store.ErrInvalidTransaction
		}
		if _, err := t.tx.NamedExecContext(ctx, `
			INSERT INTO commission_records (`+commissionColumns+`)
			VALUES (:id, :sale_id, :line_no, :branch_id, :customer_id, :seller_id, :product_id, :product_type, :qty, :unit_commission_cents, :total_cents, :collected_cents, :pending_cents, :state, :created_at, :updated_at)
		`, rec); err != nil {
			return err
		}
	}
	return nil
}

func (t *accountTx) PendingCommissions(ctx context.Context, sellerID string) ([]domain.CommissionRecord, error) {
	records := make([]domain.CommissionRecord, 0, 16)
	if err := t.tx.SelectContext(ctx, &records, `
		SELECT `+commissionColumns+`
		FROM commission_records
		WHERE branch_id = $1 AND customer_id = $2 AND state <> 'paid' AND ($3::text = '' OR seller_id = $3)
		ORDER BY created_at, id
	`, t.key.BranchID, t.key.CustomerID, sellerID); err != nil {
		return nil, err
	}
	normalizeCommissionTimes(records)
	return records, nil
}

func (t *accountTx) UpdateCommissionRecord(ctx context.Context, record domain.CommissionRecord) error {
	if record.CollectedCents+record.PendingCents != record.TotalCents || !record.State.Valid() {
		return store.ErrInvalidTransaction
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE commission_records
		SET collected_cents = $4, pending_cents = $5, state = $6, updated_at = $7
		WHERE id = $1 AND branch_id = $2 AND customer_id = $3
			AND total_cents = $8 AND collected_cents <= $4
	`, record.ID, t.key.BranchID, t.key.CustomerID, record.CollectedCents, record.PendingCents, string(record.State), record.UpdatedAt, record.TotalCents)
	if err != nil {
		if isCheckViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return requireOneRow(res, "commission", record.ID)
}

type saleLineRow struct {
	SaleID string `db:"sale_id"`
	domain.SaleLine
}

func loadSaleLines(ctx context.Context, q sqlx.QueryerContext, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}

	var rows []saleLineRow
	if err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT sale_id, line_no, product_id, product_type, qty, unit_price_cents
		FROM sale_lines
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids); err != nil {
		return err
	}

	bySale := make(map[string][]domain.SaleLine, len(sales))
	for _, row := range rows {
		bySale[row.SaleID] = append(bySale[row.SaleID], row.SaleLine)
	}
	for i := range sales {
		sales[i].CreatedAt = sales[i].CreatedAt.UTC()
		sales[i].Lines = bySale[sales[i].ID]
		if sales[i].Lines == nil {
			sales[i].Lines = []domain.SaleLine{}
		}
	}
	return nil
}

func accountScope(branchID string, customerID string, sellerID string) ([]string, []any) {
	where := make([]string, 0, 6)
	args := make([]any, 0, 8)
	if branchID != "" {
		args = append(args, branchID)
		where = append(where, fmt.Sprintf("branch_id = $%d", len(args)))
	}
	if customerID != "" {
		args = append(args, customerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if sellerID != "" {
		args = append(args, sellerID)
		where = append(where, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	return where, args
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func statesArg(states []domain.SettlementState) []string {
	out := make([]string, 0, len(states))
	for _, state := range states {
		out = append(out, string(state))
	}
	return out
}

func normalizeCommissionTimes(records []domain.CommissionRecord) {
	for i := range records {
		records[i].CreatedAt = records[i].CreatedAt.UTC()
		records[i].UpdatedAt = records[i].UpdatedAt.UTC()
	}
}

func requireOneRow(res sql.Result, entity string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, store.ErrNotFound)
	}
	return nil
}

func notFound(err error, entity string, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, store.ErrNotFound)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

// isRetryable reports serialization failures and deadlocks, the two outcomes
// a SERIALIZABLE transaction is expected to retry.
func isRetryable(err error) bool {
	switch pgCode(err) {
	case "40001", "40P01":
		return true
	}
	return false
}
