package domain

import "time"

type Branch struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Active bool   `json:"active" db:"active"`
}

type Customer struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Phone  string `json:"phone,omitempty" db:"phone"`
	Active bool   `json:"active" db:"active"`
}

type Seller struct {
	ID                string `json:"id" db:"id"`
	Name              string `json:"name" db:"name"`
	CommissionEnabled bool   `json:"commission_enabled" db:"commission_enabled"`
	Active            bool   `json:"active" db:"active"`
}

type Product struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	ProductType string `json:"product_type" db:"product_type"`
	PriceCents  int64  `json:"price_cents" db:"price_cents"`
	Active      bool   `json:"active" db:"active"`
}

// AccountKey scopes a running account: one customer inside one branch.
type AccountKey struct {
	BranchID   string `json:"branch_id"`
	CustomerID string `json:"customer_id"`
}

type SettlementState string

const (
	SettlementPaid    SettlementState = "paid"
	SettlementPending SettlementState = "pending"
	SettlementPartial SettlementState = "partial"
)

func (s SettlementState) Valid() bool {
	switch s {
	case SettlementPaid, SettlementPending, SettlementPartial:
		return true
	}
	return false
}

const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
	PaymentMethodCredit   = "credit"
)

// IsImmediateMethod reports whether money changes hands at the moment of the
// operation (cash or bank transfer) as opposed to running on account.
func IsImmediateMethod(method string) bool {
	return method == PaymentMethodCash || method == PaymentMethodTransfer
}

func IsSupportedMethod(method string) bool {
	return IsImmediateMethod(method) || method == PaymentMethodCredit
}

type SaleLine struct {
	LineNo         int    `json:"line_no" db:"line_no"`
	ProductID      string `json:"product_id" db:"product_id"`
	ProductType    string `json:"product_type" db:"product_type"`
	Qty            int    `json:"qty" db:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents" db:"unit_price_cents"`
}

type Sale struct {
	ID               string          `json:"id" db:"id"`
	BranchID         string          `json:"branch_id" db:"branch_id"`
	CustomerID       string          `json:"customer_id" db:"customer_id"`
	SellerID         string          `json:"seller_id" db:"seller_id"`
	PaymentMethod    string          `json:"payment_method" db:"payment_method"`
	SubtotalCents    int64           `json:"subtotal_cents" db:"subtotal_cents"`
	DiscountCents    int64           `json:"discount_cents" db:"discount_cents"`
	TotalCents       int64           `json:"total_cents" db:"total_cents"`
	SettlementState  SettlementState `json:"settlement_state" db:"settlement_state"`
	OutstandingCents int64           `json:"outstanding_cents" db:"outstanding_cents"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	Lines            []SaleLine      `json:"lines" db:"-"`
}

func (s Sale) Key() AccountKey {
	return AccountKey{BranchID: s.BranchID, CustomerID: s.CustomerID}
}

type LedgerEntryKind string

const (
	EntrySaleDebit     LedgerEntryKind = "sale_debit"
	EntryPaymentCredit LedgerEntryKind = "payment_credit"
	EntryAdjustment    LedgerEntryKind = "adjustment"
)

const (
	SourceTypeSale       = "sale"
	SourceTypePayment    = "payment"
	SourceTypeAdjustment = "adjustment"
)

// LedgerEntry is immutable once appended. BalanceCents is the running balance
// of the account after this entry; negative means store credit.
type LedgerEntry struct {
	ID           string          `json:"id" db:"id"`
	BranchID     string          `json:"branch_id" db:"branch_id"`
	CustomerID   string          `json:"customer_id" db:"customer_id"`
	Kind         LedgerEntryKind `json:"kind" db:"kind"`
	DebitCents   int64           `json:"debit_cents" db:"debit_cents"`
	CreditCents  int64           `json:"credit_cents" db:"credit_cents"`
	BalanceCents int64           `json:"balance_cents" db:"balance_cents"`
	SourceType   string          `json:"source_type" db:"source_type"`
	SourceID     string          `json:"source_id" db:"source_id"`
	Note         string          `json:"note,omitempty" db:"note"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

type Payment struct {
	ID               string    `json:"id" db:"id"`
	BranchID         string    `json:"branch_id" db:"branch_id"`
	CustomerID       string    `json:"customer_id" db:"customer_id"`
	Method           string    `json:"method" db:"method"`
	AmountCents      int64     `json:"amount_cents" db:"amount_cents"`
	SellerID         string    `json:"seller_id,omitempty" db:"seller_id"`
	ResolvedSellerID string    `json:"resolved_seller_id,omitempty" db:"resolved_seller_id"`
	Reference        string    `json:"reference,omitempty" db:"reference"`
	ReceivedBy       string    `json:"received_by" db:"received_by"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

type CommissionRecord struct {
	ID                  string          `json:"id" db:"id"`
	SaleID              string          `json:"sale_id" db:"sale_id"`
	LineNo              int             `json:"line_no" db:"line_no"`
	BranchID            string          `json:"branch_id" db:"branch_id"`
	CustomerID          string          `json:"customer_id" db:"customer_id"`
	SellerID            string          `json:"seller_id" db:"seller_id"`
	ProductID           string          `json:"product_id" db:"product_id"`
	ProductType         string          `json:"product_type" db:"product_type"`
	Qty                 int             `json:"qty" db:"qty"`
	UnitCommissionCents int64           `json:"unit_commission_cents" db:"unit_commission_cents"`
	TotalCents          int64           `json:"total_cents" db:"total_cents"`
	CollectedCents      int64           `json:"collected_cents" db:"collected_cents"`
	PendingCents        int64           `json:"pending_cents" db:"pending_cents"`
	State               SettlementState `json:"state" db:"state"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// Outstanding is the part of the commission not yet collectible.
func (c CommissionRecord) Outstanding() int64 {
	return c.TotalCents - c.CollectedCents
}

type CommissionOverride struct {
	SellerID            string    `json:"seller_id" validate:"required" db:"seller_id"`
	ProductType         string    `json:"product_type" validate:"required" db:"product_type"`
	UnitCommissionCents int64     `json:"unit_commission_cents" validate:"gte=0" db:"unit_commission_cents"`
	Active              bool      `json:"active" db:"active"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

type CommissionDefault struct {
	ProductType         string    `json:"product_type" validate:"required" db:"product_type"`
	UnitCommissionCents int64     `json:"unit_commission_cents" validate:"gte=0" db:"unit_commission_cents"`
	Active              bool      `json:"active" db:"active"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

type SaleLineRequest struct {
	ProductID      string `json:"product_id" validate:"required"`
	Qty            int    `json:"qty" validate:"gte=1,lte=1000000"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0,lte=1000000000000"`
}

type SaleRequest struct {
	BranchID      string            `json:"branch_id"`
	CustomerID    string            `json:"customer_id" validate:"required"`
	SellerID      string            `json:"seller_id" validate:"required"`
	PaymentMethod string            `json:"payment_method" validate:"required,oneof=cash transfer credit"`
	Lines         []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
	DiscountCents int64             `json:"discount_cents" validate:"gte=0"`
	TotalCents    int64             `json:"total_cents" validate:"gt=0"`
}

type SaleResponse struct {
	Sale              Sale               `json:"sale"`
	LedgerEntry       *LedgerEntry       `json:"ledger_entry,omitempty"`
	Commissions       []CommissionRecord `json:"commissions"`
	StoreCreditUsed   int64              `json:"store_credit_used_cents"`
	BalanceAfterCents int64              `json:"balance_after_cents"`
}

type PaymentRequest struct {
	BranchID    string `json:"branch_id"`
	CustomerID  string `json:"customer_id" validate:"required"`
	Method      string `json:"method" validate:"required,oneof=cash transfer credit"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	SellerID    string `json:"seller_id,omitempty"`
	Reference   string `json:"reference,omitempty" validate:"max=120"`
}

// SaleAllocation is one step of the payment waterfall.
type SaleAllocation struct {
	SaleID        string          `json:"sale_id"`
	AppliedCents  int64           `json:"applied_cents"`
	BalanceBefore int64           `json:"balance_before_cents"`
	BalanceAfter  int64           `json:"balance_after_cents"`
	State         SettlementState `json:"state"`
}

// CommissionAllocation is one step of the commission settlement walk.
type CommissionAllocation struct {
	RecordID       string          `json:"record_id"`
	SaleID         string          `json:"sale_id"`
	ReleasedCents  int64           `json:"released_cents"`
	CollectedCents int64           `json:"collected_cents"`
	PendingCents   int64           `json:"pending_cents"`
	State          SettlementState `json:"state"`
}

type CommissionSettlement struct {
	SellerID         string                 `json:"seller_id,omitempty"`
	TotalDebtCents   int64                  `json:"total_debt_cents"`
	PoolCents        int64                  `json:"pool_cents"`
	BudgetCents      int64                  `json:"budget_cents"`
	UnallocatedCents int64                  `json:"unallocated_cents"`
	Allocations      []CommissionAllocation `json:"allocations"`
	SkippedReason    string                 `json:"skipped_reason,omitempty"`
}

const (
	SettlementSkipNonImmediate = "payment_method_not_immediate"
	SettlementSkipNoSeller     = "no_seller_with_pending_commission"
	SettlementSkipNoDebt       = "seller_has_no_outstanding_debt"
	SettlementSkipNoPool       = "seller_has_no_pending_commission"
)

type PaymentResponse struct {
	Payment           Payment              `json:"payment"`
	LedgerEntry       LedgerEntry          `json:"ledger_entry"`
	Allocations       []SaleAllocation     `json:"allocations"`
	UnappliedCents    int64                `json:"unapplied_cents"`
	Commission        CommissionSettlement `json:"commission"`
	BalanceAfterCents int64                `json:"balance_after_cents"`
}

type AdjustmentRequest struct {
	BranchID    string `json:"branch_id"`
	CustomerID  string `json:"customer_id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Reason      string `json:"reason" validate:"required,max=240"`
}

type AdjustmentResponse struct {
	LedgerEntry       LedgerEntry      `json:"ledger_entry"`
	Allocations       []SaleAllocation `json:"allocations"`
	UnappliedCents    int64            `json:"unapplied_cents"`
	BalanceAfterCents int64            `json:"balance_after_cents"`
}

type AccountBalance struct {
	BranchID         string    `json:"branch_id"`
	CustomerID       string    `json:"customer_id"`
	BalanceCents     int64     `json:"balance_cents"`
	OutstandingCents int64     `json:"outstanding_cents"`
	StoreCreditCents int64     `json:"store_credit_cents"`
	OpenSales        int       `json:"open_sales"`
	AsOf             time.Time `json:"as_of"`
}

type AccountStatement struct {
	Balance   AccountBalance `json:"balance"`
	OpenSales []Sale         `json:"open_sales"`
	Entries   []LedgerEntry  `json:"entries"`
}

type AccountVerification struct {
	BranchID         string   `json:"branch_id"`
	CustomerID       string   `json:"customer_id"`
	Entries          int      `json:"entries"`
	BalanceCents     int64    `json:"balance_cents"`
	OutstandingCents int64    `json:"outstanding_cents"`
	Consistent       bool     `json:"consistent"`
	Problems         []string `json:"problems,omitempty"`
}

// SaleFilter is the only way callers can narrow a sale listing.
type SaleFilter struct {
	BranchID   string            `json:"branch_id"`
	CustomerID string            `json:"customer_id"`
	SellerID   string            `json:"seller_id"`
	States     []SettlementState `json:"states" validate:"dive,oneof=paid pending partial"`
	From       *time.Time        `json:"from,omitempty"`
	To         *time.Time        `json:"to,omitempty"`
	Limit      int               `json:"limit" validate:"gte=0,lte=500"`
}

type CommissionFilter struct {
	BranchID   string            `json:"branch_id"`
	CustomerID string            `json:"customer_id"`
	SellerID   string            `json:"seller_id"`
	States     []SettlementState `json:"states" validate:"dive,oneof=paid pending partial"`
	Limit      int               `json:"limit" validate:"gte=0,lte=500"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	SellerID string `json:"seller_id,omitempty"`
}

// UserSummary is the public view of a user account.
type UserSummary struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	SellerID  string    `json:"seller_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	SellerID    string `json:"seller_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated identity handed to the engine. SellerID is set
// when the user is also a seller on the floor.
type Actor struct {
	Username string
	Role     string
	SellerID string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string    `db:"username"`
	Password  string    `db:"password_hash"`
	Role      string    `db:"role"`
	SellerID  string    `db:"seller_id"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

// CashInflow is handed to the cash-drawer collaborator after a committed
// immediate sale or payment.
type CashInflow struct {
	BranchID    string `json:"branch_id"`
	CustomerID  string `json:"customer_id"`
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	SourceType  string `json:"source_type"`
	SourceID    string `json:"source_id"`
	Actor       string `json:"actor"`
}

type AuditLog struct {
	ID            string    `json:"id" db:"id"`
	BranchID      string    `json:"branch_id" db:"branch_id"`
	ActorUsername string    `json:"actor_username" db:"actor_username"`
	ActorRole     string    `json:"actor_role" db:"actor_role"`
	Action        string    `json:"action" db:"action"`
	EntityType    string    `json:"entity_type" db:"entity_type"`
	EntityID      string    `json:"entity_id" db:"entity_id"`
	Detail        string    `json:"detail" db:"detail"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
