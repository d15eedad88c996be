package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxnType string

const (
	TxnCredit TxnType = "CREDIT"
	TxnDebit  TxnType = "DEBIT"
)

type TxnSource string

const (
	SourceRecharge        TxnSource = "RECHARGE"
	SourcePurchase        TxnSource = "PURCHASE"
	SourceWithdraw        TxnSource = "WITHDRAW"
	SourceReferralBonus   TxnSource = "REFERRAL_BONUS"
	SourceDailyReturn     TxnSource = "DAILY_RETURN"
	SourcePrincipalReturn TxnSource = "PRINCIPAL_RETURN"
	SourceReward          TxnSource = "REWARD"
)

type TxnStatus string

const (
	TxnPending TxnStatus = "PENDING"
	TxnSuccess TxnStatus = "SUCCESS"
	TxnFailed  TxnStatus = "FAILED"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// User carries the cached wallet balance. ReferredBy is a lookup-only
// back-reference and is never followed for ownership.
type User struct {
	ID            int64           `json:"id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	ReferralCode  string          `json:"referral_code"`
	ReferredBy    *int64          `json:"referred_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// WalletTransaction is one immutable ledger row.
type WalletTransaction struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Type         TxnType         `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Source       TxnSource       `json:"source"`
	ReferenceID  int64           `json:"reference_id"`
	Status       TxnStatus       `json:"status"`
	Description  string          `json:"description,omitempty"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Signed returns the amount with the sign the transaction applies to a balance.
func (t WalletTransaction) Signed() decimal.Decimal {
	if t.Type == TxnDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type Plan struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DailyReturn  decimal.Decimal `json:"daily_return"`
	DurationDays int             `json:"duration_days"`
	IsActive     bool            `json:"is_active"`
}

type Subscription struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	PlanID            int64           `json:"plan_id"`
	Price             decimal.Decimal `json:"price"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	IsActive          bool            `json:"is_active"`
	PrincipalReturned bool            `json:"principal_returned"`
	CreatedAt         time.Time       `json:"created_at"`
}

// AccrualCandidate is an active subscription joined with its plan's daily return.
type AccrualCandidate struct {
	SubscriptionID int64
	UserID         int64
	PlanID         int64
	DailyReturn    decimal.Decimal
}

// DailyReturnLog is unique per (SubscriptionID, CreditedForDate).
type DailyReturnLog struct {
	ID                  int64           `json:"id"`
	SubscriptionID      int64           `json:"subscription_id"`
	UserID              int64           `json:"user_id"`
	PlanID              int64           `json:"plan_id"`
	Amount              decimal.Decimal `json:"amount"`
	CreditedForDate     time.Time       `json:"credited_for_date"`
	WalletTransactionID *int64          `json:"wallet_transaction_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

type DailyReturnSummary struct {
	UserID      int64           `json:"user_id"`
	PeriodType  PeriodType      `json:"period_type"`
	PeriodKey   string          `json:"period_key"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Count       int64           `json:"count"`
}

type RechargeRequest struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"`
	ChainName         string          `json:"chain_name"`
	BlockchainAddress string          `json:"blockchain_address"`
	TransactionID     string          `json:"transaction_id"`
	ProofKey          string          `json:"proof_key,omitempty"`
	Status            RequestStatus   `json:"status"`
	ApprovedByID      *int64          `json:"approved_by_id,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	ReviewedAt        *time.Time      `json:"reviewed_at,omitempty"`
}

type WithdrawalRequest struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"`
	Fee               decimal.Decimal `json:"fee"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	ChainName         string          `json:"chain_name"`
	BlockchainAddress string          `json:"blockchain_address"`
	Status            RequestStatus   `json:"status"`
	ApprovedByID      *int64          `json:"approved_by_id,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	ReviewedAt        *time.Time      `json:"reviewed_at,omitempty"`
}

// RequestFilter narrows request listings. Zero values match everything.
type RequestFilter struct {
	UserID int64
	Status RequestStatus
	Limit  int
}

// Review is the administrative decision applied to a pending request.
type Review struct {
	AdminID int64
	Status  RequestStatus
	Reason  string
	At      time.Time
}
