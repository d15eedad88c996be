package models

import (
	"github.com/shopspring/decimal"
)

// RechargeRequest is the payload of POST /recharges.
type RechargeRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	ChainName         string          `json:"chainName" validate:"required,max=32"`
	BlockchainAddress string          `json:"blockchainAddress" validate:"max=128"`
	TransactionID     string          `json:"transactionId" validate:"required,max=128"`
	ProofKey          string          `json:"proofKey" validate:"max=256"`
}

// WithdrawalRequest is the payload of POST /withdrawals.
type WithdrawalRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	ChainName         string          `json:"chainName" validate:"required,max=32"`
	BlockchainAddress string          `json:"blockchainAddress" validate:"required,max=128"`
}

// PurchaseRequest is the payload of POST /subscriptions.
type PurchaseRequest struct {
	PlanID int64 `json:"planId" validate:"required,gt=0"`
}

// RejectRequest carries the reason of an admin rejection.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AccrualRunRequest optionally pins the accrual date (YYYY-MM-DD).
type AccrualRunRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// WalletResponse is the canonical balance view.
type WalletResponse struct {
	UserID        int64           `json:"userId"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
}

// RebuildResponse reports a summary rebuild.
type RebuildResponse struct {
	UserID   int64 `json:"userId"`
	Replayed int   `json:"replayed"`
}
