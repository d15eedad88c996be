package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventWalletCredited  = "wallet.credited"
	EventWalletDebited   = "wallet.debited"
	EventAccrualCredited = "accrual.credited"
	EventRequestReviewed = "request.reviewed"
)

// LedgerEvent is published after the transaction that produced it commits.
type LedgerEvent struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	UserID        int64           `json:"user_id"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	Source        TxnSource       `json:"source,omitempty"`
	ReferenceID   int64           `json:"reference_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
