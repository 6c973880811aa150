package models

import "time"

type TxnKind string

const (
	TxnDeduct   TxnKind = "DEDUCT"
	TxnRollback TxnKind = "ROLLBACK"
	// ручная корректировка баланса администратором
	TxnAdjust TxnKind = "ADJUST"
)

// PackageTxn - неизменяемая запись журнала пакета.
// DeltaAmount отрицательный для DEDUCT, положительный для ROLLBACK.
type PackageTxn struct {
	ID           int64     `db:"id" json:"id"`
	PackageID    int64     `db:"package_id" json:"package_id"`
	Kind         TxnKind   `db:"kind" json:"kind"`
	DeltaAmount  int       `db:"delta_amount" json:"delta_amount"`
	SessionID    *int64    `db:"session_id" json:"session_id,omitempty"`
	StudentID    *int64    `db:"student_id" json:"student_id,omitempty"`
	SettlementID *string   `db:"settlement_id" json:"settlement_id,omitempty"`
	Note         string    `db:"note" json:"note"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Reconciliation - сверка баланса пакета с журналом
type Reconciliation struct {
	PackageID        int64 `json:"package_id"`
	TotalPurchased   int   `json:"total_purchased"`
	RemainingBalance int   `json:"remaining_balance"`
	LedgerSum        int   `json:"ledger_sum"`
	Consistent       bool  `json:"consistent"`
}
