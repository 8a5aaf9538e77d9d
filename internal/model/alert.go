package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertKind string

const (
	AlertLargeRecharge        AlertKind = "LargeRecharge"
	AlertLargeConsume         AlertKind = "LargeConsume"
	AlertFrequentRecharge     AlertKind = "FrequentRecharge"
	AlertFrequentConsume      AlertKind = "FrequentConsume"
	AlertLargeAdminAdjustment AlertKind = "LargeAdminAdjustment"
)

// AlertEvent 阈值告警，仅供通知方消费，不影响已提交的交易
type AlertEvent struct {
	ID        string          `json:"id"`
	Kind      AlertKind       `json:"kind"`
	UserID    int64           `json:"user_id"`
	TxnNo     string          `json:"txn_no"`
	EntryType EntryType       `json:"entry_type"`
	Amount    decimal.Decimal `json:"amount"`
	Threshold decimal.Decimal `json:"threshold"`
	Count     int64           `json:"count,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
