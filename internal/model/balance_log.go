package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 流水类型常量
// ============================================================================

type EntryType string

const (
	EntryTypeRecharge EntryType = "recharge" // 充值
	EntryTypeConsume  EntryType = "consume"  // 消费
	EntryTypeRefund   EntryType = "refund"   // 退款
	EntryTypeAdjust   EntryType = "adjust"   // 管理员调账
	EntryTypeReward   EntryType = "reward"   // 奖励
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeRecharge, EntryTypeConsume, EntryTypeRefund, EntryTypeAdjust, EntryTypeReward:
		return true
	}
	return false
}

// ErrLedgerImmutable 流水写入后不允许修改或删除
var ErrLedgerImmutable = errors.New("balance_log 只允许追加")

// BalanceLog 余额流水表
//
// 1. 只追加，不修改，不删除
// 2. balance_after = balance_before + amount
// 3. 同一用户相邻两条流水首尾相接：上一条的 balance_after 等于下一条的 balance_before
type BalanceLog struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TxnNo          string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"txn_no"`
	UserID         int64           `gorm:"index:idx_balance_log_user_type_time,priority:1;not null" json:"user_id"`
	Type           EntryType       `gorm:"type:varchar(16);index:idx_balance_log_user_type_time,priority:2;not null" json:"type"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`                 // 正数入账，负数出账
	BonusAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"bonus_amount"` // amount 中活动赠送部分
	BalanceBefore  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	Remark         string          `gorm:"type:varchar(256)" json:"remark"`
	PromoID        *int64          `gorm:"index" json:"promo_id,omitempty"`
	RefNo          string          `gorm:"type:varchar(64);index" json:"ref_no,omitempty"`
	Operator       string          `gorm:"type:varchar(64)" json:"operator,omitempty"`
	IdempotencyKey *string         `gorm:"type:varchar(64);uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index:idx_balance_log_user_type_time,priority:3" json:"created_at"`
}

func (BalanceLog) TableName() string {
	return "balance_log"
}

// Principal 本金部分（不含活动赠送）
func (l *BalanceLog) Principal() decimal.Decimal {
	return l.Amount.Sub(l.BonusAmount)
}

func (l *BalanceLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

func (l *BalanceLog) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}
