package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BalanceStatusActive = "active"
	BalanceStatusFrozen = "frozen"
)

// UserBalance 用户余额表
// available 只能通过带流水的交易变动，frozen 为预留资金，两者任何时刻都不能为负
type UserBalance struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Available      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"available"`
	Frozen         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"frozen"`
	TotalRecharged decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_recharged"`
	TotalConsumed  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_consumed"`
	Status         string          `gorm:"type:varchar(16);not null;default:active" json:"status"`
	Version        int             `gorm:"not null;default:0" json:"-"` // 乐观锁版本号
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserBalance) TableName() string {
	return "user_balance"
}

func (b *UserBalance) IsFrozen() bool {
	return b.Status == BalanceStatusFrozen
}
