package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const BalanceConfigID int64 = 1

// BalanceConfig 充值限额与告警阈值，单行配置，任一字段为 0 表示不检查
type BalanceConfig struct {
	ID                    int64           `gorm:"primaryKey" json:"-"`
	MinRechargeAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"min_recharge_amount"`
	MaxRechargeAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"max_recharge_amount"`
	MaxDailyRecharge      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"max_daily_recharge"`
	MaxBalanceLimit       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"max_balance_limit"`
	LargeRechargeAlert    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"large_recharge_alert"`
	LargeConsumeAlert     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"large_consume_alert"`
	FrequentRechargeCount int             `gorm:"not null;default:0" json:"frequent_recharge_count"`
	FrequentConsumeCount  int             `gorm:"not null;default:0" json:"frequent_consume_count"`
	LargeAdjustAlert      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"large_adjust_alert"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BalanceConfig) TableName() string {
	return "balance_config"
}
