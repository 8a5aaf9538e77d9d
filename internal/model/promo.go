package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromoType string

const (
	PromoTypeBonus    PromoType = "bonus"    // 满额赠送固定金额
	PromoTypePercent  PromoType = "percent"  // 按比例赠送，max_bonus 封顶
	PromoTypeDiscount PromoType = "discount" // 支付折扣，入账仍为原金额
)

const (
	PromoStatusEnabled  = "enabled"
	PromoStatusDisabled = "disabled"
)

// RechargePromo 充值活动
// used_count 只在成功使用时递增，永不回退
type RechargePromo struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string          `gorm:"type:varchar(128);not null" json:"name"`
	Type         PromoType       `gorm:"type:varchar(16);not null" json:"type"`
	MinAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"min_amount"`
	MaxAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"max_amount"` // 0 表示不限
	Value        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	MaxBonus     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"max_bonus"` // 仅 percent 有效，0 表示不封顶
	Priority     int             `gorm:"not null;default:0;index" json:"priority"`
	PerUserLimit int             `gorm:"not null;default:0" json:"per_user_limit"` // 0 表示不限
	TotalLimit   int             `gorm:"not null;default:0" json:"total_limit"`    // 0 表示不限
	UsedCount    int             `gorm:"not null;default:0" json:"used_count"`
	StartAt      *time.Time      `json:"start_at"`
	EndAt        *time.Time      `json:"end_at"`
	Status       string          `gorm:"type:varchar(16);index;not null;default:enabled" json:"status"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RechargePromo) TableName() string {
	return "recharge_promo"
}

// ActiveAt 活动在 now 时刻是否处于有效期内
func (p *RechargePromo) ActiveAt(now time.Time) bool {
	if p.StartAt != nil && now.Before(*p.StartAt) {
		return false
	}
	if p.EndAt != nil && now.After(*p.EndAt) {
		return false
	}
	return true
}

// Covers 金额是否落在活动区间内
func (p *RechargePromo) Covers(amount decimal.Decimal) bool {
	if amount.LessThan(p.MinAmount) {
		return false
	}
	if !p.MaxAmount.IsZero() && amount.GreaterThan(p.MaxAmount) {
		return false
	}
	return true
}

func (p *RechargePromo) TotalExhausted() bool {
	return p.TotalLimit > 0 && p.UsedCount >= p.TotalLimit
}

// PromoUsage 活动使用记录，一次成功使用一行
type PromoUsage struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PromoID        int64           `gorm:"index:idx_promo_usage_promo_user,priority:1;not null" json:"promo_id"`
	UserID         int64           `gorm:"index:idx_promo_usage_promo_user,priority:2;not null" json:"user_id"`
	RechargeTxnRef string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"recharge_txn_ref"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	BonusAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"bonus_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (PromoUsage) TableName() string {
	return "promo_usage"
}
