package service

import (
	"balanceledger/internal/model"
	"balanceledger/pkg/apperr"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Benefit 活动带来的优惠
// Bonus 计入余额；Discount 只减少支付渠道实际扣款，不影响入账金额
type Benefit struct {
	Bonus    decimal.Decimal
	Discount decimal.Decimal
}

// calculateBenefit 按活动类型计算优惠，三种类型的计算规则只在这里出现
func calculateBenefit(promo *model.RechargePromo, amount decimal.Decimal) (Benefit, error) {
	switch promo.Type {
	case model.PromoTypeBonus:
		return Benefit{Bonus: promo.Value.Round(2), Discount: decimal.Zero}, nil

	case model.PromoTypePercent:
		bonus := amount.Mul(promo.Value).Div(hundred).Round(2)
		if promo.MaxBonus.IsPositive() && bonus.GreaterThan(promo.MaxBonus) {
			bonus = promo.MaxBonus
		}
		return Benefit{Bonus: bonus, Discount: decimal.Zero}, nil

	case model.PromoTypeDiscount:
		// value 为支付比例，例如 0.9 表示九折，优惠 = amount - amount*value
		charge := amount.Mul(promo.Value).Round(2)
		return Benefit{Bonus: decimal.Zero, Discount: amount.Sub(charge)}, nil
	}
	return Benefit{}, apperr.New(apperr.KindInvalidArgument, "未知活动类型: %s", promo.Type)
}
