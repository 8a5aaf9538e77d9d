package service

import (
	"context"
	"fmt"
	"time"

	"balanceledger/internal/model"
	"balanceledger/internal/repository"
	"balanceledger/pkg/apperr"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Selection 选中的活动及优惠，Promo 为 nil 表示无活动
type Selection struct {
	Promo    *model.RechargePromo
	Bonus    decimal.Decimal
	Discount decimal.Decimal
}

func noSelection() *Selection {
	return &Selection{Bonus: decimal.Zero, Discount: decimal.Zero}
}

// Credited 实际入账金额
func (s *Selection) Credited(amount decimal.Decimal) decimal.Decimal {
	return amount.Add(s.Bonus)
}

// Charge 支付渠道应扣金额
func (s *Selection) Charge(amount decimal.Decimal) decimal.Decimal {
	return amount.Sub(s.Discount)
}

func (s *Selection) PromoID() *int64 {
	if s.Promo == nil {
		return nil
	}
	id := s.Promo.ID
	return &id
}

// PromoSelector 每笔充值最多使用一个活动，活动之间不叠加
type PromoSelector struct {
	catalog *PromoCatalog
	repo    *repository.PromoRepository
}

func NewPromoSelector(db *gorm.DB) *PromoSelector {
	return &PromoSelector{
		catalog: NewPromoCatalog(db),
		repo:    repository.NewPromoRepository(db),
	}
}

// Select 只读地挑选活动，不占用名额
// 对固定的活动目录、now 和当前使用次数，结果只取决于 (userID, amount, now)
func (s *PromoSelector) Select(ctx context.Context, userID int64, amount decimal.Decimal, now time.Time) (*Selection, error) {
	return s.walk(ctx, nil, userID, amount, now, false)
}

// Claim 在事务内挑选活动并原子地占用一次总名额
// 某个活动在检查后被其他用户抢完时静默跳到下一个
func (s *PromoSelector) Claim(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, now time.Time) (*Selection, error) {
	return s.walk(ctx, tx, userID, amount, now, true)
}

func (s *PromoSelector) walk(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, now time.Time, claim bool) (*Selection, error) {
	eligible, err := s.catalog.FindEligible(ctx, tx, amount, now)
	if err != nil {
		return nil, fmt.Errorf("查询可用活动失败: %w", err)
	}

	for _, promo := range eligible {
		if promo.TotalExhausted() {
			continue
		}

		if promo.PerUserLimit > 0 {
			used, err := s.repo.CountUserUsage(ctx, tx, promo.ID, userID)
			if err != nil {
				return nil, fmt.Errorf("查询活动使用次数失败: %w", err)
			}
			if used >= int64(promo.PerUserLimit) {
				continue
			}
		}

		benefit, err := calculateBenefit(promo, amount)
		if err != nil {
			return nil, err
		}

		if claim {
			ok, err := s.repo.TryIncrementUsed(ctx, tx, promo.ID)
			if err != nil {
				return nil, fmt.Errorf("占用活动名额失败: %w", err)
			}
			if !ok {
				log.Debug().
					Int64("promo_id", promo.ID).
					Int64("user_id", userID).
					Str("kind", string(apperr.KindPromotionExhausted)).
					Msg("活动名额已满，尝试下一个活动")
				continue
			}
			promo.UsedCount++
		}

		return &Selection{Promo: promo, Bonus: benefit.Bonus, Discount: benefit.Discount}, nil
	}

	return noSelection(), nil
}

// Restore 按已提交的充值流水还原当时的活动选择，用于幂等重放
func (s *PromoSelector) Restore(ctx context.Context, tx *gorm.DB, entry *model.BalanceLog) (*Selection, error) {
	if entry.PromoID == nil {
		return noSelection(), nil
	}
	usage, err := s.repo.GetUsageByTxnRef(ctx, tx, entry.TxnNo)
	if err != nil {
		return nil, fmt.Errorf("查询活动使用记录失败: %w", err)
	}
	promo, err := s.repo.GetByID(ctx, *entry.PromoID)
	if err != nil {
		return nil, err
	}
	sel := &Selection{Promo: promo, Bonus: entry.BonusAmount, Discount: decimal.Zero}
	if usage != nil {
		sel.Bonus = usage.BonusAmount
		sel.Discount = usage.DiscountAmount
	}
	return sel, nil
}

// RecordUsage 写入使用记录，与 Claim 在同一事务
func (s *PromoSelector) RecordUsage(ctx context.Context, tx *gorm.DB, userID int64, sel *Selection, amount decimal.Decimal, txnNo string, at time.Time) error {
	if sel == nil || sel.Promo == nil {
		return nil
	}
	return s.repo.CreateUsage(ctx, tx, &model.PromoUsage{
		PromoID:        sel.Promo.ID,
		UserID:         userID,
		RechargeTxnRef: txnNo,
		Amount:         amount,
		BonusAmount:    sel.Bonus,
		DiscountAmount: sel.Discount,
		CreatedAt:      at,
	})
}
