package service

import (
	"context"
	"time"

	"balanceledger/internal/model"
	"balanceledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PromoCatalog 充值活动目录
type PromoCatalog struct {
	repo *repository.PromoRepository
}

func NewPromoCatalog(db *gorm.DB) *PromoCatalog {
	return &PromoCatalog{repo: repository.NewPromoRepository(db)}
}

// FindEligible 返回 now 时刻对 amount 有效的全部启用活动，
// 按 priority 降序、id 升序排列，排序结果确定
func (c *PromoCatalog) FindEligible(ctx context.Context, tx *gorm.DB, amount decimal.Decimal, now time.Time) ([]*model.RechargePromo, error) {
	promos, err := c.repo.ListEnabled(ctx, tx)
	if err != nil {
		return nil, err
	}

	eligible := make([]*model.RechargePromo, 0, len(promos))
	for _, p := range promos {
		if p.ActiveAt(now) && p.Covers(amount) {
			eligible = append(eligible, p)
		}
	}
	return eligible, nil
}
