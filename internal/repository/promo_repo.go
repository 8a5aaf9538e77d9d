package repository

import (
	"context"
	"errors"

	"balanceledger/internal/model"
	"balanceledger/pkg/apperr"

	"gorm.io/gorm"
)

type PromoRepository struct {
	db *gorm.DB
}

func NewPromoRepository(db *gorm.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

func (r *PromoRepository) Create(ctx context.Context, promo *model.RechargePromo) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

// Update 覆盖可编辑字段，used_count 不允许通过这里修改
func (r *PromoRepository) Update(ctx context.Context, promo *model.RechargePromo) error {
	result := r.db.WithContext(ctx).
		Model(&model.RechargePromo{}).
		Where("id = ?", promo.ID).
		Select("name", "type", "min_amount", "max_amount", "value", "max_bonus",
			"priority", "per_user_limit", "total_limit", "start_at", "end_at", "status").
		Updates(promo)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "活动 %d 不存在", promo.ID)
	}
	return nil
}

func (r *PromoRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	result := r.db.WithContext(ctx).
		Model(&model.RechargePromo{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "活动 %d 不存在", id)
	}
	return nil
}

func (r *PromoRepository) GetByID(ctx context.Context, id int64) (*model.RechargePromo, error) {
	var promo model.RechargePromo
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&promo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "活动 %d 不存在", id)
		}
		return nil, err
	}
	return &promo, nil
}

func (r *PromoRepository) List(ctx context.Context, status string, page, pageSize int) ([]*model.RechargePromo, int64, error) {
	var promos []*model.RechargePromo
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RechargePromo{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("priority DESC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&promos).Error
	return promos, total, err
}

// ListEnabled 所有启用中的活动，按 priority 降序、id 升序
func (r *PromoRepository) ListEnabled(ctx context.Context, tx *gorm.DB) ([]*model.RechargePromo, error) {
	if tx == nil {
		tx = r.db
	}
	var promos []*model.RechargePromo
	err := tx.WithContext(ctx).
		Where("status = ?", model.PromoStatusEnabled).
		Order("priority DESC, id ASC").
		Find(&promos).Error
	return promos, err
}

// TryIncrementUsed 原子地占用一次名额
//
// UPDATE recharge_promo SET used_count = used_count + 1
// WHERE id = ? AND status = 'enabled' AND (total_limit = 0 OR used_count < total_limit)
//
// 检查和递增在同一条语句里完成，不同用户并发充值也不会超发。
// 返回 false 表示名额已满或活动已停用。
func (r *PromoRepository) TryIncrementUsed(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	result := tx.WithContext(ctx).
		Model(&model.RechargePromo{}).
		Where("id = ? AND status = ? AND (total_limit = 0 OR used_count < total_limit)", id, model.PromoStatusEnabled).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PromoRepository) CountUserUsage(ctx context.Context, tx *gorm.DB, promoID, userID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.PromoUsage{}).
		Where("promo_id = ? AND user_id = ?", promoID, userID).
		Count(&count).Error
	return count, err
}

func (r *PromoRepository) CreateUsage(ctx context.Context, tx *gorm.DB, usage *model.PromoUsage) error {
	return tx.WithContext(ctx).Create(usage).Error
}

// GetUsageByTxnRef 按充值流水号查使用记录，没有时返回 nil, nil
func (r *PromoRepository) GetUsageByTxnRef(ctx context.Context, tx *gorm.DB, txnNo string) (*model.PromoUsage, error) {
	if tx == nil {
		tx = r.db
	}
	var usage model.PromoUsage
	err := tx.WithContext(ctx).Where("recharge_txn_ref = ?", txnNo).First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &usage, nil
}

func (r *PromoRepository) ListUsages(ctx context.Context, promoID int64, page, pageSize int) ([]*model.PromoUsage, int64, error) {
	var usages []*model.PromoUsage
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PromoUsage{}).Where("promo_id = ?", promoID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&usages).Error
	return usages, total, err
}
