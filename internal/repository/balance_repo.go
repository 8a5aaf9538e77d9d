package repository

import (
	"context"
	"errors"

	"balanceledger/internal/infrastructure/database"
	"balanceledger/internal/model"
	"balanceledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByUserID(ctx context.Context, userID int64) (*model.UserBalance, error) {
	var balance model.UserBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "用户 %d 没有余额账户", userID)
		}
		return nil, err
	}
	return &balance, nil
}

// GetForUpdate 在事务内读取余额行，MySQL 下加行锁
func (r *BalanceRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserBalance, error) {
	var balance model.UserBalance
	q := tx.WithContext(ctx)
	if database.SupportsRowLock(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "用户 %d 没有余额账户", userID)
		}
		return nil, err
	}
	return &balance, nil
}

// GetOrCreateForUpdate 首次交易时自动开户，并发开户依赖 user_id 唯一索引兜底
func (r *BalanceRepository) GetOrCreateForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserBalance, error) {
	balance, err := r.GetForUpdate(ctx, tx, userID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	newBalance := &model.UserBalance{
		UserID:         userID,
		Available:      decimal.Zero,
		Frozen:         decimal.Zero,
		TotalRecharged: decimal.Zero,
		TotalConsumed:  decimal.Zero,
		Status:         model.BalanceStatusActive,
	}
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error
	if err != nil {
		return nil, err
	}

	return r.GetForUpdate(ctx, tx, userID)
}

// BalanceChange 一次余额变更后的目标值
type BalanceChange struct {
	Available      decimal.Decimal
	TotalRecharged decimal.Decimal
	TotalConsumed  decimal.Decimal
}

// CompareAndSwap 以 version 作为乐观锁写回余额
// 行锁或用户锁之外的任何写入都会让 version 变化，此时返回 ConcurrentModification
func (r *BalanceRepository) CompareAndSwap(ctx context.Context, tx *gorm.DB, current *model.UserBalance, change BalanceChange) error {
	if change.Available.IsNegative() {
		return apperr.New(apperr.KindInsufficientBalance, "可用余额不能为负")
	}

	result := tx.WithContext(ctx).
		Model(&model.UserBalance{}).
		Where("user_id = ? AND version = ?", current.UserID, current.Version).
		Updates(map[string]interface{}{
			"available":       change.Available,
			"total_recharged": change.TotalRecharged,
			"total_consumed":  change.TotalConsumed,
			"version":         gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindConcurrentModification, "用户 %d 余额已被并发修改", current.UserID)
	}
	return nil
}

// SetStatus 冻结/解冻账户，不存在时先开户
func (r *BalanceRepository) SetStatus(ctx context.Context, userID int64, status string) (*model.UserBalance, error) {
	var balance *model.UserBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := r.GetOrCreateForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		result := tx.WithContext(ctx).
			Model(&model.UserBalance{}).
			Where("user_id = ? AND version = ?", userID, b.Version).
			Updates(map[string]interface{}{
				"status":  status,
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.New(apperr.KindConcurrentModification, "用户 %d 余额已被并发修改", userID)
		}
		balance, err = r.GetForUpdate(ctx, tx, userID)
		return err
	})
	return balance, err
}
