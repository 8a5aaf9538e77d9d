package repository

import (
	"context"
	"errors"
	"time"

	"balanceledger/internal/model"
	"balanceledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerRepository 流水只提供追加和查询，没有更新和删除
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.BalanceLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) GetByTxnNo(ctx context.Context, txnNo string) (*model.BalanceLog, error) {
	var entry model.BalanceLog
	err := r.db.WithContext(ctx).Where("txn_no = ?", txnNo).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "流水 %s 不存在", txnNo)
		}
		return nil, err
	}
	return &entry, nil
}

// GetByIdempotencyKey 未找到返回 nil, nil
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*model.BalanceLog, error) {
	if tx == nil {
		tx = r.db
	}
	var entry model.BalanceLog
	err := tx.WithContext(ctx).Where("idempotency_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// SumPrincipalSince 统计某类型流水自 since 起的本金合计（不含活动赠送）
func (r *LedgerRepository) SumPrincipalSince(ctx context.Context, tx *gorm.DB, userID int64, entryType model.EntryType, since time.Time) (decimal.Decimal, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []model.BalanceLog
	err := tx.WithContext(ctx).
		Select("amount", "bonus_amount").
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, entryType, since).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for i := range rows {
		sum = sum.Add(rows[i].Principal())
	}
	return sum, nil
}

// CountSince 滑动窗口内的流水笔数
func (r *LedgerRepository) CountSince(ctx context.Context, userID int64, entryType model.EntryType, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.BalanceLog{}).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, entryType, since).
		Count(&count).Error
	return count, err
}

// LedgerFilter 流水查询条件
type LedgerFilter struct {
	UserID   int64
	Type     model.EntryType
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

func (r *LedgerRepository) List(ctx context.Context, filter LedgerFilter) ([]*model.BalanceLog, int64, error) {
	var entries []*model.BalanceLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BalanceLog{}).Where("user_id = ?", filter.UserID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Start != nil {
		query = query.Where("created_at >= ?", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("created_at < ?", *filter.End)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&entries).Error

	return entries, total, err
}

// ListChain 按写入顺序读取某用户 afterID 之后的流水，用于链路校验
func (r *LedgerRepository) ListChain(ctx context.Context, userID, afterID int64, limit int) ([]*model.BalanceLog, error) {
	var entries []*model.BalanceLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id > ?", userID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// ActiveUserIDs since 之后有流水的用户
func (r *LedgerRepository) ActiveUserIDs(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.BalanceLog{}).
		Where("created_at >= ?", since).
		Distinct().
		Order("user_id ASC").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}
