package repository

import (
	"context"
	"errors"

	"balanceledger/internal/model"

	"gorm.io/gorm"
)

type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get 未配置时返回 nil, nil
func (r *ConfigRepository) Get(ctx context.Context) (*model.BalanceConfig, error) {
	var cfg model.BalanceConfig
	err := r.db.WithContext(ctx).Where("id = ?", model.BalanceConfigID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// Save 覆盖全部字段，包括为 0 的阈值；行不存在时插入
func (r *ConfigRepository) Save(ctx context.Context, cfg *model.BalanceConfig) error {
	cfg.ID = model.BalanceConfigID
	return r.db.WithContext(ctx).Save(cfg).Error
}
