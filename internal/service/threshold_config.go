package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"balanceledger/internal/config"
	"balanceledger/internal/model"
	"balanceledger/internal/repository"
	"balanceledger/pkg/apperr"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ThresholdSource 提供当前生效的限额与告警阈值
type ThresholdSource interface {
	Current(ctx context.Context) (*model.BalanceConfig, error)
}

// ThresholdProvider 读取 balance_config，进程内缓存 ttl，管理端修改后立即失效
type ThresholdProvider struct {
	repo     *repository.ConfigRepository
	defaults model.BalanceConfig
	ttl      time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	cached   *model.BalanceConfig
	loadedAt time.Time
}

func NewThresholdProvider(db *gorm.DB, defaults config.ThresholdConfig, ttl time.Duration) *ThresholdProvider {
	return &ThresholdProvider{
		repo:     repository.NewConfigRepository(db),
		defaults: DefaultBalanceConfig(defaults),
		ttl:      ttl,
		now:      time.Now,
	}
}

// DefaultBalanceConfig 配置文件中的默认阈值
func DefaultBalanceConfig(t config.ThresholdConfig) model.BalanceConfig {
	return model.BalanceConfig{
		ID:                    model.BalanceConfigID,
		MinRechargeAmount:     config.Dec(t.MinRechargeAmount),
		MaxRechargeAmount:     config.Dec(t.MaxRechargeAmount),
		MaxDailyRecharge:      config.Dec(t.MaxDailyRecharge),
		MaxBalanceLimit:       config.Dec(t.MaxBalanceLimit),
		LargeRechargeAlert:    config.Dec(t.LargeRechargeAlert),
		LargeConsumeAlert:     config.Dec(t.LargeConsumeAlert),
		FrequentRechargeCount: t.FrequentRechargeCount,
		FrequentConsumeCount:  t.FrequentConsumeCount,
		LargeAdjustAlert:      config.Dec(t.LargeAdjustAlert),
	}
}

func (p *ThresholdProvider) Current(ctx context.Context) (*model.BalanceConfig, error) {
	p.mu.RLock()
	if p.cached != nil && p.now().Sub(p.loadedAt) < p.ttl {
		c := *p.cached
		p.mu.RUnlock()
		return &c, nil
	}
	p.mu.RUnlock()

	cfg, err := p.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取余额配置失败: %w", err)
	}
	if cfg == nil {
		seed := p.defaults
		if err := p.repo.Save(ctx, &seed); err != nil {
			log.Warn().Err(err).Msg("写入默认余额配置失败，使用内存默认值")
		}
		cfg = &seed
	}

	p.mu.Lock()
	p.cached = cfg
	p.loadedAt = p.now()
	p.mu.Unlock()

	c := *cfg
	return &c, nil
}

// Invalidate 丢弃缓存，下次读取回源
func (p *ThresholdProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// Update 校验并保存新配置
func (p *ThresholdProvider) Update(ctx context.Context, cfg *model.BalanceConfig) (*model.BalanceConfig, error) {
	if err := validateBalanceConfig(cfg); err != nil {
		return nil, err
	}
	if err := p.repo.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("保存余额配置失败: %w", err)
	}
	p.Invalidate()
	log.Info().Interface("config", cfg).Msg("余额配置已更新")
	return p.Current(ctx)
}

func validateBalanceConfig(cfg *model.BalanceConfig) error {
	amounts := []struct {
		name  string
		value decimal.Decimal
	}{
		{"min_recharge_amount", cfg.MinRechargeAmount},
		{"max_recharge_amount", cfg.MaxRechargeAmount},
		{"max_daily_recharge", cfg.MaxDailyRecharge},
		{"max_balance_limit", cfg.MaxBalanceLimit},
		{"large_recharge_alert", cfg.LargeRechargeAlert},
		{"large_consume_alert", cfg.LargeConsumeAlert},
		{"large_adjust_alert", cfg.LargeAdjustAlert},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return apperr.New(apperr.KindInvalidArgument, "%s 不能为负数", a.name)
		}
	}
	if cfg.FrequentRechargeCount < 0 || cfg.FrequentConsumeCount < 0 {
		return apperr.New(apperr.KindInvalidArgument, "频次阈值不能为负数")
	}
	if cfg.MaxRechargeAmount.IsPositive() && cfg.MinRechargeAmount.GreaterThan(cfg.MaxRechargeAmount) {
		return apperr.New(apperr.KindInvalidArgument, "min_recharge_amount 不能大于 max_recharge_amount")
	}
	return nil
}
