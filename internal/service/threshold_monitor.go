package service

import (
	"context"
	"fmt"
	"time"

	"balanceledger/internal/model"
	"balanceledger/pkg/idgen"

	"github.com/shopspring/decimal"
)

const frequencyWindow = 60 * time.Minute

// EntryCounter 滑动窗口计数
type EntryCounter interface {
	CountSince(ctx context.Context, userID int64, entryType model.EntryType, since time.Time) (int64, error)
}

// ThresholdMonitor 交易提交后检查告警阈值
// 只观察，不阻断也不回滚已提交的交易
type ThresholdMonitor struct {
	counter EntryCounter
	configs ThresholdSource
}

func NewThresholdMonitor(counter EntryCounter, configs ThresholdSource) *ThresholdMonitor {
	return &ThresholdMonitor{counter: counter, configs: configs}
}

func (m *ThresholdMonitor) Evaluate(ctx context.Context, entry *model.BalanceLog) ([]model.AlertEvent, error) {
	cfg, err := m.configs.Current(ctx)
	if err != nil {
		return nil, err
	}

	var alerts []model.AlertEvent
	amount := entry.Amount.Abs()

	switch entry.Type {
	case model.EntryTypeRecharge:
		if reached(amount, cfg.LargeRechargeAlert) {
			alerts = append(alerts, newAlert(model.AlertLargeRecharge, entry, cfg.LargeRechargeAlert, 0))
		}
		alert, err := m.frequency(ctx, entry, cfg.FrequentRechargeCount, model.AlertFrequentRecharge)
		if err != nil {
			return alerts, err
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}

	case model.EntryTypeConsume:
		if reached(amount, cfg.LargeConsumeAlert) {
			alerts = append(alerts, newAlert(model.AlertLargeConsume, entry, cfg.LargeConsumeAlert, 0))
		}
		alert, err := m.frequency(ctx, entry, cfg.FrequentConsumeCount, model.AlertFrequentConsume)
		if err != nil {
			return alerts, err
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}

	case model.EntryTypeAdjust:
		if reached(amount, cfg.LargeAdjustAlert) {
			alerts = append(alerts, newAlert(model.AlertLargeAdminAdjustment, entry, cfg.LargeAdjustAlert, 0))
		}
	}

	return alerts, nil
}

func (m *ThresholdMonitor) frequency(ctx context.Context, entry *model.BalanceLog, limit int, kind model.AlertKind) (*model.AlertEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	count, err := m.counter.CountSince(ctx, entry.UserID, entry.Type, entry.CreatedAt.Add(-frequencyWindow))
	if err != nil {
		return nil, fmt.Errorf("统计交易频次失败: %w", err)
	}
	if count < int64(limit) {
		return nil, nil
	}
	alert := newAlert(kind, entry, decimal.NewFromInt(int64(limit)), count)
	return &alert, nil
}

// reached 阈值为 0 表示不检查
func reached(amount, threshold decimal.Decimal) bool {
	return threshold.IsPositive() && amount.GreaterThanOrEqual(threshold)
}

func newAlert(kind model.AlertKind, entry *model.BalanceLog, threshold decimal.Decimal, count int64) model.AlertEvent {
	return model.AlertEvent{
		ID:        idgen.GenerateEventID(),
		Kind:      kind,
		UserID:    entry.UserID,
		TxnNo:     entry.TxnNo,
		EntryType: entry.Type,
		Amount:    entry.Amount,
		Threshold: threshold,
		Count:     count,
		CreatedAt: entry.CreatedAt,
	}
}
