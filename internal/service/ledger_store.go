package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"balanceledger/internal/model"
	"balanceledger/internal/repository"
	"balanceledger/pkg/apperr"
	"balanceledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DeltaRequest 一次余额变动
type DeltaRequest struct {
	UserID         int64
	Amount         decimal.Decimal // 带符号，正数入账
	Type           model.EntryType
	Remark         string
	PromoID        *int64
	BonusAmount    decimal.Decimal
	RefNo          string
	Operator       string
	IdempotencyKey string
	At             time.Time
}

// LedgerStore 余额与流水的唯一写入口
//
// 余额行更新、流水追加、事件写入 outbox 在调用方提供的同一个事务里完成，
// 任何一步失败整个事务回滚。
type LedgerStore struct {
	balances *repository.BalanceRepository
	ledger   *repository.LedgerRepository
	outbox   *repository.OutboxRepository
	topic    string
}

func NewLedgerStore(db *gorm.DB, topic string) *LedgerStore {
	return &LedgerStore{
		balances: repository.NewBalanceRepository(db),
		ledger:   repository.NewLedgerRepository(db),
		outbox:   repository.NewOutboxRepository(db),
		topic:    topic,
	}
}

// Load 在事务内读取并锁定余额行，账户不存在时自动开户
func (s *LedgerStore) Load(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserBalance, error) {
	return s.balances.GetOrCreateForUpdate(ctx, tx, userID)
}

func checkSign(t model.EntryType, amount decimal.Decimal) error {
	if amount.IsZero() {
		return apperr.New(apperr.KindInvalidArgument, "金额不能为 0")
	}
	switch t {
	case model.EntryTypeRecharge, model.EntryTypeRefund, model.EntryTypeReward:
		if amount.IsNegative() {
			return apperr.New(apperr.KindInvalidArgument, "%s 金额必须为正数", t)
		}
	case model.EntryTypeConsume:
		if amount.IsPositive() {
			return apperr.New(apperr.KindInvalidArgument, "consume 金额必须为负数")
		}
	case model.EntryTypeAdjust:
	default:
		return apperr.New(apperr.KindInvalidArgument, "未知流水类型: %s", t)
	}
	return nil
}

// ApplyDelta 变更可用余额并追加一条流水
func (s *LedgerStore) ApplyDelta(ctx context.Context, tx *gorm.DB, req DeltaRequest) (*model.BalanceLog, error) {
	if err := checkSign(req.Type, req.Amount); err != nil {
		return nil, err
	}

	balance, err := s.Load(ctx, tx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("读取余额失败: %w", err)
	}

	// 冻结账户只允许管理员调账
	if balance.IsFrozen() && req.Type != model.EntryTypeAdjust {
		return nil, apperr.New(apperr.KindAccountFrozen, "用户 %d 账户已冻结", req.UserID)
	}

	after := balance.Available.Add(req.Amount)
	if after.IsNegative() {
		return nil, apperr.New(apperr.KindInsufficientBalance,
			"可用余额 %s，变动 %s", balance.Available.StringFixed(2), req.Amount.StringFixed(2))
	}

	change := repository.BalanceChange{
		Available:      after,
		TotalRecharged: balance.TotalRecharged,
		TotalConsumed:  balance.TotalConsumed,
	}
	switch req.Type {
	case model.EntryTypeRecharge:
		change.TotalRecharged = change.TotalRecharged.Add(req.Amount)
	case model.EntryTypeConsume:
		change.TotalConsumed = change.TotalConsumed.Add(req.Amount.Abs())
	}

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}

	if err := s.balances.CompareAndSwap(ctx, tx, balance, change); err != nil {
		return nil, err
	}

	entry := &model.BalanceLog{
		TxnNo:         idgen.GenerateTxnNo(at),
		UserID:        req.UserID,
		Type:          req.Type,
		Amount:        req.Amount,
		BonusAmount:   req.BonusAmount,
		BalanceBefore: balance.Available,
		BalanceAfter:  after,
		Remark:        req.Remark,
		PromoID:       req.PromoID,
		RefNo:         req.RefNo,
		Operator:      req.Operator,
		CreatedAt:     at,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		entry.IdempotencyKey = &key
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	if err := s.writeEvent(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("写入消息失败: %w", err)
	}

	return entry, nil
}

func (s *LedgerStore) writeEvent(ctx context.Context, tx *gorm.DB, entry *model.BalanceLog) error {
	payload, err := json.Marshal(map[string]interface{}{
		"txn_no":         entry.TxnNo,
		"user_id":        entry.UserID,
		"type":           entry.Type,
		"amount":         entry.Amount,
		"bonus_amount":   entry.BonusAmount,
		"balance_before": entry.BalanceBefore,
		"balance_after":  entry.BalanceAfter,
		"promo_id":       entry.PromoID,
		"ref_no":         entry.RefNo,
		"created_at":     entry.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	return s.outbox.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: entry.TxnNo,
		EventType:  model.EventLedgerCommitted,
		Topic:      s.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}
