package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"balanceledger/internal/config"
	"balanceledger/internal/model"
	"balanceledger/pkg/apperr"

	"gorm.io/gorm"
)

func TestLedgerStore_ApplyDeltaSign(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})
	ctx := context.Background()

	tests := []struct {
		name   string
		typ    model.EntryType
		amount string
		want   error
	}{
		{name: "recharge_positive", typ: model.EntryTypeRecharge, amount: "10"},
		{name: "recharge_negative", typ: model.EntryTypeRecharge, amount: "-10", want: apperr.ErrInvalidArgument},
		{name: "consume_negative", typ: model.EntryTypeConsume, amount: "-5"},
		{name: "consume_positive", typ: model.EntryTypeConsume, amount: "5", want: apperr.ErrInvalidArgument},
		{name: "reward_negative", typ: model.EntryTypeReward, amount: "-1", want: apperr.ErrInvalidArgument},
		{name: "adjust_negative", typ: model.EntryTypeAdjust, amount: "-1"},
		{name: "zero", typ: model.EntryTypeAdjust, amount: "0", want: apperr.ErrInvalidArgument},
		{name: "unknown_type", typ: "transfer", amount: "1", want: apperr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := env.db.Transaction(func(tx *gorm.DB) error {
				_, err := env.store.ApplyDelta(ctx, tx, DeltaRequest{
					UserID: 1,
					Amount: dec(tt.amount),
					Type:   tt.typ,
					At:     baseTime,
				})
				return err
			})
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if got := env.balance(t, 1).Available; !got.Equal(dec("4")) {
		t.Fatalf("available = %s, want 4", got)
	}
}

func TestLedgerStore_WritesEntryAndEvent(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})
	ctx := context.Background()

	var entry *model.BalanceLog
	err := env.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = env.store.ApplyDelta(ctx, tx, DeltaRequest{
			UserID:         9,
			Amount:         dec("12.34"),
			Type:           model.EntryTypeReward,
			Remark:         "签到奖励",
			Operator:       "ops",
			IdempotencyKey: "reward-9",
			At:             baseTime,
		})
		return err
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.HasPrefix(entry.TxnNo, "BL20240601") {
		t.Fatalf("txn_no = %s", entry.TxnNo)
	}
	if entry.IdempotencyKey == nil || *entry.IdempotencyKey != "reward-9" {
		t.Fatalf("idempotency key not stored")
	}
	if !entry.CreatedAt.Equal(baseTime) {
		t.Fatalf("created_at = %s, want %s", entry.CreatedAt, baseTime)
	}

	var msg model.OutboxMessage
	if err := env.db.Where("message_key = ?", entry.TxnNo).First(&msg).Error; err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if msg.EventType != model.EventLedgerCommitted || msg.Topic != "balance_ledger_event" || msg.Status != model.OutboxStatusPending {
		t.Fatalf("outbox message = %+v", msg)
	}
	if !strings.Contains(msg.Payload, `"type":"reward"`) {
		t.Fatalf("payload = %s", msg.Payload)
	}
}

func TestLedgerStore_RollbackLeavesNothing(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})
	ctx := context.Background()
	boom := errors.New("boom")

	err := env.db.Transaction(func(tx *gorm.DB) error {
		if _, err := env.store.ApplyDelta(ctx, tx, DeltaRequest{UserID: 1, Amount: dec("10"), Type: model.EntryTypeRecharge, At: baseTime}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := env.count(t, &model.BalanceLog{}, ""); got != 0 {
		t.Fatalf("entries = %d, want 0", got)
	}
	if got := env.count(t, &model.OutboxMessage{}, ""); got != 0 {
		t.Fatalf("outbox = %d, want 0", got)
	}
}
