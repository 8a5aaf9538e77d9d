package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"balanceledger/internal/config"
	"balanceledger/internal/model"
	"balanceledger/internal/repository"
	"balanceledger/pkg/apperr"
)

func TestBalanceService_GetBalanceOfNewUser(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})

	b, err := NewBalanceService(env.db).GetBalance(context.Background(), 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.UserID != 5 || !b.Available.IsZero() || b.Status != model.BalanceStatusActive {
		t.Fatalf("balance = %+v", b)
	}
}

func TestBalanceService_ListLogs(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})
	svc := NewBalanceService(env.db)
	ctx := context.Background()

	env.mustDo(t, 1, model.EntryTypeRecharge, "100")
	env.clock.Advance(time.Hour)
	env.mustDo(t, 1, model.EntryTypeConsume, "10")
	env.clock.Advance(time.Hour)
	last := env.mustDo(t, 1, model.EntryTypeConsume, "10")
	env.mustDo(t, 2, model.EntryTypeRecharge, "1")

	all, total, err := svc.ListLogs(ctx, repository.LedgerFilter{UserID: 1})
	if err != nil || total != 3 || len(all) != 3 {
		t.Fatalf("all = %d/%d, %v", len(all), total, err)
	}
	if all[0].TxnNo != last.Entry.TxnNo {
		t.Fatalf("newest entry should come first")
	}

	consumes, total, err := svc.ListLogs(ctx, repository.LedgerFilter{UserID: 1, Type: model.EntryTypeConsume, PageSize: 1})
	if err != nil || total != 2 || len(consumes) != 1 {
		t.Fatalf("consumes = %d/%d, %v", len(consumes), total, err)
	}

	start := baseTime.Add(30 * time.Minute)
	end := baseTime.Add(90 * time.Minute)
	window, total, err := svc.ListLogs(ctx, repository.LedgerFilter{UserID: 1, Start: &start, End: &end})
	if err != nil || total != 1 || len(window) != 1 {
		t.Fatalf("window = %d/%d, %v", len(window), total, err)
	}

	if _, _, err := svc.ListLogs(ctx, repository.LedgerFilter{UserID: 1, Type: "bogus"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("bad type: expected InvalidArgument, got %v", err)
	}

	got, err := svc.GetLog(ctx, last.Entry.TxnNo)
	if err != nil || got.ID != last.Entry.ID {
		t.Fatalf("get log: %+v %v", got, err)
	}
	if _, err := svc.GetLog(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing log: expected NotFound, got %v", err)
	}
}
