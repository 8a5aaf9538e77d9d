package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"balanceledger/internal/infrastructure/database/dbtest"
	"balanceledger/internal/model"
	"balanceledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBalanceRepository_CompareAndSwap(t *testing.T) {
	db := dbtest.NewTestDB(t)
	repo := NewBalanceRepository(db)
	ctx := context.Background()

	var current *model.UserBalance
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		current, err = repo.GetOrCreateForUpdate(ctx, tx, 1)
		return err
	})
	if err != nil {
		t.Fatalf("open account: %v", err)
	}
	if current.Version != 0 || !current.Available.IsZero() {
		t.Fatalf("new account = %+v", current)
	}

	change := BalanceChange{Available: dec("10"), TotalRecharged: dec("10"), TotalConsumed: decimal.Zero}
	if err := repo.CompareAndSwap(ctx, db, current, change); err != nil {
		t.Fatalf("first swap: %v", err)
	}

	// 旧版本再写一次必须失败
	err = repo.CompareAndSwap(ctx, db, current, BalanceChange{Available: dec("20")})
	if !errors.Is(err, apperr.ErrConcurrentModification) {
		t.Fatalf("stale swap: expected ConcurrentModification, got %v", err)
	}
	if !apperr.Retryable(err) {
		t.Fatalf("concurrent modification should be retryable")
	}

	err = repo.CompareAndSwap(ctx, db, current, BalanceChange{Available: dec("-1")})
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("negative swap: expected InsufficientBalance, got %v", err)
	}

	got, err := repo.GetByUserID(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || !got.Available.Equal(dec("10")) {
		t.Fatalf("balance = %+v, want version 1 available 10", got)
	}
}

func TestBalanceRepository_GetOrCreateIsIdempotent(t *testing.T) {
	db := dbtest.NewTestDB(t)
	repo := NewBalanceRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := db.Transaction(func(tx *gorm.DB) error {
			_, err := repo.GetOrCreateForUpdate(ctx, tx, 7)
			return err
		}); err != nil {
			t.Fatalf("get or create #%d: %v", i, err)
		}
	}

	var n int64
	db.Model(&model.UserBalance{}).Where("user_id = ?", 7).Count(&n)
	if n != 1 {
		t.Fatalf("accounts = %d, want 1", n)
	}
	if _, err := repo.GetByUserID(ctx, 8); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing user: expected NotFound, got %v", err)
	}
}

func TestBalanceRepository_SetStatus(t *testing.T) {
	db := dbtest.NewTestDB(t)
	repo := NewBalanceRepository(db)
	ctx := context.Background()

	b, err := repo.SetStatus(ctx, 3, model.BalanceStatusFrozen)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if !b.IsFrozen() || b.Version != 1 {
		t.Fatalf("frozen balance = %+v", b)
	}
	b, err = repo.SetStatus(ctx, 3, model.BalanceStatusActive)
	if err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if b.IsFrozen() || b.Version != 2 {
		t.Fatalf("active balance = %+v", b)
	}
}

func TestPromoRepository_TryIncrementUsed(t *testing.T) {
	db := dbtest.NewTestDB(t)
	repo := NewPromoRepository(db)
	ctx := context.Background()

	limited := &model.RechargePromo{Name: "limited", Type: model.PromoTypeBonus, Value: dec("1"), TotalLimit: 2, Status: model.PromoStatusEnabled}
	unlimited := &model.RechargePromo{Name: "unlimited", Type: model.PromoTypeBonus, Value: dec("1"), Status: model.PromoStatusEnabled}
	disabled := &model.RechargePromo{Name: "disabled", Type: model.PromoTypeBonus, Value: dec("1"), Status: model.PromoStatusDisabled}
	for _, p := range []*model.RechargePromo{limited, unlimited, disabled} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "limited_first", id: limited.ID, want: true},
		{name: "limited_second", id: limited.ID, want: true},
		{name: "limited_exhausted", id: limited.ID, want: false},
		{name: "unlimited", id: unlimited.ID, want: true},
		{name: "disabled", id: disabled.ID, want: false},
		{name: "missing", id: 999, want: false},
	}
	for _, tt := range tests {
		ok, err := repo.TryIncrementUsed(ctx, db, tt.id)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if ok != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, ok, tt.want)
		}
	}

	got, err := repo.GetByID(ctx, limited.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UsedCount != 2 {
		t.Fatalf("used_count = %d, want 2", got.UsedCount)
	}
}

func TestPromoRepository_UpdateKeepsUsedCount(t *testing.T) {
	db := dbtest.NewTestDB(t)
	repo := NewPromoRepository(db)
	ctx := context.Background()

	p := &model.RechargePromo{Name: "p", Type: model.PromoTypeBonus, Value: dec("1"), Status: model.PromoStatusEnabled}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.TryIncrementUsed(ctx, db, p.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}

	p.Name = "renamed"
	p.UsedCount = 0
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.GetByID(ctx, p.ID)
	if got.Name != "renamed" || got.UsedCount != 1 {
		t.Fatalf("after update = %+v", got)
	}

	if err := repo.Update(ctx, &model.RechargePromo{ID: 404, Name: "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("update missing: expected NotFound, got %v", err)
	}
}

func TestLedgerRepository_Queries(t *testing.T) {
	db := dbtest.NewTestDB(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	key := "idem-1"

	entries := []*model.BalanceLog{
		{TxnNo: "T1", UserID: 1, Type: model.EntryTypeRecharge, Amount: dec("120"), BonusAmount: dec("20"), BalanceAfter: dec("120"), CreatedAt: day.Add(-time.Hour), IdempotencyKey: &key},
		{TxnNo: "T2", UserID: 1, Type: model.EntryTypeRecharge, Amount: dec("55"), BonusAmount: dec("5"), BalanceBefore: dec("120"), BalanceAfter: dec("175"), CreatedAt: day.Add(time.Hour)},
		{TxnNo: "T3", UserID: 1, Type: model.EntryTypeRecharge, Amount: dec("30"), BalanceBefore: dec("175"), BalanceAfter: dec("205"), CreatedAt: day.Add(2 * time.Hour)},
		{TxnNo: "T4", UserID: 2, Type: model.EntryTypeRecharge, Amount: dec("1"), BalanceAfter: dec("1"), CreatedAt: day.Add(time.Hour)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, nil, e); err != nil {
			t.Fatalf("create %s: %v", e.TxnNo, err)
		}
	}

	sum, err := repo.SumPrincipalSince(ctx, nil, 1, model.EntryTypeRecharge, day)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !sum.Equal(dec("80")) {
		t.Fatalf("principal since day = %s, want 80", sum)
	}

	n, err := repo.CountSince(ctx, 1, model.EntryTypeRecharge, day)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v; want 2", n, err)
	}

	found, err := repo.GetByIdempotencyKey(ctx, nil, key)
	if err != nil || found == nil || found.TxnNo != "T1" {
		t.Fatalf("by key = %+v, %v", found, err)
	}
	missing, err := repo.GetByIdempotencyKey(ctx, nil, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing key = %+v, %v", missing, err)
	}

	chain, err := repo.ListChain(ctx, 1, entries[0].ID, 10)
	if err != nil || len(chain) != 2 || chain[0].TxnNo != "T2" {
		t.Fatalf("chain after T1 = %d entries, %v", len(chain), err)
	}

	users, err := repo.ActiveUserIDs(ctx, day, 10)
	if err != nil || len(users) != 2 || users[0] != 1 || users[1] != 2 {
		t.Fatalf("active users = %v, %v", users, err)
	}

	// 重复的 idempotency_key 由唯一索引拒绝
	dup := &model.BalanceLog{TxnNo: "T5", UserID: 1, Type: model.EntryTypeRecharge, Amount: dec("1"), CreatedAt: day, IdempotencyKey: &key}
	if err := repo.Create(ctx, nil, dup); err == nil {
		t.Fatalf("duplicate idempotency key accepted")
	}
}
