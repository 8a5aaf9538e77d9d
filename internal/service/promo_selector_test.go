package service

import (
	"context"
	"testing"
	"time"

	"balanceledger/internal/config"
	"balanceledger/internal/model"
)

func TestPromoCatalog_FindEligible(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})
	ranged := env.addPromo(t, model.RechargePromo{Type: model.PromoTypeBonus, Value: dec("5"), MinAmount: dec("50"), MaxAmount: dec("100"), Priority: 5})
	open := env.addPromo(t, model.RechargePromo{Type: model.PromoTypePercent, Value: dec("1"), Priority: 1})
	env.addPromo(t, model.RechargePromo{Type: model.PromoTypeBonus, Value: dec("5"), Status: model.PromoStatusDisabled, Priority: 9})
	env.addPromo(t, model.RechargePromo{Type: model.PromoTypeBonus, Value: dec("5"), EndAt: timePtr(baseTime.Add(-time.Second)), Priority: 9})
	future := env.addPromo(t, model.RechargePromo{Type: model.PromoTypeBonus, Value: dec("5"), StartAt: timePtr(baseTime.Add(time.Hour)), Priority: 9})

	catalog := NewPromoCatalog(env.db)
	ctx := context.Background()

	tests := []struct {
		name   string
		amount string
		now    time.Time
		want   []int64
	}{
		{name: "below_range", amount: "49.99", now: baseTime, want: []int64{open.ID}},
		{name: "inside_range_ordered_by_priority", amount: "50", now: baseTime, want: []int64{ranged.ID, open.ID}},
		{name: "max_inclusive", amount: "100", now: baseTime, want: []int64{ranged.ID, open.ID}},
		{name: "above_range", amount: "100.01", now: baseTime, want: []int64{open.ID}},
		{name: "future_promo_started", amount: "10", now: baseTime.Add(time.Hour), want: []int64{future.ID, open.ID}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := catalog.FindEligible(ctx, nil, dec(tt.amount), tt.now)
			if err != nil {
				t.Fatalf("find eligible: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d promos, want %v", len(got), tt.want)
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Fatalf("promo[%d] = %d, want %d", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestPromoSelector_SelectIsReadOnlyAndDeterministic(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})
	promo := env.addPromo(t, model.RechargePromo{Type: model.PromoTypePercent, Value: dec("10"), MaxBonus: dec("5"), TotalLimit: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sel, err := env.selector.Select(ctx, 1, dec("200"), baseTime)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if sel.Promo == nil || sel.Promo.ID != promo.ID || !sel.Bonus.Equal(dec("5")) {
			t.Fatalf("select #%d = %+v, want promo %d with bonus 5", i, sel, promo.ID)
		}
		if !sel.Credited(dec("200")).Equal(dec("205")) {
			t.Fatalf("credited = %s, want 205", sel.Credited(dec("200")))
		}
	}
	if got := env.promo(t, promo.ID).UsedCount; got != 0 {
		t.Fatalf("select consumed quota: used_count = %d", got)
	}
}

func TestPromoSelector_ClaimFallsThroughExhausted(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})
	first := env.addPromo(t, model.RechargePromo{Type: model.PromoTypeBonus, Value: dec("10"), Priority: 10, TotalLimit: 1})
	second := env.addPromo(t, model.RechargePromo{Type: model.PromoTypeBonus, Value: dec("3"), Priority: 1})
	ctx := context.Background()

	// 名额在读取之后被抢完，Claim 仍应落到下一个活动
	stale, err := env.selector.Select(ctx, 1, dec("10"), baseTime)
	if err != nil || stale.Promo.ID != first.ID {
		t.Fatalf("select: %+v %v", stale, err)
	}
	if err := env.db.Model(&model.RechargePromo{}).Where("id = ?", first.ID).
		UpdateColumn("used_count", 1).Error; err != nil {
		t.Fatalf("exhaust: %v", err)
	}

	sel, err := env.selector.Claim(ctx, env.db, 1, dec("10"), baseTime)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if sel.Promo == nil || sel.Promo.ID != second.ID {
		t.Fatalf("claimed %+v, want promo %d", sel.Promo, second.ID)
	}
	if got := env.promo(t, second.ID).UsedCount; got != 1 {
		t.Fatalf("second used_count = %d, want 1", got)
	}
}

func TestPromoSelector_NoPromo(t *testing.T) {
	env := newTestEnv(t, config.ThresholdConfig{})

	sel, err := env.selector.Select(context.Background(), 1, dec("10"), baseTime)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Promo != nil || sel.PromoID() != nil {
		t.Fatalf("expected empty selection, got %+v", sel)
	}
	if !sel.Credited(dec("10")).Equal(dec("10")) || !sel.Charge(dec("10")).Equal(dec("10")) {
		t.Fatalf("empty selection changed amounts")
	}
}
