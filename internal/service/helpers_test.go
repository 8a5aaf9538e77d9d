package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"balanceledger/internal/config"
	"balanceledger/internal/infrastructure/database/dbtest"
	"balanceledger/internal/model"
	"balanceledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func init() {
	idgen.Init(1)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeClock 测试用可调时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingSink 记录收到的告警
type recordingSink struct {
	mu     sync.Mutex
	alerts []model.AlertEvent
}

func (s *recordingSink) Publish(_ context.Context, alerts []model.AlertEvent) error {
	s.mu.Lock()
	s.alerts = append(s.alerts, alerts...)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Kinds() []model.AlertKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]model.AlertKind, 0, len(s.alerts))
	for _, a := range s.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

type testEnv struct {
	db         *gorm.DB
	clock      *fakeClock
	store      *LedgerStore
	selector   *PromoSelector
	thresholds *ThresholdProvider
	sink       *recordingSink
	processor  *TransactionProcessor
}

var baseTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, thresholds config.ThresholdConfig) *testEnv {
	t.Helper()

	db := dbtest.NewTestDB(t)
	clock := newFakeClock(baseTime)
	env := &testEnv{
		db:         db,
		clock:      clock,
		store:      NewLedgerStore(db, "balance_ledger_event"),
		selector:   NewPromoSelector(db),
		thresholds: NewThresholdProvider(db, thresholds, time.Minute),
		sink:       &recordingSink{},
	}
	env.thresholds.now = clock.Now
	env.processor = NewTransactionProcessor(db, env.store, env.selector, ProcessorOptions{
		Configs: env.thresholds,
		Alerts:  env.sink,
		Timeout: 5 * time.Second,
		Now:     clock.Now,
	})
	return env
}

func (e *testEnv) do(t *testing.T, userID int64, typ model.EntryType, amount string) (*TxResult, error) {
	t.Helper()
	return e.processor.Process(context.Background(), TxRequest{
		UserID: userID,
		Amount: dec(amount),
		Type:   typ,
	})
}

func (e *testEnv) mustDo(t *testing.T, userID int64, typ model.EntryType, amount string) *TxResult {
	t.Helper()
	res, err := e.do(t, userID, typ, amount)
	if err != nil {
		t.Fatalf("%s %s for user %d: %v", typ, amount, userID, err)
	}
	return res
}

func (e *testEnv) balance(t *testing.T, userID int64) *model.UserBalance {
	t.Helper()
	var b model.UserBalance
	if err := e.db.Where("user_id = ?", userID).First(&b).Error; err != nil {
		t.Fatalf("load balance of user %d: %v", userID, err)
	}
	return &b
}

func (e *testEnv) entries(t *testing.T, userID int64) []model.BalanceLog {
	t.Helper()
	var logs []model.BalanceLog
	if err := e.db.Where("user_id = ?", userID).Order("id ASC").Find(&logs).Error; err != nil {
		t.Fatalf("load entries of user %d: %v", userID, err)
	}
	return logs
}

func (e *testEnv) addPromo(t *testing.T, p model.RechargePromo) *model.RechargePromo {
	t.Helper()
	if p.Status == "" {
		p.Status = model.PromoStatusEnabled
	}
	if p.Name == "" {
		p.Name = string(p.Type) + " promo"
	}
	if err := e.db.Create(&p).Error; err != nil {
		t.Fatalf("create promo: %v", err)
	}
	return &p
}

func (e *testEnv) promo(t *testing.T, id int64) *model.RechargePromo {
	t.Helper()
	var p model.RechargePromo
	if err := e.db.First(&p, id).Error; err != nil {
		t.Fatalf("load promo %d: %v", id, err)
	}
	return &p
}

func (e *testEnv) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func timePtr(t time.Time) *time.Time {
	return &t
}
