package service

import (
	"context"
	"fmt"
	"time"

	"balanceledger/internal/config"
	"balanceledger/internal/infrastructure/lock"
	"balanceledger/internal/model"
	"balanceledger/internal/repository"
	"balanceledger/pkg/apperr"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TxRequest 充值回调、消费、退款、调账、奖励统一走这里
type TxRequest struct {
	UserID int64
	// recharge/refund/reward 为正数；consume 正负均可，按 -|amount| 扣减；adjust 带符号
	Amount         decimal.Decimal
	Type           model.EntryType
	Remark         string
	RefNo          string
	Operator       string
	IdempotencyKey string
}

// TxResult 提交结果，充值时附带活动信息供收据展示
type TxResult struct {
	Entry          *model.BalanceLog    `json:"entry"`
	State          model.TxState        `json:"state"`
	Promo          *model.RechargePromo `json:"promo,omitempty"`
	BonusAmount    decimal.Decimal      `json:"bonus_amount"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	ChargeAmount   decimal.Decimal      `json:"charge_amount"`
	Alerts         []model.AlertEvent   `json:"alerts,omitempty"`
	Duplicate      bool                 `json:"duplicate,omitempty"`
}

// ProcessorOptions 可选依赖，零值使用默认实现
type ProcessorOptions struct {
	Locker  lock.Locker
	Configs ThresholdSource
	Alerts  AlertSink
	Timeout time.Duration
	Now     func() time.Time
}

// TransactionProcessor 一次余额变更的完整流程
//
//	INITIATED -> VALIDATED -> PROMO_RESOLVED(仅充值) -> COMMITTED
//	                 任一步失败 -> REJECTED，不落任何数据
//
// 同一用户的请求由 Locker 串行化；余额行在事务内 FOR UPDATE + version 校验；
// 活动名额占用、使用记录、余额、流水、outbox 在同一个数据库事务里提交。
// 核心不做自动重试，Timeout / ConcurrentModification 由调用方决定是否重试。
type TransactionProcessor struct {
	db       *gorm.DB
	store    *LedgerStore
	selector *PromoSelector
	ledger   *repository.LedgerRepository
	monitor  *ThresholdMonitor
	locker   lock.Locker
	configs  ThresholdSource
	alerts   AlertSink
	timeout  time.Duration
	now      func() time.Time
}

func NewTransactionProcessor(db *gorm.DB, store *LedgerStore, selector *PromoSelector, opts ProcessorOptions) *TransactionProcessor {
	p := &TransactionProcessor{
		db:       db,
		store:    store,
		selector: selector,
		ledger:   repository.NewLedgerRepository(db),
		locker:   opts.Locker,
		configs:  opts.Configs,
		alerts:   opts.Alerts,
		timeout:  opts.Timeout,
		now:      opts.Now,
	}
	if p.locker == nil {
		p.locker = lock.NewLocalLocker()
	}
	if p.configs == nil {
		p.configs = NewThresholdProvider(db, config.ThresholdConfig{}, time.Minute)
	}
	if p.alerts == nil {
		p.alerts = LogAlertSink{}
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.monitor = NewThresholdMonitor(p.ledger, p.configs)
	return p
}

// attempt 记录状态流转，非法流转属于程序错误
type attempt struct {
	state model.TxState
}

func (a *attempt) advance(to model.TxState) {
	if !model.CanTxTransitionTo(a.state, to) {
		panic(fmt.Sprintf("非法的交易状态流转: %s -> %s", a.state, to))
	}
	a.state = to
}

// Process 执行一次交易
func (p *TransactionProcessor) Process(ctx context.Context, req TxRequest) (*TxResult, error) {
	att := &attempt{state: model.TxStateInitiated}

	result, err := p.process(ctx, req, att)
	if err != nil {
		if !att.state.Terminal() {
			att.advance(model.TxStateRejected)
		}
		err = apperr.FromContext(err)
		log.Info().
			Err(err).
			Int64("user_id", req.UserID).
			Str("type", string(req.Type)).
			Str("amount", req.Amount.String()).
			Str("kind", string(apperr.KindOf(err))).
			Msg("余额交易被拒绝")
		return nil, err
	}
	return result, nil
}

func (p *TransactionProcessor) process(ctx context.Context, req TxRequest, att *attempt) (*TxResult, error) {
	amount, err := normalizeAmount(req.Type, req.Amount)
	if err != nil {
		return nil, err
	}
	if req.UserID <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "user_id 非法")
	}

	// 幂等：同一个 key 已经提交过，直接返回原流水
	if dup, err := p.findDuplicate(ctx, nil, req); dup != nil || err != nil {
		return dup, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	release, err := p.locker.Acquire(ctx, lock.UserKey(req.UserID), req.IdempotencyKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTimeout, err, "获取用户锁超时")
	}
	defer release()

	// 拿到锁后再查一次，防止并发的重复提交
	if dup, err := p.findDuplicate(ctx, nil, req); dup != nil || err != nil {
		return dup, err
	}

	limits, err := p.configs.Current(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now()
	sel := noSelection()
	var entry *model.BalanceLog

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := p.store.Load(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if balance.IsFrozen() && req.Type != model.EntryTypeAdjust {
			return apperr.New(apperr.KindAccountFrozen, "用户 %d 账户已冻结", req.UserID)
		}

		if err := p.validate(ctx, tx, req.Type, balance, amount, limits, now); err != nil {
			return err
		}
		att.advance(model.TxStateValidated)

		credited := amount
		if req.Type == model.EntryTypeRecharge {
			sel, err = p.selector.Claim(ctx, tx, req.UserID, amount, now)
			if err != nil {
				return err
			}
			credited = sel.Credited(amount)
			// 赠送金额也计入余额上限
			if err := checkBalanceCap(balance, credited, limits); err != nil {
				return err
			}
			att.advance(model.TxStatePromoResolved)
		}

		entry, err = p.store.ApplyDelta(ctx, tx, DeltaRequest{
			UserID:         req.UserID,
			Amount:         credited,
			Type:           req.Type,
			Remark:         req.Remark,
			PromoID:        sel.PromoID(),
			BonusAmount:    sel.Bonus,
			RefNo:          req.RefNo,
			Operator:       req.Operator,
			IdempotencyKey: req.IdempotencyKey,
			At:             now,
		})
		if err != nil {
			return err
		}

		return p.selector.RecordUsage(ctx, tx, req.UserID, sel, amount, entry.TxnNo, now)
	})
	if err != nil {
		// 唯一索引兜底：其他实例已用同一个 key 提交
		if req.IdempotencyKey != "" {
			if dup, dupErr := p.findDuplicate(context.WithoutCancel(ctx), nil, req); dupErr == nil && dup != nil {
				return dup, nil
			}
		}
		return nil, err
	}
	att.advance(model.TxStateCommitted)

	log.Info().
		Str("txn_no", entry.TxnNo).
		Int64("user_id", entry.UserID).
		Str("type", string(entry.Type)).
		Str("amount", entry.Amount.StringFixed(2)).
		Str("balance_after", entry.BalanceAfter.StringFixed(2)).
		Interface("promo_id", entry.PromoID).
		Msg("余额交易成功")

	result := &TxResult{
		Entry:          entry,
		State:          att.state,
		Promo:          sel.Promo,
		BonusAmount:    sel.Bonus,
		DiscountAmount: sel.Discount,
		ChargeAmount:   sel.Charge(amount),
	}
	if req.Type != model.EntryTypeRecharge {
		result.ChargeAmount = decimal.Zero
	}
	result.Alerts = p.observe(context.WithoutCancel(ctx), entry)
	return result, nil
}

// validate 充值限额、当日累计、余额上限
func (p *TransactionProcessor) validate(ctx context.Context, tx *gorm.DB, t model.EntryType, balance *model.UserBalance, amount decimal.Decimal, limits *model.BalanceConfig, now time.Time) error {
	switch t {
	case model.EntryTypeRecharge:
		if limits.MinRechargeAmount.IsPositive() && amount.LessThan(limits.MinRechargeAmount) {
			return apperr.New(apperr.KindBelowMinimum, "单笔最低充值 %s", limits.MinRechargeAmount.StringFixed(2))
		}
		if limits.MaxRechargeAmount.IsPositive() && amount.GreaterThan(limits.MaxRechargeAmount) {
			return apperr.New(apperr.KindAboveMaximum, "单笔最高充值 %s", limits.MaxRechargeAmount.StringFixed(2))
		}
		if limits.MaxDailyRecharge.IsPositive() {
			today, err := p.ledger.SumPrincipalSince(ctx, tx, balance.UserID, model.EntryTypeRecharge, startOfDay(now))
			if err != nil {
				return fmt.Errorf("统计当日充值失败: %w", err)
			}
			if today.Add(amount).GreaterThan(limits.MaxDailyRecharge) {
				return apperr.New(apperr.KindDailyCapExceeded, "今日已充值 %s，上限 %s",
					today.StringFixed(2), limits.MaxDailyRecharge.StringFixed(2))
			}
		}
		return checkBalanceCap(balance, amount, limits)

	case model.EntryTypeReward:
		return checkBalanceCap(balance, amount, limits)
	}
	return nil
}

func checkBalanceCap(balance *model.UserBalance, credit decimal.Decimal, limits *model.BalanceConfig) error {
	if !limits.MaxBalanceLimit.IsPositive() {
		return nil
	}
	if balance.Available.Add(credit).GreaterThan(limits.MaxBalanceLimit) {
		return apperr.New(apperr.KindBalanceCapExceeded, "余额上限 %s", limits.MaxBalanceLimit.StringFixed(2))
	}
	return nil
}

// observe 告警只记录，失败不影响已提交的交易
func (p *TransactionProcessor) observe(ctx context.Context, entry *model.BalanceLog) []model.AlertEvent {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	alerts, err := p.monitor.Evaluate(ctx, entry)
	if err != nil {
		log.Error().Err(err).Str("txn_no", entry.TxnNo).Msg("阈值检查失败")
	}
	if len(alerts) == 0 {
		return alerts
	}
	if err := p.alerts.Publish(ctx, alerts); err != nil {
		log.Error().Err(err).Str("txn_no", entry.TxnNo).Msg("告警投递失败")
	}
	return alerts
}

func (p *TransactionProcessor) findDuplicate(ctx context.Context, tx *gorm.DB, req TxRequest) (*TxResult, error) {
	if req.IdempotencyKey == "" {
		return nil, nil
	}
	entry, err := p.ledger.GetByIdempotencyKey(ctx, tx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("查询幂等记录失败: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	if entry.UserID != req.UserID || entry.Type != req.Type {
		return nil, apperr.New(apperr.KindInvalidArgument, "idempotency_key 已被其他交易使用")
	}
	result := &TxResult{
		Entry:          entry,
		State:          model.TxStateCommitted,
		BonusAmount:    entry.BonusAmount,
		DiscountAmount: decimal.Zero,
		ChargeAmount:   decimal.Zero,
		Duplicate:      true,
	}
	if entry.Type != model.EntryTypeRecharge {
		return result, nil
	}

	// 重放的收据与首次提交一致：活动、优惠、应扣金额
	sel, err := p.selector.Restore(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	principal := entry.Principal()
	result.Promo = sel.Promo
	result.BonusAmount = sel.Bonus
	result.DiscountAmount = sel.Discount
	result.ChargeAmount = sel.Charge(principal)
	return result, nil
}

// normalizeAmount 校验精度并按类型得到带符号的变动金额
func normalizeAmount(t model.EntryType, amount decimal.Decimal) (decimal.Decimal, error) {
	if !t.Valid() {
		return decimal.Zero, apperr.New(apperr.KindInvalidArgument, "未知交易类型: %s", t)
	}
	if amount.IsZero() {
		return decimal.Zero, apperr.New(apperr.KindInvalidArgument, "金额不能为 0")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, apperr.New(apperr.KindInvalidArgument, "金额最多两位小数")
	}

	switch t {
	case model.EntryTypeConsume:
		return amount.Abs().Neg(), nil
	case model.EntryTypeAdjust:
		return amount, nil
	default:
		if amount.IsNegative() {
			return decimal.Zero, apperr.New(apperr.KindInvalidArgument, "%s 金额必须为正数", t)
		}
		return amount, nil
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
