package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"balanceledger/internal/model"
	"balanceledger/internal/repository"
	"balanceledger/pkg/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PromoInput 管理端提交的活动配置，used_count 不在其中
type PromoInput struct {
	Name         string          `json:"name" validate:"required,max=128"`
	Type         model.PromoType `json:"type" validate:"required,oneof=bonus percent discount"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	Value        decimal.Decimal `json:"value"`
	MaxBonus     decimal.Decimal `json:"max_bonus"`
	Priority     int             `json:"priority"`
	PerUserLimit int             `json:"per_user_limit" validate:"gte=0"`
	TotalLimit   int             `json:"total_limit" validate:"gte=0"`
	StartAt      *time.Time      `json:"start_at"`
	EndAt        *time.Time      `json:"end_at"`
	Status       string          `json:"status" validate:"omitempty,oneof=enabled disabled"`
}

var promoValidate = newPromoValidator()

func newPromoValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(promoInputRules, PromoInput{})
	return v
}

// promoInputRules 金额字段和活动类型之间的约束
func promoInputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(PromoInput)

	if in.MinAmount.IsNegative() {
		sl.ReportError(in.MinAmount, "min_amount", "MinAmount", "gte", "0")
	}
	if in.MaxAmount.IsNegative() {
		sl.ReportError(in.MaxAmount, "max_amount", "MaxAmount", "gte", "0")
	}
	if in.MaxAmount.IsPositive() && in.MaxAmount.LessThan(in.MinAmount) {
		sl.ReportError(in.MaxAmount, "max_amount", "MaxAmount", "gtefield", "min_amount")
	}
	if !in.Value.IsPositive() {
		sl.ReportError(in.Value, "value", "Value", "gt", "0")
	}
	if in.MaxBonus.IsNegative() {
		sl.ReportError(in.MaxBonus, "max_bonus", "MaxBonus", "gte", "0")
	}
	switch in.Type {
	case model.PromoTypeDiscount:
		if in.Value.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			sl.ReportError(in.Value, "value", "Value", "lt", "1")
		}
	case model.PromoTypePercent:
		if in.Value.GreaterThan(hundred) {
			sl.ReportError(in.Value, "value", "Value", "lte", "100")
		}
	}
	if in.StartAt != nil && in.EndAt != nil && !in.EndAt.After(*in.StartAt) {
		sl.ReportError(in.EndAt, "end_at", "EndAt", "gtfield", "start_at")
	}
}

func validatePromoInput(in *PromoInput) error {
	err := promoValidate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Param() != "" {
				parts = append(parts, fmt.Sprintf("%s 需满足 %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				parts = append(parts, fmt.Sprintf("%s 需满足 %s", fe.Field(), fe.Tag()))
			}
		}
		return apperr.New(apperr.KindInvalidArgument, "活动配置不合法: %s", strings.Join(parts, "; "))
	}
	return apperr.Wrap(apperr.KindInvalidArgument, err, "活动配置不合法")
}

func (in *PromoInput) apply(p *model.RechargePromo) {
	p.Name = in.Name
	p.Type = in.Type
	p.MinAmount = in.MinAmount
	p.MaxAmount = in.MaxAmount
	p.Value = in.Value
	p.MaxBonus = in.MaxBonus
	p.Priority = in.Priority
	p.PerUserLimit = in.PerUserLimit
	p.TotalLimit = in.TotalLimit
	p.StartAt = in.StartAt
	p.EndAt = in.EndAt
	p.Status = in.Status
	if p.Status == "" {
		p.Status = model.PromoStatusEnabled
	}
}

// PromoService 充值活动管理与预览
type PromoService struct {
	repo     *repository.PromoRepository
	selector *PromoSelector
	now      func() time.Time
}

func NewPromoService(db *gorm.DB, selector *PromoSelector) *PromoService {
	return &PromoService{
		repo:     repository.NewPromoRepository(db),
		selector: selector,
		now:      time.Now,
	}
}

func (s *PromoService) Create(ctx context.Context, in *PromoInput) (*model.RechargePromo, error) {
	if err := validatePromoInput(in); err != nil {
		return nil, err
	}
	promo := &model.RechargePromo{}
	in.apply(promo)
	if err := s.repo.Create(ctx, promo); err != nil {
		return nil, fmt.Errorf("创建活动失败: %w", err)
	}
	log.Info().Int64("promo_id", promo.ID).Str("type", string(promo.Type)).Msg("充值活动已创建")
	return promo, nil
}

func (s *PromoService) Update(ctx context.Context, id int64, in *PromoInput) (*model.RechargePromo, error) {
	if err := validatePromoInput(in); err != nil {
		return nil, err
	}
	promo, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(promo)
	if err := s.repo.Update(ctx, promo); err != nil {
		return nil, err
	}
	log.Info().Int64("promo_id", id).Msg("充值活动已更新")
	return s.repo.GetByID(ctx, id)
}

func (s *PromoService) SetStatus(ctx context.Context, id int64, status string) error {
	if status != model.PromoStatusEnabled && status != model.PromoStatusDisabled {
		return apperr.New(apperr.KindInvalidArgument, "status 只能是 enabled 或 disabled")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	log.Info().Int64("promo_id", id).Str("status", status).Msg("充值活动状态已变更")
	return nil
}

func (s *PromoService) Get(ctx context.Context, id int64) (*model.RechargePromo, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PromoService) List(ctx context.Context, status string, page, pageSize int) ([]*model.RechargePromo, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.repo.List(ctx, status, page, pageSize)
}

func (s *PromoService) ListUsages(ctx context.Context, promoID int64, page, pageSize int) ([]*model.PromoUsage, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.repo.ListUsages(ctx, promoID, page, pageSize)
}

// Preview 充值前展示将命中的活动，不占用名额
type Preview struct {
	Promo          *model.RechargePromo `json:"promo,omitempty"`
	Amount         decimal.Decimal      `json:"amount"`
	BonusAmount    decimal.Decimal      `json:"bonus_amount"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	CreditAmount   decimal.Decimal      `json:"credit_amount"`
	ChargeAmount   decimal.Decimal      `json:"charge_amount"`
}

func (s *PromoService) Preview(ctx context.Context, userID int64, amount decimal.Decimal) (*Preview, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, apperr.New(apperr.KindInvalidArgument, "金额必须为正数且最多两位小数")
	}
	sel, err := s.selector.Select(ctx, userID, amount, s.now())
	if err != nil {
		return nil, err
	}
	return &Preview{
		Promo:          sel.Promo,
		Amount:         amount,
		BonusAmount:    sel.Bonus,
		DiscountAmount: sel.Discount,
		CreditAmount:   sel.Credited(amount),
		ChargeAmount:   sel.Charge(amount),
	}, nil
}
