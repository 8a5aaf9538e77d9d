package service

import (
	"context"
	"errors"

	"balanceledger/internal/model"
	"balanceledger/internal/repository"
	"balanceledger/pkg/apperr"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceService 余额和流水的只读查询，以及账户冻结
type BalanceService struct {
	balanceRepo *repository.BalanceRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewBalanceService(db *gorm.DB) *BalanceService {
	return &BalanceService{
		balanceRepo: repository.NewBalanceRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

// GetBalance 没有开户的用户返回零余额
func (s *BalanceService) GetBalance(ctx context.Context, userID int64) (*model.UserBalance, error) {
	balance, err := s.balanceRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return &model.UserBalance{
				UserID:         userID,
				Available:      decimal.Zero,
				Frozen:         decimal.Zero,
				TotalRecharged: decimal.Zero,
				TotalConsumed:  decimal.Zero,
				Status:         model.BalanceStatusActive,
			}, nil
		}
		return nil, err
	}
	return balance, nil
}

func (s *BalanceService) ListLogs(ctx context.Context, filter repository.LedgerFilter) ([]*model.BalanceLog, int64, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, apperr.New(apperr.KindInvalidArgument, "未知流水类型: %s", filter.Type)
	}
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)
	return s.ledgerRepo.List(ctx, filter)
}

func (s *BalanceService) GetLog(ctx context.Context, txnNo string) (*model.BalanceLog, error) {
	return s.ledgerRepo.GetByTxnNo(ctx, txnNo)
}

func (s *BalanceService) Freeze(ctx context.Context, userID int64, operator string) (*model.UserBalance, error) {
	balance, err := s.balanceRepo.SetStatus(ctx, userID, model.BalanceStatusFrozen)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("user_id", userID).Str("operator", operator).Msg("账户已冻结")
	return balance, nil
}

func (s *BalanceService) Unfreeze(ctx context.Context, userID int64, operator string) (*model.UserBalance, error) {
	balance, err := s.balanceRepo.SetStatus(ctx, userID, model.BalanceStatusActive)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("user_id", userID).Str("operator", operator).Msg("账户已解冻")
	return balance, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}
