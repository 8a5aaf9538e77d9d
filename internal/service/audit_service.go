package service

import (
	"context"
	"errors"
	"fmt"

	"balanceledger/internal/repository"
	"balanceledger/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const auditBatchSize = 500

// ChainBreak 一处流水链路异常
type ChainBreak struct {
	EntryID int64  `json:"entry_id"`
	TxnNo   string `json:"txn_no"`
	Reason  string `json:"reason"`
}

type AuditReport struct {
	UserID           int64           `json:"user_id"`
	Entries          int             `json:"entries"`
	Available        decimal.Decimal `json:"available"`
	LastBalanceAfter decimal.Decimal `json:"last_balance_after"`
	Breaks           []ChainBreak    `json:"breaks,omitempty"`
}

func (r *AuditReport) Consistent() bool {
	return len(r.Breaks) == 0
}

// AuditService 校验流水链路，发现篡改或漏记
type AuditService struct {
	balanceRepo *repository.BalanceRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{
		balanceRepo: repository.NewBalanceRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

// VerifyChain 按写入顺序检查：
//  1. 每条 balance_after = balance_before + amount
//  2. 第一条 balance_before 为 0，之后每条 balance_before 等于上一条 balance_after
//  3. 最后一条 balance_after 等于当前可用余额
func (s *AuditService) VerifyChain(ctx context.Context, userID int64) (*AuditReport, error) {
	report := &AuditReport{UserID: userID, Available: decimal.Zero, LastBalanceAfter: decimal.Zero}

	prev := decimal.Zero
	var afterID int64
	for {
		entries, err := s.ledgerRepo.ListChain(ctx, userID, afterID, auditBatchSize)
		if err != nil {
			return nil, fmt.Errorf("读取流水失败: %w", err)
		}
		for _, e := range entries {
			if !e.BalanceBefore.Add(e.Amount).Equal(e.BalanceAfter) {
				report.Breaks = append(report.Breaks, ChainBreak{
					EntryID: e.ID,
					TxnNo:   e.TxnNo,
					Reason: fmt.Sprintf("balance_before %s + amount %s != balance_after %s",
						e.BalanceBefore.StringFixed(2), e.Amount.StringFixed(2), e.BalanceAfter.StringFixed(2)),
				})
			}
			if !e.BalanceBefore.Equal(prev) {
				report.Breaks = append(report.Breaks, ChainBreak{
					EntryID: e.ID,
					TxnNo:   e.TxnNo,
					Reason: fmt.Sprintf("balance_before %s 与上一条 balance_after %s 不连续",
						e.BalanceBefore.StringFixed(2), prev.StringFixed(2)),
				})
			}
			prev = e.BalanceAfter
			afterID = e.ID
			report.Entries++
		}
		if len(entries) < auditBatchSize {
			break
		}
	}
	report.LastBalanceAfter = prev

	balance, err := s.balanceRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if balance != nil {
		report.Available = balance.Available
	}
	if !report.Available.Equal(prev) {
		report.Breaks = append(report.Breaks, ChainBreak{
			Reason: fmt.Sprintf("当前可用余额 %s 与最后一条 balance_after %s 不一致",
				report.Available.StringFixed(2), prev.StringFixed(2)),
		})
	}

	return report, nil
}
