package job

import (
	"context"
	"time"

	"balanceledger/internal/repository"
	"balanceledger/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// LedgerAuditJob 定时校验近期活跃用户的流水链路
type LedgerAuditJob struct {
	ledgerRepo *repository.LedgerRepository
	audit      *service.AuditService
	spec       string
	lookback   time.Duration
	batchSize  int
	now        func() time.Time
	cron       *cron.Cron
}

func NewLedgerAuditJob(db *gorm.DB, spec string, lookback time.Duration) *LedgerAuditJob {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &LedgerAuditJob{
		ledgerRepo: repository.NewLedgerRepository(db),
		audit:      service.NewAuditService(db),
		spec:       spec,
		lookback:   lookback,
		batchSize:  1000,
		now:        time.Now,
	}
}

// Start 按 cron 表达式调度，ctx 结束后停止并等待正在执行的任务
func (j *LedgerAuditJob) Start(ctx context.Context) error {
	j.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := j.cron.AddFunc(j.spec, func() {
		j.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	log.Info().Str("spec", j.spec).Msg("[LedgerAuditJob] 流水校验任务启动")
	j.cron.Start()

	go func() {
		<-ctx.Done()
		<-j.cron.Stop().Done()
		log.Info().Msg("[LedgerAuditJob] 收到停止信号，任务退出")
	}()
	return nil
}

// RunOnce 执行一轮校验，返回链路异常的用户数
func (j *LedgerAuditJob) RunOnce(ctx context.Context) int {
	userIDs, err := j.ledgerRepo.ActiveUserIDs(ctx, j.now().Add(-j.lookback), j.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("[LedgerAuditJob] 查询活跃用户失败")
		return 0
	}

	broken := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		report, err := j.audit.VerifyChain(ctx, userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("[LedgerAuditJob] 校验失败")
			continue
		}
		if !report.Consistent() {
			broken++
			log.Error().
				Int64("user_id", userID).
				Interface("breaks", report.Breaks).
				Msg("[LedgerAuditJob] 流水链路异常")
		}
	}

	log.Info().Int("users", len(userIDs)).Int("broken", broken).Msg("[LedgerAuditJob] 本轮校验完成")
	return broken
}
