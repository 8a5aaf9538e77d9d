package job

import (
	"context"
	"time"

	"balanceledger/internal/infrastructure/mq"
	"balanceledger/internal/model"
	"balanceledger/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox_message，把流水事件和告警投递到 Kafka
// 超过最大重试次数的消息标记为 FAILED，等待人工处理
type OutboxSender struct {
	outboxRepo    *repository.OutboxRepository
	sender        mq.Sender
	maxRetryCount int
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
}

func NewOutboxSender(db *gorm.DB, sender mq.Sender, interval time.Duration, batchSize, maxRetryCount int) *OutboxSender {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxSender{
		outboxRepo:    repository.NewOutboxRepository(db),
		sender:        sender,
		maxRetryCount: maxRetryCount,
		stopCh:        make(chan struct{}),
		interval:      interval,
		batchSize:     batchSize,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Info().Msg("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Info().Msg("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending 投递一批待发送消息，返回成功条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("[OutboxSender] 查询消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			log.Error().Err(updateErr).Int64("id", msg.ID).Msg("[OutboxSender] 更新消息状态失败")
			return false
		}
		log.Debug().Int64("id", msg.ID).Str("topic", msg.Topic).Str("key", msg.MessageKey).Msg("[OutboxSender] 消息发送成功")
		return true
	}

	log.Warn().Err(err).Int64("id", msg.ID).Str("topic", msg.Topic).Msg("[OutboxSender] 消息发送失败")

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID, err.Error()); err != nil {
		log.Error().Err(err).Int64("id", msg.ID).Msg("[OutboxSender] 增加重试次数失败")
	}

	if s.maxRetryCount > 0 && msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Error().Err(err).Int64("id", msg.ID).Msg("[OutboxSender] 标记消息失败状态失败")
		} else {
			log.Error().Int64("id", msg.ID).Msg("[OutboxSender] 消息超过最大重试次数，标记为失败")
		}
	}
	return false
}
