package service

import (
	"context"
	"encoding/json"

	"balanceledger/internal/model"
	"balanceledger/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AlertSink 告警的下游，由通知服务订阅
type AlertSink interface {
	Publish(ctx context.Context, alerts []model.AlertEvent) error
}

// OutboxAlertSink 写入 outbox，由 OutboxSender 投递到告警 topic
type OutboxAlertSink struct {
	outbox *repository.OutboxRepository
	topic  string
}

func NewOutboxAlertSink(db *gorm.DB, topic string) *OutboxAlertSink {
	return &OutboxAlertSink{outbox: repository.NewOutboxRepository(db), topic: topic}
}

func (s *OutboxAlertSink) Publish(ctx context.Context, alerts []model.AlertEvent) error {
	for i := range alerts {
		payload, err := json.Marshal(alerts[i])
		if err != nil {
			return err
		}
		err = s.outbox.Create(ctx, nil, &model.OutboxMessage{
			MessageKey: alerts[i].ID,
			EventType:  model.EventBalanceAlert,
			Topic:      s.topic,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// LogAlertSink 告警同时打一条 warn 日志
type LogAlertSink struct{}

func (LogAlertSink) Publish(_ context.Context, alerts []model.AlertEvent) error {
	for _, a := range alerts {
		log.Warn().
			Str("kind", string(a.Kind)).
			Int64("user_id", a.UserID).
			Str("txn_no", a.TxnNo).
			Str("amount", a.Amount.StringFixed(2)).
			Str("threshold", a.Threshold.String()).
			Int64("count", a.Count).
			Msg("余额告警")
	}
	return nil
}

// MultiAlertSink 依次投递，单个下游失败不影响其他下游
type MultiAlertSink []AlertSink

func (m MultiAlertSink) Publish(ctx context.Context, alerts []model.AlertEvent) error {
	var firstErr error
	for _, s := range m {
		if err := s.Publish(ctx, alerts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
