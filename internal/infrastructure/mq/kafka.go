package mq

import (
	"balanceledger/internal/config"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// Sender 消息投递接口，OutboxSender 依赖它而不是直接依赖 Kafka
type Sender interface {
	SendMessage(topic, key, value string) error
}

// KafkaSender 基于 sarama 同步生产者
type KafkaSender struct {
	producer sarama.SyncProducer
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) *KafkaSender {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatal().Err(err).Strs("brokers", cfg.Brokers).Msg("创建 Kafka 生产者失败")
	}

	log.Info().Msg("Kafka 生产者创建成功")
	return &KafkaSender{producer: producer}
}

func NewKafkaSender(producer sarama.SyncProducer) *KafkaSender {
	return &KafkaSender{producer: producer}
}

func (k *KafkaSender) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := k.producer.SendMessage(msg)
	return err
}

func (k *KafkaSender) Close() error {
	if k.producer == nil {
		return nil
	}
	return k.producer.Close()
}

// LogSender 未启用 Kafka 时只打印日志，消息仍视为已投递
type LogSender struct{}

func (LogSender) SendMessage(topic, key, value string) error {
	log.Info().Str("topic", topic).Str("key", key).RawJSON("payload", []byte(value)).Msg("outbox 消息（Kafka 未启用）")
	return nil
}
