package mq

import (
	"fmt"
	"log/slog"

	"hostelsystem/internal/config"

	"github.com/IBM/sarama"
)

// Publisher 对 sarama.SyncProducer 的薄封装
type Publisher struct {
	producer sarama.SyncProducer
}

func NewPublisher(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer}
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) (*Publisher, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	slog.Info("Kafka 生产者创建成功", "brokers", cfg.Brokers)
	return NewPublisher(producer), nil
}

// Send 发送消息，key 相同的消息进入同一分区保证顺序
func (p *Publisher) Send(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *Publisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
