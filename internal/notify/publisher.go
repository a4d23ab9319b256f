package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caz-payments/internal/config"
	"github.com/caz-payments/internal/logger"

	"github.com/segmentio/kafka-go"
)

// ErrPublisherDisabled 消息通道未启用
var ErrPublisherDisabled = errors.New("notification publisher disabled")

// Publisher 出站通知发布能力，至少一次投递，下游按 key 去重
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// KafkaPublisher 基于 kafka-go 的同步发布器
type KafkaPublisher struct {
	writer       *kafka.Writer
	defaultTopic string
	timeout      time.Duration
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if !cfg.Enabled {
		return nil, ErrPublisherDisabled
	}
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout(),
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  maxAttempts,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debugw("kafka_writer", "message", fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Errorw("kafka_writer_error", "message", fmt.Sprintf(msg, args...))
		}),
	}
	return &KafkaPublisher{
		writer:       writer,
		defaultTopic: strings.TrimSpace(cfg.Topic),
		timeout:      cfg.WriteTimeout(),
	}, nil
}

// Publish 同步写入一条消息
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = p.defaultTopic
	}
	if topic == "" {
		return fmt.Errorf("kafka topic is required")
	}
	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to kafka failed: %w", err)
	}
	logger.Debugw("kafka_message_published", "topic", topic, "key", key)
	return nil
}

// Close 关闭写入器
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
