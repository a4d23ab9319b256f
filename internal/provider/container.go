package provider

import (
	"context"
	"strings"

	"github.com/caz-payments/internal/cache"
	"github.com/caz-payments/internal/config"
	"github.com/caz-payments/internal/credentials"
	"github.com/caz-payments/internal/logger"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/notify"
	"github.com/caz-payments/internal/payment/directdebit"
	"github.com/caz-payments/internal/payment/govukpay"
	"github.com/caz-payments/internal/queue"
	"github.com/caz-payments/internal/repository"
	"github.com/caz-payments/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Credentials *credentials.Store
	Publisher   notify.Publisher
	OutboxRelay *notify.Relay

	// Repositories
	PaymentRepo        repository.PaymentRepository
	EntrantPaymentRepo repository.EntrantPaymentRepository
	MandateRepo        repository.MandateRepository
	OutboxRepo         repository.OutboxRepository

	// Services
	PaymentService *service.PaymentService
	MandateService *service.MandateService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	// 3. 初始化出站通知
	c.initNotification()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.EntrantPaymentRepo = repository.NewEntrantPaymentRepository(db)
	c.MandateRepo = repository.NewMandateRepository(db)
	c.OutboxRepo = repository.NewOutboxRepository(db)
}

func (c *Container) initServices() {
	c.Credentials = credentials.NewStore(c.newCredentialSource())

	cardClient, err := govukpay.NewClient(govukpay.Config{
		APIBaseURL:   c.Config.Gateway.Card.APIBaseURL,
		Timeout:      c.Config.Gateway.Card.Timeout(),
		MaxRetries:   c.Config.Gateway.Card.MaxRetries,
		RetryBackoff: c.Config.Gateway.Card.RetryBackoff(),
	})
	if err != nil {
		logger.Errorw("provider_init_card_gateway_failed", "error", err)
		panic(err)
	}
	directDebitClient, err := directdebit.NewClient(directdebit.Config{
		APIBaseURL:   c.Config.Gateway.DirectDebit.APIBaseURL,
		Timeout:      c.Config.Gateway.DirectDebit.Timeout(),
		MaxRetries:   c.Config.Gateway.DirectDebit.MaxRetries,
		RetryBackoff: c.Config.Gateway.DirectDebit.RetryBackoff(),
	})
	if err != nil {
		logger.Errorw("provider_init_direct_debit_gateway_failed", "error", err)
		panic(err)
	}
	cardGateway := service.NewCardGateway(cardClient, c.Credentials)
	directDebitGateway := service.NewDirectDebitGateway(directDebitClient, c.Credentials)

	c.MandateService = service.NewMandateService(c.MandateRepo, directDebitGateway, c.Config.Payment.MandateReturnURL)
	c.PaymentService = service.NewPaymentService(service.PaymentServiceOptions{
		PaymentRepo:        c.PaymentRepo,
		EntrantRepo:        c.EntrantPaymentRepo,
		OutboxRepo:         c.OutboxRepo,
		Builder:            service.NewPaymentBuilder(c.Config.Payment.RemainderPolicy),
		CardGateway:        cardGateway,
		DirectDebitGateway: directDebitGateway,
		MandateService:     c.MandateService,
		Receipts:           service.NewReceiptBuilder(c.Config.Notification.ReceiptTemplateID, c.Config.Kafka.Topic, c.Config.Notification.ZoneNames),
		QueueClient:        c.QueueClient,
		DanglingMinAge:     c.Config.Reconcile.DanglingMinAge(),
		DanglingBatchSize:  c.Config.Reconcile.BatchSize,
	})
}

func (c *Container) newCredentialSource() credentials.Source {
	source := strings.ToLower(strings.TrimSpace(c.Config.Credentials.Source))
	if source == "redis" {
		if client := cache.Client(); client != nil {
			return credentials.NewRedisSource(client, cache.BuildKey(c.Config.Credentials.RedisHashPrefix))
		}
		logger.Warnw("provider_credentials_redis_unavailable", "fallback", "config")
	}
	return credentials.NewConfigSource(c.Config.Credentials.CardAPIKeys, c.Config.Credentials.DirectDebitAPIKeys)
}

func (c *Container) initNotification() {
	publisher, err := notify.NewKafkaPublisher(c.Config.Kafka)
	if err != nil {
		logger.Warnw("provider_init_publisher_skipped", "error", err)
		return
	}
	c.Publisher = publisher
	c.OutboxRelay = notify.NewRelay(models.DB, c.OutboxRepo, publisher, c.Config.Outbox.BatchSize, c.Config.Outbox.MaxAttempts)
}

// ListenCredentialInvalidation 订阅密钥失效通知，直到 ctx 结束
func (c *Container) ListenCredentialInvalidation(ctx context.Context) {
	client := cache.Client()
	if c == nil || c.Credentials == nil || client == nil {
		return
	}
	c.Credentials.Listen(ctx, client, cache.BuildKey(c.Config.Credentials.InvalidationChannel))
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			logger.Warnw("provider_close_publisher_failed", "error", err)
		}
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
