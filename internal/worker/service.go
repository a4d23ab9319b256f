package worker

import (
	"context"
	"errors"
	"time"

	"github.com/caz-payments/internal/cache"
	"github.com/caz-payments/internal/config"
	"github.com/caz-payments/internal/logger"
	"github.com/caz-payments/internal/queue"

	"github.com/hibiken/asynq"
)

const danglingSweepLockName = "reconcile:dangling"

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	StartBackgroundLoops(ctx, s.consumer)
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// StartBackgroundLoops 启动悬挂支付扫描与发件箱投递循环（队列关闭时也需运行）
func StartBackgroundLoops(ctx context.Context, consumer *Consumer) {
	if consumer == nil || consumer.Container == nil {
		return
	}
	if consumer.PaymentService != nil {
		go runLoop(ctx, consumer.Config.Reconcile.DanglingInterval(), func() {
			sweepDanglingPayments(ctx, consumer, consumer.Config.Reconcile.LockTTL())
		})
	}
	if consumer.OutboxRelay != nil {
		go runLoop(ctx, consumer.Config.Outbox.RelayInterval(), func() {
			if _, err := consumer.OutboxRelay.RunOnce(ctx); err != nil {
				logger.Warnw("worker_outbox_relay_failed", "error", err)
			}
		})
	}
}

func runLoop(ctx context.Context, interval time.Duration, runOnce func()) {
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// sweepDanglingPayments 多实例下通过 Redis 锁保证同一时刻只有一个实例扫描
func sweepDanglingPayments(ctx context.Context, consumer *Consumer, lockTTL time.Duration) {
	lock, acquired, err := cache.AcquireLock(ctx, danglingSweepLockName, lockTTL)
	if err != nil {
		logger.Warnw("worker_dangling_lock_failed", "error", err)
		return
	}
	if !acquired {
		logger.Debugw("worker_dangling_skip_locked")
		return
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warnw("worker_dangling_lock_release_failed", "error", err)
		}
	}()

	if _, err := consumer.PaymentService.ReconcileDanglingPayments(ctx); err != nil {
		logger.Warnw("worker_dangling_sweep_failed", "error", err)
	}
}

// LoopService 队列关闭时单独运行后台循环
type LoopService struct {
	consumer *Consumer
}

// NewLoopService 创建后台循环服务
func NewLoopService(consumer *Consumer) *LoopService {
	return &LoopService{consumer: consumer}
}

// Name 服务名称
func (s *LoopService) Name() string {
	return "background_loops"
}

// Start 启动循环并阻塞到 ctx 结束
func (s *LoopService) Start(ctx context.Context) error {
	if s == nil || s.consumer == nil {
		return errors.New("consumer is nil")
	}
	StartBackgroundLoops(ctx, s.consumer)
	<-ctx.Done()
	return nil
}

// Stop 循环随 ctx 结束退出
func (s *LoopService) Stop(ctx context.Context) error {
	return nil
}
