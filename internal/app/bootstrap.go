package app

import (
	"errors"

	"github.com/caz-payments/internal/config"
	"github.com/caz-payments/internal/provider"
	"github.com/caz-payments/internal/router"
	"github.com/caz-payments/internal/worker"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string, nrApp *newrelic.Application) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	if err := validateMode(mode); err != nil {
		return nil, nil, err
	}

	container := provider.NewContainer(cfg)

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container, nrApp)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	// 初始化 Worker 服务；队列关闭时仍需运行悬挂支付扫描与发件箱投递
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		if cfg.Queue.Enabled {
			workerService, err := worker.NewService(&cfg.Queue, consumer)
			if err != nil {
				container.Close()
				return nil, nil, err
			}
			services = append(services, workerService)
		} else {
			services = append(services, worker.NewLoopService(consumer))
		}
	}

	services = append(services, NewFuncService("credential_invalidation", container.ListenCredentialInvalidation))
	return NewRunner(services...), container, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, container, err := BuildRunner(opts.Config, opts.Mode, opts.NewRelic)
	if err != nil {
		return err
	}
	defer container.Close()

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
