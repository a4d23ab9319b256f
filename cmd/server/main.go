package main

import (
	"flag"
	"os"
	"syscall"
	"time"

	"github.com/caz-payments/internal/app"
	"github.com/caz-payments/internal/config"
	"github.com/caz-payments/internal/logger"
	"github.com/caz-payments/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
)

func main() {
	// 解析命令行参数
	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	// 加载配置
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	// 初始化数据库
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}

	// 迁移数据库表（auto: gorm；sql: 内嵌 SQL 迁移）
	if err := models.Migrate(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MigrateMode); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	nrApp := initNewRelic(cfg.NewRelic)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:   cfg,
		Logger:   logger.S(),
		Signals:  []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:     mode,
		NewRelic: nrApp,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

func initNewRelic(cfg config.NewRelicConfig) *newrelic.Application {
	if !cfg.Enabled {
		return nil
	}
	if cfg.LicenseKey == "" {
		logger.Warnw("newrelic_license_missing", "app_name", cfg.AppName)
		return nil
	}
	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		logger.Errorw("newrelic_init_failed", "error", err)
		return nil
	}
	logger.Infow("newrelic_enabled", "app_name", cfg.AppName)
	return nrApp
}
