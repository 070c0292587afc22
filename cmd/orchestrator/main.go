package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hewenyu/kong-orchestrator/internal/config"
	"github.com/hewenyu/kong-orchestrator/internal/metrics"
	"github.com/hewenyu/kong-orchestrator/internal/services"
	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Version 构建时通过 -ldflags "-X main.Version=..." 注入
var Version = "0.1.0"

var configFile string

func init() {
	// 解析命令行参数
	flag.StringVar(&configFile, "config", "", "配置文件路径")
}

func main() {
	flag.Parse()

	// 加载配置
	appConfig, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger, err := config.NewLoggerWithLevel(appConfig.Log.Development, appConfig.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(appConfig, logger); err != nil {
		logger.Error("编排器异常退出", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(appConfig *config.Config, logger config.Logger) error {
	// 打印启动信息
	logger.Info("Kong Orchestrator Starting...",
		zap.String("version", Version),
		zap.Bool("etcd_enabled", appConfig.Etcd.Enabled),
		zap.Bool("admin_enabled", appConfig.Admin.Enabled),
		zap.Int("admin_port", appConfig.Admin.Port),
		zap.Bool("dns_enabled", appConfig.DNS.Enabled),
		zap.Int("dns_port", appConfig.DNS.Port),
	)

	// 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	orch := lifecycle.New(
		lifecycle.WithLogger(logger),
		lifecycle.WithDefaultHealthCheckInterval(appConfig.Orchestrator.HealthCheckInterval),
	)
	if err := orch.Initialize(); err != nil {
		return err
	}
	unsubscribe := orch.Subscribe(m.Handle)
	defer unsubscribe()

	if _, err := services.Register(orch, appConfig, Version, reg, logger); err != nil {
		orch.Shutdown(context.Background())
		return err
	}
	m.Seed(orch.GetAllInfos())

	// 按依赖顺序启动
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := orch.StartAll(ctx, orch.AutoStartIDs()...); err != nil {
		logger.Error("启动服务失败，开始关闭", zap.Error(err))
		shutdown(orch, appConfig, logger)
		return err
	}
	logger.Info("所有服务已启动", zap.Strings("services", orch.AutoStartIDs()))

	// 等待信号以优雅关闭
	<-ctx.Done()
	logger.Info("接收到关闭信号，正在优雅关闭...")

	return shutdown(orch, appConfig, logger)
}

func shutdown(orch *lifecycle.Orchestrator, appConfig *config.Config, logger config.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Orchestrator.ShutdownTimeout)
	defer cancel()

	report := orch.Shutdown(ctx)
	logger.Info("编排器已关闭",
		zap.Strings("order", report.Order),
		zap.Bool("dependency_ordered", report.Ordered),
		zap.Strings("stopped", report.Stopped),
		zap.Duration("duration", report.Duration),
	)
	for id, err := range report.Failures {
		logger.Warn("服务停止失败", zap.String("service_id", id), zap.Error(err))
	}
	return report.Err()
}
