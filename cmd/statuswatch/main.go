// statuswatch 从etcd读取编排器发布的服务状态快照并持续输出变化
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hewenyu/kong-orchestrator/internal/config"
	"github.com/hewenyu/kong-orchestrator/pkg/storage/etcd"
	"go.uber.org/zap"
)

var (
	configFile string
	once       bool
)

func init() {
	// 解析命令行参数
	flag.StringVar(&configFile, "config", "", "配置文件路径")
	flag.BoolVar(&once, "once", false, "只输出当前快照，不监听变化")
}

func main() {
	flag.Parse()

	appConfig, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLoggerWithLevel(appConfig.Log.Development, appConfig.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(appConfig, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("状态监听失败", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(appConfig *config.Config, logger config.Logger) error {
	client, err := etcd.NewClient(etcd.Config{
		Endpoints:   appConfig.Etcd.Endpoints,
		DialTimeout: appConfig.Etcd.DialTimeout,
		Username:    appConfig.Etcd.Username,
		Password:    appConfig.Etcd.Password,
		Prefix:      appConfig.Etcd.Prefix,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	// 只读，不申请租约
	store := etcd.NewStatusStorage(client, 0)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	infos, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		logger.Info("服务状态",
			zap.String("service_id", info.ID),
			zap.String("status", string(info.Status)),
			zap.Int("restarts", info.RestartCount),
			zap.String("last_error", info.LastError))
	}
	if once {
		return nil
	}

	logger.Info("开始监听状态变化", zap.String("prefix", client.GetServicesPrefix()))
	return store.Watch(ctx, func(evt etcd.WatchEvent) {
		fields := []zap.Field{
			zap.String("type", string(evt.Type)),
			zap.String("service_id", evt.ServiceID),
		}
		if evt.Info != nil {
			fields = append(fields,
				zap.String("status", string(evt.Info.Status)),
				zap.Int("restarts", evt.Info.RestartCount))
		}
		logger.Info("状态变化", fields...)
	})
}
