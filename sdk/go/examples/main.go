package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	sdk "github.com/hewenyu/kong-orchestrator/sdk/go"
)

func main() {
	addr := flag.String("addr", "localhost:9090", "管理API地址")
	restart := flag.String("restart", "", "需要重启的服务ID")
	flag.Parse()

	// 创建SDK客户端
	client, err := sdk.NewClient(&sdk.Config{ServerAddr: *addr, RetryCount: 3})
	if err != nil {
		log.Fatalf("创建SDK客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 按启动顺序列出服务
	order, err := client.StartOrder(ctx)
	if err != nil {
		log.Fatalf("查询启动顺序失败: %v", err)
	}
	for _, id := range order {
		info, err := client.GetService(ctx, id)
		if err != nil {
			log.Printf("查询服务 %s 失败: %v", id, err)
			continue
		}
		log.Printf("%-16s %-10s 重启次数=%d 依赖=%v", info.ID, info.Status, info.RestartCount, info.Dependencies)
	}

	if *restart == "" {
		return
	}

	// 重启并等待恢复运行
	if _, err := client.RestartService(ctx, *restart); err != nil {
		log.Fatalf("重启服务失败: %v", err)
	}
	info, err := client.WaitForStatus(ctx, *restart, model.StatusRunning, 500*time.Millisecond)
	if err != nil {
		log.Fatalf("等待服务恢复失败: %v", err)
	}
	log.Printf("服务 %s 已恢复运行", info.ID)
}
