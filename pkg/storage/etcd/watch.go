package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// WatchEventType 快照变化类型
type WatchEventType string

const (
	WatchCreate WatchEventType = "create"
	WatchUpdate WatchEventType = "update"
	WatchDelete WatchEventType = "delete"
)

// WatchEvent 状态快照变化
type WatchEvent struct {
	Type      WatchEventType
	ServiceID string
	// Info 变化后的快照，删除时为删除前的快照，无法解析时为nil
	Info *model.ServiceInfo
}

// WatchCallback 监听回调
type WatchCallback func(event WatchEvent)

// Watch 从当前revision之后监听状态快照变化，阻塞直到ctx取消
func (s *StatusStorage) Watch(ctx context.Context, callback WatchCallback) error {
	prefix := s.client.GetServicesPrefix()

	// 获取当前revision
	getResp, err := s.client.GetClient().Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return fmt.Errorf("获取初始revision失败: %w", err)
	}
	rev := getResp.Header.Revision + 1

	for {
		watchChan := s.client.GetClient().Watch(ctx, prefix,
			clientv3.WithPrefix(), clientv3.WithRev(rev), clientv3.WithPrevKV())

		for watchResp := range watchChan {
			if err := watchResp.Err(); err != nil {
				// 压缩导致的取消从最新revision重新开始
				if watchResp.CompactRevision > 0 {
					rev = watchResp.CompactRevision
				}
				break
			}

			for _, ev := range watchResp.Events {
				rev = ev.Kv.ModRevision + 1
				if evt, ok := toWatchEvent(prefix, ev); ok {
					callback(evt)
				}
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.client.GetClient().Ctx().Err(); err != nil {
			return fmt.Errorf("etcd客户端已关闭: %w", err)
		}

		// 稍后重新监听
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func toWatchEvent(prefix string, ev *clientv3.Event) (WatchEvent, bool) {
	id := strings.TrimPrefix(string(ev.Kv.Key), prefix)
	if id == "" || strings.Contains(id, "/") {
		return WatchEvent{}, false
	}

	evt := WatchEvent{ServiceID: id}
	var raw []byte
	switch {
	case ev.Type == clientv3.EventTypeDelete:
		evt.Type = WatchDelete
		if ev.PrevKv != nil {
			raw = ev.PrevKv.Value
		}
	case ev.IsCreate():
		evt.Type = WatchCreate
		raw = ev.Kv.Value
	default:
		evt.Type = WatchUpdate
		raw = ev.Kv.Value
	}

	if len(raw) > 0 {
		var info model.ServiceInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			evt.Info = &info
		}
	}
	return evt, true
}
