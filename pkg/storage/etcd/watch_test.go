package etcd

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestToWatchEvent(t *testing.T) {
	prefix := "/kong-orchestrator/services/"
	data, err := json.Marshal(model.ServiceInfo{ID: "db", Status: model.StatusRunning})
	require.NoError(t, err)

	// 新建
	evt, ok := toWatchEvent(prefix, &clientv3.Event{
		Type: clientv3.EventTypePut,
		Kv:   &mvccpb.KeyValue{Key: []byte(prefix + "db"), Value: data, CreateRevision: 5, ModRevision: 5},
	})
	require.True(t, ok)
	assert.Equal(t, WatchCreate, evt.Type)
	assert.Equal(t, "db", evt.ServiceID)
	require.NotNil(t, evt.Info)
	assert.Equal(t, model.StatusRunning, evt.Info.Status)

	// 更新
	evt, ok = toWatchEvent(prefix, &clientv3.Event{
		Type: clientv3.EventTypePut,
		Kv:   &mvccpb.KeyValue{Key: []byte(prefix + "db"), Value: []byte("not json"), CreateRevision: 5, ModRevision: 6},
	})
	require.True(t, ok)
	assert.Equal(t, WatchUpdate, evt.Type)
	assert.Nil(t, evt.Info)

	// 删除
	evt, ok = toWatchEvent(prefix, &clientv3.Event{
		Type:   clientv3.EventTypeDelete,
		Kv:     &mvccpb.KeyValue{Key: []byte(prefix + "db"), ModRevision: 7},
		PrevKv: &mvccpb.KeyValue{Key: []byte(prefix + "db"), Value: data},
	})
	require.True(t, ok)
	assert.Equal(t, WatchDelete, evt.Type)
	require.NotNil(t, evt.Info)

	// 嵌套键忽略
	_, ok = toWatchEvent(prefix, &clientv3.Event{
		Type: clientv3.EventTypePut,
		Kv:   &mvccpb.KeyValue{Key: []byte(prefix + "db/extra"), Value: data},
	})
	assert.False(t, ok)
}

func TestStatusStorage_Watch(t *testing.T) {
	client := newTestClient(t)
	s := NewStatusStorage(client, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []WatchEvent
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(evt WatchEvent) {
			mu.Lock()
			events = append(events, evt)
			mu.Unlock()
		})
	}()

	// 等待Watch建立
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, s.Put(ctx, model.ServiceInfo{ID: "db", Status: model.StatusStarting}))
	require.NoError(t, s.Put(ctx, model.ServiceInfo{ID: "db", Status: model.StatusRunning}))
	require.NoError(t, s.Delete(ctx, "db"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, WatchCreate, events[0].Type)
	assert.Equal(t, WatchUpdate, events[1].Type)
	assert.Equal(t, model.StatusRunning, events[1].Info.Status)
	assert.Equal(t, WatchDelete, events[2].Type)
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
