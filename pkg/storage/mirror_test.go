package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/hewenyu/kong-orchestrator/pkg/storage"
	"github.com/hewenyu/kong-orchestrator/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService 最简单的可编排服务
type stubService struct {
	*lifecycle.Base
}

func (s *stubService) Start(ctx context.Context) error {
	s.MarkStarted()
	return nil
}

func (s *stubService) Stop(ctx context.Context) error {
	s.MarkStopped()
	return nil
}

func (s *stubService) HealthCheck(ctx context.Context) (model.HealthStatus, error) {
	return s.Healthy("ok", 0), nil
}

// failingStore 写入总是失败
type failingStore struct {
	storage.StatusStore
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Put(ctx context.Context, info model.ServiceInfo) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("store unavailable")
}

func TestMirror_WritesTransitions(t *testing.T) {
	store := memory.NewMemoryStorage()
	mirror := storage.NewMirror(store, nil, 16, time.Second)

	o := lifecycle.New()
	require.NoError(t, o.Initialize())
	defer o.Shutdown(context.Background())
	o.Subscribe(mirror.Handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mirror.Run(ctx)
		close(done)
	}()

	svc := &stubService{Base: lifecycle.NewBase("db", "database", "1.0.0")}
	require.NoError(t, o.Register(svc, model.ServiceConfig{HealthCheckInterval: time.Hour}))
	require.NoError(t, o.Start(context.Background(), "db"))

	require.Eventually(t, func() bool {
		info, err := store.Get(context.Background(), "db")
		return err == nil && info.Status == model.StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, o.Stop(context.Background(), "db"))
	cancel()
	<-done

	// 退出前写完队列
	info, err := store.Get(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, info.Status)
	assert.NoError(t, mirror.Err())
	assert.Zero(t, mirror.Pending())
}

func TestMirror_IgnoresOtherEvents(t *testing.T) {
	store := memory.NewMemoryStorage()
	mirror := storage.NewMirror(store, nil, 4, time.Second)

	mirror.Handle(lifecycle.Event{Type: lifecycle.EventAlert, ServiceID: "db", Info: model.ServiceInfo{ID: "db"}})
	mirror.Handle(lifecycle.Event{Type: lifecycle.EventRestart, ServiceID: "db", Info: model.ServiceInfo{ID: "db"}})
	assert.Zero(t, mirror.Pending())
}

func TestMirror_DropsWhenFull(t *testing.T) {
	mirror := storage.NewMirror(memory.NewMemoryStorage(), nil, 1, time.Second)

	evt := lifecycle.Event{Type: lifecycle.EventTransition, ServiceID: "db", Info: model.ServiceInfo{ID: "db"}}
	mirror.Handle(evt)
	mirror.Handle(evt)
	mirror.Handle(evt)

	assert.Equal(t, 1, mirror.Pending())
	assert.Equal(t, int64(2), mirror.Dropped())
}

func TestMirror_RecordsWriteError(t *testing.T) {
	store := &failingStore{}
	mirror := storage.NewMirror(store, nil, 4, time.Second)

	mirror.Handle(lifecycle.Event{Type: lifecycle.EventHealth, ServiceID: "db", Info: model.ServiceInfo{ID: "db"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mirror.Run(ctx)

	assert.Error(t, mirror.Err())
	assert.Equal(t, 1, store.calls)
}

func TestMirror_Sync(t *testing.T) {
	store := memory.NewMemoryStorage()
	mirror := storage.NewMirror(store, nil, 4, time.Second)

	err := mirror.Sync(context.Background(), []model.ServiceInfo{
		{ID: "db", Status: model.StatusRunning},
		{ID: "api", Status: model.StatusStopped},
	})
	require.NoError(t, err)

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	assert.Error(t, mirror.Sync(context.Background(), []model.ServiceInfo{{}}))
	assert.Error(t, mirror.Err())
}
