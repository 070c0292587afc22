package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"go.uber.org/zap"
)

// Mirror 订阅生命周期事件，把其中的服务快照异步写入StatusStore
type Mirror struct {
	store   StatusStore
	logger  lifecycle.Logger
	timeout time.Duration
	queue   chan model.ServiceInfo
	dropped atomic.Int64

	mu      sync.Mutex
	lastErr error
}

// NewMirror 创建状态镜像，bufferSize为待写队列长度，timeout为单次写入超时
func NewMirror(store StatusStore, logger lifecycle.Logger, bufferSize int, timeout time.Duration) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Mirror{
		store:   store,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan model.ServiceInfo, bufferSize),
	}
}

// Handle 作为事件监听使用，只入队不阻塞，队列满时丢弃
func (m *Mirror) Handle(evt lifecycle.Event) {
	if evt.Type != lifecycle.EventTransition && evt.Type != lifecycle.EventHealth {
		return
	}

	select {
	case m.queue <- evt.Info:
	default:
		m.dropped.Add(1)
		m.logger.Warn("状态镜像队列已满，丢弃快照",
			zap.String("service_id", evt.ServiceID),
			zap.String("event_type", string(evt.Type)))
	}
}

// Sync 直接写入一批快照，用于启动时的全量同步
func (m *Mirror) Sync(ctx context.Context, infos []model.ServiceInfo) error {
	for _, info := range infos {
		if err := m.store.Put(ctx, info); err != nil {
			m.setErr(err)
			return err
		}
	}
	m.setErr(nil)
	return nil
}

// Run 持续消费队列直到ctx取消，退出前写完已入队的快照
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case info := <-m.queue:
			m.write(info)
		case <-ctx.Done():
			m.flush()
			return
		}
	}
}

func (m *Mirror) flush() {
	for {
		select {
		case info := <-m.queue:
			m.write(info)
		default:
			return
		}
	}
}

func (m *Mirror) write(info model.ServiceInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.store.Put(ctx, info)
	if err != nil {
		m.logger.Warn("写入服务状态快照失败",
			zap.String("service_id", info.ID),
			zap.Error(err))
	}
	m.setErr(err)
}

func (m *Mirror) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Err 返回最近一次写入的错误，成功写入后清空
func (m *Mirror) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Dropped 返回因队列满被丢弃的快照数
func (m *Mirror) Dropped() int64 {
	return m.dropped.Load()
}

// Pending 返回待写入的快照数
func (m *Mirror) Pending() int {
	return len(m.queue)
}
