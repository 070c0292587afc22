package lifecycle

import (
	"time"

	"github.com/google/uuid"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
)

// EventType 生命周期事件类型
type EventType string

const (
	// EventTransition 状态变化
	EventTransition EventType = "transition"
	// EventHealth 健康检查结果
	EventHealth EventType = "health"
	// EventAlert 需要人工关注的异常，例如周期健康检查失败且不重启
	EventAlert EventType = "alert"
	// EventRestart 发起一次自动或手动重启
	EventRestart EventType = "restart"
)

// Event 生命周期事件
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	ServiceID string            `json:"service_id"`
	From      model.Status      `json:"from,omitempty"`
	To        model.Status      `json:"to,omitempty"`
	Message   string            `json:"message,omitempty"`
	Err       error             `json:"-"`
	Time      time.Time         `json:"time"`
	Info      model.ServiceInfo `json:"info"`
}

// EventListener 事件监听函数，同步调用，不应阻塞
type EventListener func(Event)

func newEvent(eventType EventType, info model.ServiceInfo) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ServiceID: info.ID,
		Time:      time.Now(),
		Info:      info,
	}
}

// Subscribe 注册事件监听，返回取消函数
func (o *Orchestrator) Subscribe(listener EventListener) func() {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()

	id := o.nextListenerID
	o.nextListenerID++
	o.listeners[id] = listener

	return func() {
		o.listenersMu.Lock()
		delete(o.listeners, id)
		o.listenersMu.Unlock()
	}
}

func (o *Orchestrator) emit(evt Event) {
	o.listenersMu.RLock()
	listeners := make([]EventListener, 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.listenersMu.RUnlock()

	for _, l := range listeners {
		l(evt)
	}
}
