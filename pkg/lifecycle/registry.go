package lifecycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"go.uber.org/zap"
)

// DefaultHealthCheckInterval 服务未配置健康检查周期时使用的默认值
const DefaultHealthCheckInterval = 30 * time.Second

// record 注册表中的服务记录
type record struct {
	id           string
	svc          Service
	cfg          model.ServiceConfig
	registeredAt time.Time

	// opMu 串行化同一服务上的启停、重启和健康检查状态变更
	opMu sync.Mutex

	// mu 仅保护下列字段，读取快照时不会被进行中的启动阻塞
	mu             sync.RWMutex
	status         model.Status
	restartCount   int
	lastHealth     *model.HealthStatus
	lastError      string
	lastTransition time.Time
}

func (r *record) getStatus() model.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *record) snapshot() model.ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *record) snapshotLocked() model.ServiceInfo {
	cfg := r.cfg
	cfg.Dependencies = append([]string(nil), r.cfg.Dependencies...)

	info := model.ServiceInfo{
		ID:             r.id,
		Name:           cfg.Name,
		Version:        cfg.Version,
		Dependencies:   append([]string(nil), cfg.Dependencies...),
		Config:         cfg,
		Status:         r.status,
		RestartCount:   r.restartCount,
		LastError:      r.lastError,
		RegisteredAt:   r.registeredAt,
		LastTransition: r.lastTransition,
	}
	if r.lastHealth != nil {
		h := *r.lastHealth
		info.LastHealth = &h
	}
	return info
}

func (r *record) setHealth(h model.HealthStatus) {
	r.mu.Lock()
	r.lastHealth = &h
	r.mu.Unlock()
}

func (r *record) resetRestarts() {
	r.mu.Lock()
	r.restartCount = 0
	r.mu.Unlock()
}

// incrementRestarts 增加自动重启计数，返回当前次数和上限
func (r *record) incrementRestarts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restartCount++
	return r.restartCount, r.cfg.MaxRestartAttempts
}

// Option 编排器构造选项
type Option func(*Orchestrator)

// WithLogger 设置日志记录器
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDefaultHealthCheckInterval 设置默认健康检查周期
func WithDefaultHealthCheckInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.defaultInterval = d
		}
	}
}

// Orchestrator 服务注册表与生命周期编排器，显式构造并传递，不使用全局单例
type Orchestrator struct {
	mu          sync.RWMutex
	initialized bool
	closing     bool
	records     map[string]*record
	order       []string // 注册顺序

	logger          Logger
	defaultInterval time.Duration
	monitor         *healthMonitor

	listenersMu    sync.RWMutex
	listeners      map[int]EventListener
	nextListenerID int
}

// New 创建编排器，使用前必须调用 Initialize
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		records:         make(map[string]*record),
		logger:          zap.NewNop(),
		defaultInterval: DefaultHealthCheckInterval,
		listeners:       make(map[int]EventListener),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.monitor = newHealthMonitor(o)
	return o
}

// Initialize 初始化注册表，重复调用无副作用
func (o *Orchestrator) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return nil
	}
	o.initialized = true
	o.closing = false
	o.monitor.open()
	o.logger.Info("服务注册表已初始化")
	return nil
}

// Initialized 返回注册表是否可用
func (o *Orchestrator) Initialized() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.initialized && !o.closing
}

// Register 注册服务，新记录状态为 Stopped
func (o *Orchestrator) Register(svc Service, cfg model.ServiceConfig) error {
	if svc == nil {
		return NewValidationError(cfg.ID, "服务实例不能为空")
	}
	cfg = mergeConfig(svc, cfg)
	if err := validateConfig(svc, cfg); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialized || o.closing {
		return NewNotInitializedError()
	}
	if _, exists := o.records[cfg.ID]; exists {
		return NewDuplicateServiceError(cfg.ID)
	}

	now := time.Now()
	o.records[cfg.ID] = &record{
		id:             cfg.ID,
		svc:            svc,
		cfg:            cfg,
		registeredAt:   now,
		status:         model.StatusStopped,
		lastTransition: now,
	}
	o.order = append(o.order, cfg.ID)

	o.logger.Info("服务已注册",
		zap.String("service", cfg.ID),
		zap.String("name", cfg.Name),
		zap.String("version", cfg.Version),
		zap.Strings("dependencies", cfg.Dependencies),
	)
	return nil
}

// mergeConfig 用服务自身的标识补全配置中为空的字段
func mergeConfig(svc Service, cfg model.ServiceConfig) model.ServiceConfig {
	if cfg.ID == "" {
		cfg.ID = svc.ID()
	}
	if cfg.Name == "" {
		cfg.Name = svc.Name()
	}
	if cfg.Version == "" {
		cfg.Version = svc.Version()
	}
	if cfg.Dependencies == nil {
		cfg.Dependencies = svc.Dependencies()
	}
	cfg.Dependencies = append([]string(nil), cfg.Dependencies...)
	return cfg
}

func validateConfig(svc Service, cfg model.ServiceConfig) error {
	switch {
	case strings.TrimSpace(cfg.ID) == "":
		return NewValidationError(cfg.ID, "服务ID不能为空")
	case strings.TrimSpace(cfg.Name) == "":
		return NewValidationError(cfg.ID, "服务名称不能为空")
	case strings.TrimSpace(cfg.Version) == "":
		return NewValidationError(cfg.ID, "服务版本不能为空")
	case svc.ID() != "" && svc.ID() != cfg.ID:
		return NewValidationError(cfg.ID, "配置ID与服务ID不一致: "+svc.ID())
	case cfg.MaxRestartAttempts < 0:
		return NewValidationError(cfg.ID, "最大重启次数不能为负数")
	case cfg.HealthCheckInterval < 0:
		return NewValidationError(cfg.ID, "健康检查周期不能为负数")
	}
	for _, dep := range cfg.Dependencies {
		if dep == cfg.ID {
			return NewValidationError(cfg.ID, "服务不能依赖自身")
		}
	}
	return nil
}

// lookup 查找服务记录，mutating 为 true 时关闭过程中拒绝访问
func (o *Orchestrator) lookup(id string, mutating bool) (*record, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if !o.initialized || (mutating && o.closing) {
		return nil, NewNotInitializedError()
	}
	rec, ok := o.records[id]
	if !ok {
		return nil, NewServiceNotFoundError(id)
	}
	return rec, nil
}

// owns 记录仍属于当前注册表且注册表未在关闭中。
// lookup 之后等待 opMu 期间注册表可能已经开始关闭
func (o *Orchestrator) owns(rec *record) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.initialized && !o.closing && o.records[rec.id] == rec
}

// peek 不区分错误类型地查找记录
func (o *Orchestrator) peek(id string) (*record, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.initialized {
		return nil, false
	}
	rec, ok := o.records[id]
	return rec, ok
}

// Get 返回服务实例
func (o *Orchestrator) Get(id string) (Service, bool) {
	rec, ok := o.peek(id)
	if !ok {
		return nil, false
	}
	return rec.svc, true
}

// GetInfo 返回服务记录快照
func (o *Orchestrator) GetInfo(id string) (model.ServiceInfo, bool) {
	rec, ok := o.peek(id)
	if !ok {
		return model.ServiceInfo{}, false
	}
	return rec.snapshot(), true
}

// GetAllStatuses 返回所有服务状态的副本
func (o *Orchestrator) GetAllStatuses() map[string]model.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	statuses := make(map[string]model.Status, len(o.records))
	for id, rec := range o.records {
		statuses[id] = rec.getStatus()
	}
	return statuses
}

// GetAllInfos 按注册顺序返回所有服务记录快照
func (o *Orchestrator) GetAllInfos() []model.ServiceInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()

	infos := make([]model.ServiceInfo, 0, len(o.order))
	for _, id := range o.order {
		infos = append(infos, o.records[id].snapshot())
	}
	return infos
}

// IDs 按注册顺序返回服务ID
func (o *Orchestrator) IDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.order...)
}

// AutoStartIDs 返回配置了 AutoStart 的服务ID，编排器本身不据此自动启动
func (o *Orchestrator) AutoStartIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var ids []string
	for _, id := range o.order {
		if o.records[id].cfg.AutoStart {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shutdown 按依赖逆序停止全部服务并将注册表置为未初始化
func (o *Orchestrator) Shutdown(ctx context.Context) ShutdownReport {
	o.mu.Lock()
	if !o.initialized || o.closing {
		o.mu.Unlock()
		return ShutdownReport{}
	}
	o.closing = true
	records := make(map[string]*record, len(o.records))
	for id, rec := range o.records {
		records[id] = rec
	}
	order := append([]string(nil), o.order...)
	o.mu.Unlock()

	report := o.drain(ctx, records, order)

	o.mu.Lock()
	o.initialized = false
	o.closing = false
	o.records = make(map[string]*record)
	o.order = nil
	o.mu.Unlock()

	o.logger.Info("服务注册表已关闭",
		zap.Int("stopped", len(report.Stopped)),
		zap.Int("failures", len(report.Failures)),
	)
	return report
}
