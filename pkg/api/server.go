// Package api 提供编排器的HTTP管理接口
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/hewenyu/kong-orchestrator/pkg/api/handler"
	"github.com/hewenyu/kong-orchestrator/pkg/api/router"
	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options 管理API参数
type Options struct {
	ListenAddress string
	Port          int
	Version       string
	// Gatherer 为nil时不暴露/metrics
	Gatherer prometheus.Gatherer
	// Protected 不允许通过API启停的服务ID
	Protected []string
}

// Server 管理API服务
type Server struct {
	opts   Options
	orch   handler.Orchestrator
	logger lifecycle.Logger

	mu       sync.Mutex
	e        *echo.Echo
	listener net.Listener
	done     chan struct{}
	serveErr error
}

// NewServer 创建管理API服务
func NewServer(orch handler.Orchestrator, logger lifecycle.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:   opts,
		orch:   orch,
		logger: logger,
	}
}

// newEcho 创建Echo实例并注册路由
func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// 添加中间件
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	var metrics echo.HandlerFunc
	if s.opts.Gatherer != nil {
		metrics = handler.NewMetricsHandler(s.opts.Gatherer)
	}

	router.RegisterAdminRoutes(e,
		handler.NewServiceHandler(s.orch, s.logger, s.opts.Protected...),
		handler.NewHealthHandler(s.orch, s.opts.Version),
		metrics)
	return e
}

// Handler 返回未监听的路由，用于测试
func (s *Server) Handler() http.Handler {
	return s.newEcho()
}

// Start 同步监听端口，随后在后台提供服务，端口占用等错误直接返回
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.e != nil {
		return fmt.Errorf("管理API服务已启动")
	}

	addr := net.JoinHostPort(s.opts.ListenAddress, fmt.Sprint(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("监听管理API地址 %s 失败: %w", addr, err)
	}

	e := s.newEcho()
	e.Listener = ln
	done := make(chan struct{})

	s.e, s.listener, s.done, s.serveErr = e, ln, done, nil

	s.logger.Info("启动管理API服务", zap.String("address", ln.Addr().String()))

	// 启动服务（非阻塞）
	go func() {
		defer close(done)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("管理API服务异常退出", zap.Error(err))
			s.mu.Lock()
			s.serveErr = err
			s.mu.Unlock()
		}
	}()

	return nil
}

// Addr 返回实际监听地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Err 返回后台服务的退出错误
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Shutdown 优雅关闭API服务
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	e, done := s.e, s.done
	s.e, s.listener = nil, nil
	s.mu.Unlock()

	if e == nil {
		return nil
	}

	s.logger.Info("正在关闭管理API服务...")
	if err := e.Shutdown(ctx); err != nil {
		s.logger.Error("关闭管理API服务出错", zap.Error(err))
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
