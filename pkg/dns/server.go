// Package dns 通过DNS TXT记录提供只读的服务状态查询
package dns

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// Server DNS服务器，同时监听UDP和TCP
type Server struct {
	addr    string
	handler *Handler
	logger  lifecycle.Logger
	timeout time.Duration

	mu        sync.Mutex
	udpServer *dns.Server // UDP服务器
	tcpServer *dns.Server // TCP服务器
	udpAddr   string
	wg        sync.WaitGroup
}

// NewServer 创建DNS服务器，addr为host:port，端口为0时自动分配
func NewServer(addr string, handler *Handler, logger lifecycle.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

// Start 同步绑定端口并等待两个服务器就绪
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.udpServer != nil {
		return fmt.Errorf("DNS服务器已启动")
	}

	pc, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("监听DNS UDP地址 %s 失败: %w", s.addr, err)
	}

	// TCP使用与UDP相同的端口
	host, _, _ := net.SplitHostPort(s.addr)
	port := pc.LocalAddr().(*net.UDPAddr).Port
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		pc.Close()
		return fmt.Errorf("监听DNS TCP端口 %d 失败: %w", port, err)
	}

	started := make(chan struct{}, 2)
	notify := func() { started <- struct{}{} }

	udp := &dns.Server{
		PacketConn:        pc,
		Handler:           s.handler,
		ReadTimeout:       s.timeout,
		WriteTimeout:      s.timeout,
		NotifyStartedFunc: notify,
	}
	tcp := &dns.Server{
		Listener:          ln,
		Handler:           s.handler,
		ReadTimeout:       s.timeout,
		WriteTimeout:      s.timeout,
		NotifyStartedFunc: notify,
	}

	for _, srv := range []*dns.Server{udp, tcp} {
		s.wg.Add(1)
		go func(srv *dns.Server) {
			defer s.wg.Done()
			if err := srv.ActivateAndServe(); err != nil {
				s.logger.Error("DNS服务器异常退出", zap.Error(err))
			}
		}(srv)
	}

	// 等待UDP和TCP都就绪
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-ctx.Done():
			pc.Close()
			ln.Close()
			s.wg.Wait()
			return fmt.Errorf("等待DNS服务器就绪超时: %w", ctx.Err())
		}
	}

	s.udpServer, s.tcpServer = udp, tcp
	s.udpAddr = pc.LocalAddr().String()

	s.logger.Info("DNS服务器已启动",
		zap.String("address", s.udpAddr),
		zap.String("domain", s.handler.Domain()))
	return nil
}

// Addr 返回UDP实际监听地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpAddr
}

// Stop 停止DNS服务器
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	udp, tcp := s.udpServer, s.tcpServer
	s.udpServer, s.tcpServer, s.udpAddr = nil, nil, ""
	s.mu.Unlock()

	if udp == nil {
		return nil
	}

	var firstErr error
	// 关闭UDP服务器
	if err := udp.ShutdownContext(ctx); err != nil {
		s.logger.Warn("关闭DNS UDP服务器失败", zap.Error(err))
		firstErr = err
	}
	// 关闭TCP服务器
	if err := tcp.ShutdownContext(ctx); err != nil {
		s.logger.Warn("关闭DNS TCP服务器失败", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	s.wg.Wait()
	return firstErr
}

// Probe 向自身发起一次域名根TXT查询，返回往返耗时
func (s *Server) Probe(ctx context.Context) (time.Duration, error) {
	addr := s.Addr()
	if addr == "" {
		return 0, fmt.Errorf("DNS服务器未启动")
	}

	m := new(dns.Msg)
	m.SetQuestion(s.handler.Domain(), dns.TypeTXT)

	c := &dns.Client{Net: "udp", Timeout: s.timeout}
	r, rtt, err := c.ExchangeContext(ctx, m, addr)
	if err != nil {
		return rtt, fmt.Errorf("DNS自检查询失败: %w", err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return rtt, fmt.Errorf("DNS自检返回 %s", dns.RcodeToString[r.Rcode])
	}
	return rtt, nil
}
