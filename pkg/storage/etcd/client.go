package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultPrefix 状态快照的默认键前缀
const DefaultPrefix = "/kong-orchestrator/services/"

// Config etcd连接参数
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
	Prefix      string
}

// Client 封装etcd客户端
type Client struct {
	client    *clientv3.Client
	endpoints []string
	timeout   time.Duration
	prefix    string
}

// NewClient 创建新的etcd客户端
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints不能为空")
	}
	if cfg.DialTimeout <= 0 {
		return nil, fmt.Errorf("etcd超时时间必须大于0: %s", cfg.DialTimeout)
	}

	// 创建etcd客户端
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("连接etcd失败: %w", err)
	}

	c := &Client{
		client:    client,
		endpoints: cfg.Endpoints,
		timeout:   cfg.DialTimeout,
		prefix:    normalizePrefix(cfg.Prefix),
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return c, nil
}

// Ping 检查第一个endpoint是否可用
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.Status(ctx, c.endpoints[0]); err != nil {
		return fmt.Errorf("etcd连接测试失败: %w", err)
	}
	return nil
}

// Close 关闭etcd客户端连接
func (c *Client) Close() error {
	return c.client.Close()
}

// GetClient 获取原始etcd客户端
func (c *Client) GetClient() *clientv3.Client {
	return c.client
}

// Timeout 返回连接超时，用于单次请求
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// GetServiceKey 获取服务的完整存储键值
func (c *Client) GetServiceKey(serviceID string) string {
	return c.prefix + serviceID
}

// GetServicesPrefix 获取服务列表的前缀
func (c *Client) GetServicesPrefix() string {
	return c.prefix
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
