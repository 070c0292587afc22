package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
)

// Health 管理API健康检查结果
type Health struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// ListServices 查询所有服务快照
func (c *Client) ListServices(ctx context.Context) ([]model.ServiceInfo, error) {
	var infos []model.ServiceInfo
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/services", nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// GetService 查询服务详情
func (c *Client) GetService(ctx context.Context, serviceID string) (*model.ServiceInfo, error) {
	var info model.ServiceInfo
	if err := c.doRequest(ctx, http.MethodGet, servicePath(serviceID, ""), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Statuses 查询所有服务状态
func (c *Client) Statuses(ctx context.Context) (map[string]model.Status, error) {
	var statuses map[string]model.Status
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/services/statuses", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// StartOrder 查询依赖顺序，ids为空时返回全部服务
func (c *Client) StartOrder(ctx context.Context, ids ...string) ([]string, error) {
	path := "/api/v1/services/order"
	if len(ids) > 0 {
		path += "?" + url.Values{"ids": ids}.Encode()
	}
	var order []string
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &order); err != nil {
		return nil, err
	}
	return order, nil
}

// StartService 启动服务
func (c *Client) StartService(ctx context.Context, serviceID string) (*model.ServiceInfo, error) {
	return c.operate(ctx, serviceID, "start")
}

// StopService 停止服务
func (c *Client) StopService(ctx context.Context, serviceID string) (*model.ServiceInfo, error) {
	return c.operate(ctx, serviceID, "stop")
}

// RestartService 手动重启服务
func (c *Client) RestartService(ctx context.Context, serviceID string) (*model.ServiceInfo, error) {
	return c.operate(ctx, serviceID, "restart")
}

func (c *Client) operate(ctx context.Context, serviceID, action string) (*model.ServiceInfo, error) {
	var info model.ServiceInfo
	if err := c.doRequest(ctx, http.MethodPost, servicePath(serviceID, action), nil, &info); err != nil {
		return nil, fmt.Errorf("%s %s 失败: %w", action, serviceID, err)
	}
	return &info, nil
}

// Health 查询汇总健康状态，503时同样返回结果
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("/api/v1/health"), nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	if c.config.ApiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.ApiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return &h, nil
}

// WaitForStatus 轮询直到服务进入目标状态或ctx结束
func (c *Client) WaitForStatus(ctx context.Context, serviceID string, want model.Status, interval time.Duration) (*model.ServiceInfo, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := c.GetService(ctx, serviceID)
		if err == nil && info.Status == want {
			return info, nil
		}
		if IsNotFound(err) {
			return nil, err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return info, fmt.Errorf("等待服务 %s 进入 %s 超时: %w", serviceID, want, ctx.Err())
		}
	}
}

// IsNotFound 判断是否为服务不存在
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func servicePath(serviceID, action string) string {
	p := "/api/v1/services/" + url.PathEscape(serviceID)
	if action != "" {
		p += "/" + action
	}
	return p
}
