package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// 从默认位置加载配置
	config, err := LoadConfig("")
	require.NoError(t, err, "无法加载默认配置")
	require.NotNil(t, config, "配置不应为nil")

	// 验证默认值
	assert.Equal(t, 30*time.Second, config.Orchestrator.HealthCheckInterval, "默认健康检查周期应为30s")
	assert.Equal(t, 3, config.Orchestrator.MaxRestartAttempts, "默认最大重启次数应为3")
	assert.Equal(t, 30*time.Second, config.Orchestrator.ShutdownTimeout)
	assert.False(t, config.Etcd.Enabled, "etcd默认不启用")
	assert.Equal(t, []string{"localhost:2379"}, config.Etcd.Endpoints)
	assert.Equal(t, 9090, config.Admin.Port, "管理API端口应为9090")
	assert.Equal(t, "orchestrator.local", config.DNS.Domain)
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("KONG_ORCHESTRATOR_ADMIN_PORT", "9191")
	t.Setenv("KONG_ORCHESTRATOR_DNS_PORT", "5454")

	config, err := LoadConfig("")
	require.NoError(t, err, "无法加载配置")

	// 验证环境变量覆盖
	assert.Equal(t, 9191, config.Admin.Port, "环境变量应正确覆盖管理API端口")
	assert.Equal(t, 5454, config.DNS.Port, "环境变量应正确覆盖DNS端口")

	// 确认其他值不受影响
	assert.Equal(t, 3, config.Orchestrator.MaxRestartAttempts)
}

func TestLoadConfigWithMissingFile(t *testing.T) {
	config, err := LoadConfig("non_existent_file.yaml")

	assert.Error(t, err, "从不存在的文件加载配置应该失败")
	assert.Nil(t, config, "加载不存在的配置文件应该返回nil配置")
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `
orchestrator:
  health_check_interval: 5s
  max_restart_attempts: 1
services:
  admin-api:
    auto_start: false
    max_restart_attempts: 7
    health_check_interval: 2s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, config.Orchestrator.HealthCheckInterval)

	admin := config.ServiceConfig("admin-api", true)
	assert.Equal(t, "admin-api", admin.ID)
	assert.False(t, admin.AutoStart)
	assert.Equal(t, 7, admin.MaxRestartAttempts)
	assert.Equal(t, 2*time.Second, admin.HealthCheckInterval)
	assert.True(t, admin.RestartOnFailure, "未覆盖的字段使用默认值")

	dns := config.ServiceConfig("dns", true)
	assert.True(t, dns.AutoStart)
	assert.Equal(t, 1, dns.MaxRestartAttempts)
	assert.Equal(t, 5*time.Second, dns.HealthCheckInterval)
}

func TestConfigValidate(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	config.Orchestrator.HealthCheckInterval = 0
	assert.Error(t, config.Validate())

	config.Orchestrator.HealthCheckInterval = time.Second
	config.Etcd.Enabled = true
	config.Etcd.Endpoints = nil
	assert.Error(t, config.Validate())
}
