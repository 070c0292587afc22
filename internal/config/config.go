package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/spf13/viper"
)

// ServicePolicy 内置服务的编排策略，覆盖默认值
type ServicePolicy struct {
	AutoStart           *bool         `mapstructure:"auto_start"`
	RestartOnFailure    *bool         `mapstructure:"restart_on_failure"`
	MaxRestartAttempts  *int          `mapstructure:"max_restart_attempts"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

// Config 应用程序配置结构
type Config struct {
	// 编排器配置
	Orchestrator struct {
		HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
		MaxRestartAttempts  int           `mapstructure:"max_restart_attempts"`
		RestartOnFailure    bool          `mapstructure:"restart_on_failure"`
		ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"orchestrator"`

	// etcd配置，用于发布服务状态快照
	Etcd struct {
		Enabled     bool          `mapstructure:"enabled"`
		Endpoints   []string      `mapstructure:"endpoints"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
		Username    string        `mapstructure:"username"`
		Password    string        `mapstructure:"password"`
		Prefix      string        `mapstructure:"prefix"`
		LeaseTTL    int64         `mapstructure:"lease_ttl"` // 秒
	} `mapstructure:"etcd"`

	// 管理API配置
	Admin struct {
		Enabled       bool   `mapstructure:"enabled"`
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
	} `mapstructure:"admin"`

	// DNS状态查询配置
	DNS struct {
		Enabled       bool   `mapstructure:"enabled"`
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
		Domain        string `mapstructure:"domain"`
	} `mapstructure:"dns"`

	// 日志配置
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`

	// 内置服务策略，key为服务ID
	Services map[string]ServicePolicy `mapstructure:"services"`
}

// LoadConfig 从文件和环境变量加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.kong-orchestrator")
		v.AddConfigPath("/etc/kong-orchestrator")
	}

	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// 找不到默认配置文件时使用默认值，显式指定的文件必须存在
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("读取配置文件错误: %w", err)
		}
	}

	v.SetEnvPrefix("KONG_ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVariables(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置错误: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Orchestrator.HealthCheckInterval <= 0 {
		return fmt.Errorf("健康检查周期必须大于0: %s", c.Orchestrator.HealthCheckInterval)
	}
	if c.Orchestrator.MaxRestartAttempts < 0 {
		return fmt.Errorf("最大重启次数不能为负数: %d", c.Orchestrator.MaxRestartAttempts)
	}
	if c.Etcd.Enabled && len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("启用etcd时必须配置endpoints")
	}
	if c.DNS.Enabled && c.DNS.Domain == "" {
		return fmt.Errorf("启用DNS时必须配置domain")
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestrator.health_check_interval", "30s")
	v.SetDefault("orchestrator.max_restart_attempts", 3)
	v.SetDefault("orchestrator.restart_on_failure", true)
	v.SetDefault("orchestrator.shutdown_timeout", "30s")

	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")
	v.SetDefault("etcd.username", "")
	v.SetDefault("etcd.password", "")
	v.SetDefault("etcd.prefix", "/kong-orchestrator/services/")
	v.SetDefault("etcd.lease_ttl", 30)

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.listen_address", "0.0.0.0")
	v.SetDefault("admin.port", 9090)

	v.SetDefault("dns.enabled", false)
	v.SetDefault("dns.listen_address", "127.0.0.1")
	v.SetDefault("dns.port", 5353)
	v.SetDefault("dns.domain", "orchestrator.local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)
}

// bindEnvVariables 绑定特定的环境变量
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("etcd.enabled", "KONG_ORCHESTRATOR_ETCD_ENABLED")
	v.BindEnv("etcd.endpoints", "KONG_ORCHESTRATOR_ETCD_ENDPOINTS")
	v.BindEnv("admin.port", "KONG_ORCHESTRATOR_ADMIN_PORT")
	v.BindEnv("dns.port", "KONG_ORCHESTRATOR_DNS_PORT")
	v.BindEnv("log.level", "KONG_ORCHESTRATOR_LOG_LEVEL")
}

// GetDefaultConfigPath 返回默认配置文件路径
func GetDefaultConfigPath() string {
	paths := []string{
		"./config.yaml",
		"./configs/config.yaml",
		os.Getenv("HOME") + "/.kong-orchestrator/config.yaml",
		"/etc/kong-orchestrator/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// ServiceConfig 返回内置服务的注册参数，未配置的策略字段使用编排器默认值
func (c *Config) ServiceConfig(serviceID string, autoStart bool) model.ServiceConfig {
	cfg := model.ServiceConfig{
		ID:                  serviceID,
		AutoStart:           autoStart,
		RestartOnFailure:    c.Orchestrator.RestartOnFailure,
		MaxRestartAttempts:  c.Orchestrator.MaxRestartAttempts,
		HealthCheckInterval: c.Orchestrator.HealthCheckInterval,
	}

	p, ok := c.Services[serviceID]
	if !ok {
		return cfg
	}
	if p.AutoStart != nil {
		cfg.AutoStart = *p.AutoStart
	}
	if p.RestartOnFailure != nil {
		cfg.RestartOnFailure = *p.RestartOnFailure
	}
	if p.MaxRestartAttempts != nil {
		cfg.MaxRestartAttempts = *p.MaxRestartAttempts
	}
	if p.HealthCheckInterval > 0 {
		cfg.HealthCheckInterval = p.HealthCheckInterval
	}
	return cfg
}
