package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述注册中心守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Registry RegistryConfig `json:"registry"`
	Systems  SystemsConfig  `json:"systems"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Notify   NotifyConfig   `json:"notify"`
	Ledger   LedgerConfig   `json:"ledger"`
	Auth     AuthConfig     `json:"auth"`
	Metrics  MetricsConfig  `json:"metrics"`
	Logging  LoggingConfig  `json:"logging"`
	Plugins  PluginsConfig  `json:"plugins"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// RegistryConfig 控制注册中心的验证策略与费用参数。
type RegistryConfig struct {
	MinSecurityLevel uint32   `json:"min_security_level"`
	MaxProofAge      int64    `json:"max_proof_age"`
	VerificationFee  uint64   `json:"verification_fee"`
	FeeRecipient     string   `json:"fee_recipient"`
	SupportedSystems []string `json:"supported_systems"`
	AdminIdentity    string   `json:"admin_identity"`
	VerifierIdentity string   `json:"verifier_identity"`
}

// SystemsConfig 指向证明系统定义文件。
type SystemsConfig struct {
	Path string `json:"path"`
}

// StorageConfig 描述验证结论的持久化后端。
type StorageConfig struct {
	Driver          string `json:"driver"`
	DSN             string `json:"dsn"`
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	ConnMaxLifetime int64  `json:"conn_max_lifetime"`
}

// QueueConfig 描述异步提交队列的实现与连接参数。
type QueueConfig struct {
	Driver   string `json:"driver"`
	Workers  int    `json:"workers"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NotifyConfig 描述验证事件的外发渠道。
type NotifyConfig struct {
	Driver   string `json:"driver"`
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

// LedgerConfig 描述费用账本的实现。
type LedgerConfig struct {
	Driver      string            `json:"driver"`
	RPCURL      string            `json:"rpc_url"`
	ChainID     int64             `json:"chain_id"`
	OperatorKey string            `json:"operator_key"`
	Accounts    map[string]string `json:"accounts"`
	GasLimit    uint64            `json:"gas_limit"`
}

// AuthConfig 描述静态令牌目录。
type AuthConfig struct {
	Mode   string      `json:"mode"`
	Tokens []AuthToken `json:"tokens"`
}

// AuthToken 将一个令牌绑定到提交者身份。
type AuthToken struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	Admin    bool   `json:"admin"`
}

// MetricsConfig 控制独立指标端口，为空时仅通过 API 端口暴露。
type MetricsConfig struct {
	Address string `json:"address"`
}

// LoggingConfig 控制结构化日志输出。
type LoggingConfig struct {
	Level    string `json:"level"`
	Dir      string `json:"dir"`
	AuditDir string `json:"audit_dir"`
}

// PluginsConfig 指向验证器插件声明文件。
type PluginsConfig struct {
	Path string `json:"path"`
}

// ConnMaxLifetimeDuration 把秒数转换为 time.Duration。
func (s StorageConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(s.ConnMaxLifetime) * time.Second
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Notify.Driver == "" {
		c.Notify.Driver = "log"
	}
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "memory"
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Systems.Path != "" && !filepath.IsAbs(c.Systems.Path) {
		c.Systems.Path = filepath.Join(baseDir, c.Systems.Path)
	}
	if c.Plugins.Path != "" && !filepath.IsAbs(c.Plugins.Path) {
		c.Plugins.Path = filepath.Join(baseDir, c.Plugins.Path)
	}
	if c.Logging.Dir != "" && !filepath.IsAbs(c.Logging.Dir) {
		c.Logging.Dir = filepath.Join(baseDir, c.Logging.Dir)
	}
	if c.Logging.AuditDir != "" && !filepath.IsAbs(c.Logging.AuditDir) {
		c.Logging.AuditDir = filepath.Join(baseDir, c.Logging.AuditDir)
	}
}
