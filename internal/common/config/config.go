package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
	Auth     AuthConfig     `json:"auth"`
	Warranty WarrantyConfig `json:"warranty"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name           string `json:"name"`             // 服务名称
	Host           string `json:"host"`             // 服务地址
	GRPCPort       int    `json:"grpc_port"`        // gRPC端口
	RateLimitQPS   int    `json:"rate_limit_qps"`   // 每秒补充令牌数，0 表示不限流
	RateLimitBurst int    `json:"rate_limit_burst"` // 令牌桶容量，缺省取 QPS
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// AuthConfig JWT 鉴权与 RBAC 配置
type AuthConfig struct {
	Enabled       bool                `json:"enabled"`
	JWTSecret     string              `json:"jwt_secret"`
	Issuer        string              `json:"issuer"`
	Audience      string              `json:"audience"`
	PublicMethods []string            `json:"public_methods"` // 免鉴权的 gRPC 方法全名
	RBAC          map[string][]string `json:"rbac"`           // method -> 允许的角色
}

// WarrantyConfig 保修规则参数。
// 全局配置项（带默认值），不做按车型的差异化配置。
type WarrantyConfig struct {
	MileageLimitKm  int     `json:"mileage_limit_km"`  // 整车里程上限，默认 100000
	GracePeriodDays int     `json:"grace_period_days"` // 过保宽限期（天），默认 180
	MinFeePercent   float64 `json:"min_fee_percent"`   // 付费保修费率下限，默认 0.20
	MaxFeePercent   float64 `json:"max_fee_percent"`   // 付费保修费率上限，默认 0.50
	BaseFee         int64   `json:"base_fee"`          // 保底费用，默认 500000
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}

		globalConfig.Warranty.applyDefaults()
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// applyDefaults 对缺省的保修参数补默认值（零值视为未配置）。
func (w *WarrantyConfig) applyDefaults() {
	if w.MileageLimitKm <= 0 {
		w.MileageLimitKm = 100_000
	}
	if w.GracePeriodDays <= 0 {
		w.GracePeriodDays = 180
	}
	if w.MinFeePercent <= 0 {
		w.MinFeePercent = 0.20
	}
	if w.MaxFeePercent <= 0 {
		w.MaxFeePercent = 0.50
	}
	if w.BaseFee <= 0 {
		w.BaseFee = 500_000
	}
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Name:     "warranty-service",
			Host:     "0.0.0.0",
			GRPCPort: 50051,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "evwarranty",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Auth: AuthConfig{
			Enabled:  false,
			Issuer:   "evwarrantylink",
			Audience: "evwarrantylink",
		},
	}
	cfg.Warranty.applyDefaults()
	return cfg
}
