package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config 统一配置结构
type Config struct {
	Server ServerConfig
	Data   DataConfig
	Log    LogConfig
	Tingwu TingwuConfig
	Relay  RelayConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env  string // dev, staging, production
	Port string
}

// DataConfig 数据目录配置
type DataConfig struct {
	MeetingsDir  string
	AuditLogsDir string
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console, json
}

// TingwuConfig 通义听悟服务配置
type TingwuConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	AppKey          string
	APIEndpoint     string
	APIVersion      string
	Region          string
}

// RelayConfig 实时转写中继配置
type RelayConfig struct {
	// AllowDemoSessions 允许无会议记录的 Demo 会话加入房间
	// 生产环境应保持 false
	AllowDemoSessions bool
	// MaxSummaryStreams 摘要 SSE 流的最大并发数
	MaxSummaryStreams int
	// CORSAllowedOrigins WebSocket 升级允许的来源
	CORSAllowedOrigins []string
}

// GlobalConfig 全局配置实例
var GlobalConfig *Config

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:  getEnv("ENV", "dev"),
			Port: getEnv("PORT", "8000"),
		},
		Data: DataConfig{
			MeetingsDir:  getEnv("MEETINGS_DIR", "./meetings"),
			AuditLogsDir: getEnv("AUDIT_LOGS_DIR", "./audit_logs"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Tingwu: TingwuConfig{
			AccessKeyID:     getEnv("ALIBABA_CLOUD_ACCESS_KEY_ID", ""),
			AccessKeySecret: getEnv("ALIBABA_CLOUD_ACCESS_KEY_SECRET", ""),
			AppKey:          getEnv("TINGWU_APP_KEY", ""),
			APIEndpoint:     getEnv("TINGWU_API_ENDPOINT", "tingwu.cn-beijing.aliyuncs.com"),
			APIVersion:      getEnv("TINGWU_API_VERSION", "2023-09-30"),
			Region:          getEnv("TINGWU_REGION", "cn-beijing"),
		},
		Relay: RelayConfig{
			AllowDemoSessions:  getEnvAsBool("RELAY_ALLOW_DEMO_SESSIONS", false),
			MaxSummaryStreams:  getEnvAsInt("RELAY_MAX_SUMMARY_STREAMS", 8),
			CORSAllowedOrigins: parseStringList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
	}

	GlobalConfig = cfg
	return cfg, nil
}

// ValidateConfig 验证配置的有效性
func ValidateConfig(cfg *Config) error {
	var errors []string

	// 1. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 2. 日志级别验证
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	// 3. 日志格式验证
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 4. 环境验证
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	// 5. 通义听悟配置校验：三项凭证要么全配，要么全不配（未配置时走 Demo 数据）
	tw := cfg.Tingwu
	configured := 0
	for _, v := range []string{tw.AccessKeyID, tw.AccessKeySecret, tw.AppKey} {
		if v != "" {
			configured++
		}
	}
	if configured != 0 && configured != 3 {
		errors = append(errors, "ALIBABA_CLOUD_ACCESS_KEY_ID, ALIBABA_CLOUD_ACCESS_KEY_SECRET and TINGWU_APP_KEY must be set together")
	}

	// 6. 生产环境不允许 Demo 会话
	if cfg.Server.Env == "production" && cfg.Relay.AllowDemoSessions {
		errors = append(errors, "RELAY_ALLOW_DEMO_SESSIONS must be false in production environment")
	}

	// 7. SSE 并发上限验证
	if cfg.Relay.MaxSummaryStreams < 1 {
		errors = append(errors, fmt.Sprintf("invalid RELAY_MAX_SUMMARY_STREAMS: %d (must be >= 1)", cfg.Relay.MaxSummaryStreams))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment 判断是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// TingwuConfigured 判断通义听悟凭证是否完整
func (c *Config) TingwuConfigured() bool {
	return c.Tingwu.AccessKeyID != "" && c.Tingwu.AccessKeySecret != "" && c.Tingwu.AppKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func parseStringList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
