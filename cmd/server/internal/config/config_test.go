package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Server: ServerConfig{Env: "dev", Port: "8000"},
		Data:   DataConfig{MeetingsDir: "./meetings", AuditLogsDir: "./audit_logs"},
		Log:    LogConfig{Level: "info", Format: "console"},
		Relay:  RelayConfig{MaxSummaryStreams: 8},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Server.Env)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "tingwu.cn-beijing.aliyuncs.com", cfg.Tingwu.APIEndpoint)
	assert.Equal(t, "2023-09-30", cfg.Tingwu.APIVersion)
	assert.False(t, cfg.Relay.AllowDemoSessions)
	assert.Equal(t, 8, cfg.Relay.MaxSummaryStreams)
	assert.False(t, cfg.TingwuConfigured())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("RELAY_MAX_SUMMARY_STREAMS", "4")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Relay.MaxSummaryStreams)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Relay.CORSAllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = "99999" },
			wantErr: "invalid PORT",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "invalid LOG_LEVEL",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "invalid LOG_FORMAT",
		},
		{
			name:    "bad env",
			mutate:  func(c *Config) { c.Server.Env = "qa" },
			wantErr: "invalid ENV",
		},
		{
			name: "partial tingwu credentials",
			mutate: func(c *Config) {
				c.Tingwu.AccessKeyID = "ak"
			},
			wantErr: "must be set together",
		},
		{
			name: "full tingwu credentials ok",
			mutate: func(c *Config) {
				c.Tingwu.AccessKeyID = "ak"
				c.Tingwu.AccessKeySecret = "sk"
				c.Tingwu.AppKey = "app"
			},
		},
		{
			name: "demo sessions in production",
			mutate: func(c *Config) {
				c.Server.Env = "production"
				c.Relay.AllowDemoSessions = true
			},
			wantErr: "RELAY_ALLOW_DEMO_SESSIONS",
		},
		{
			name:    "zero summary streams",
			mutate:  func(c *Config) { c.Relay.MaxSummaryStreams = 0 },
			wantErr: "RELAY_MAX_SUMMARY_STREAMS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
