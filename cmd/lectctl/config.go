package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config 保存 CLI 全局配置
type Config struct {
	ServerURL string `yaml:"server_url" json:"server_url"`
	MeetingID string `yaml:"default_meeting_id" json:"default_meeting_id"`
	Output    string `yaml:"-" json:"-"`
}

// LoadConfig 从命令行标志、环境变量、配置文件加载配置（优先级从高到低）
func LoadConfig(cmd *cobra.Command) *Config {
	cfg := &Config{}

	// 尝试从配置文件读取基础值
	loadConfigFile(cfg)

	// 环境变量覆盖配置文件
	if v := os.Getenv("LECTPREP_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("LECTPREP_MEETING_ID"); v != "" {
		cfg.MeetingID = v
	}

	// 命令行标志覆盖环境变量
	if v, _ := cmd.Flags().GetString("server-url"); v != "" {
		cfg.ServerURL = v
	}
	if v, _ := cmd.Flags().GetString("meeting-id"); v != "" {
		cfg.MeetingID = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output = v
	}

	// 默认值
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8000"
	}
	if cfg.Output == "" {
		cfg.Output = "text"
	}

	return cfg
}

// loadConfigFile 从 ~/.lectprep/config.yaml 读取配置
func loadConfigFile(cfg *Config) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".lectprep", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = yaml.Unmarshal(data, cfg)
}

// addGlobalFlags 为 root 命令添加全局标志
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server-url", "", "服务器地址 (env: LECTPREP_SERVER_URL, 默认: http://localhost:8000)")
	cmd.PersistentFlags().StringP("meeting-id", "m", "", "会议ID (env: LECTPREP_MEETING_ID, 可选)")
	cmd.PersistentFlags().StringP("output", "o", "", "输出格式: json / text (默认: text)")
}

// resolveMeetingID 获取会议 ID，缺失时给出提示
func resolveMeetingID(cfg *Config) (string, error) {
	if cfg.MeetingID != "" {
		return cfg.MeetingID, nil
	}
	return "", errMissingMeetingID
}
