package audit

import (
	"encoding/json"
	"log"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// TranscriptLogger 转写审计日志
// 将每条定稿转写文本以 JSONL 形式写入滚动日志文件，供事后追溯
type TranscriptLogger struct {
	logger *log.Logger
}

// NewTranscriptLogger 创建带自动滚动的转写审计日志
func NewTranscriptLogger(baseDir string) *TranscriptLogger {
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(baseDir, "transcripts.jsonl"),
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // 天
		Compress:   true,
	}
	return &TranscriptLogger{
		logger: log.New(writer, "", 0), // 时间戳由记录自带
	}
}

// LogTranscript 记录一条定稿转写文本
func (t *TranscriptLogger) LogTranscript(meetingID, sessionID, text string, timestampMillis int64) {
	record := map[string]any{
		"logged_at":  time.Now().UTC().Format(time.RFC3339),
		"meeting_id": meetingID,
		"session_id": sessionID,
		"text":       text,
		"timestamp":  timestampMillis,
	}
	data, _ := json.Marshal(record)
	t.logger.Println(string(data))
}

// LogSessionEvent 记录会话生命周期事件（开始、停止、异常断开）
func (t *TranscriptLogger) LogSessionEvent(meetingID, sessionID, event, detail string) {
	record := map[string]any{
		"logged_at":  time.Now().UTC().Format(time.RFC3339),
		"meeting_id": meetingID,
		"session_id": sessionID,
		"event":      event,
	}
	if detail != "" {
		record["detail"] = detail
	}
	data, _ := json.Marshal(record)
	t.logger.Println(string(data))
}
