package relay

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// TranscriptEvent 为归一化后的转写事件，由 Link 解析上游消息后产出
// 同一会话内事件按上游到达顺序交付，Link 本身不做去重或重排
type TranscriptEvent struct {
	SessionID       string `json:"session_id"`
	Text            string `json:"text"`
	IsFinal         bool   `json:"is_final"`
	TimestampMillis int64  `json:"timestamp"`
}

// 上游事件名（SpeechTranscriber 命名空间）
const (
	evtSentenceBegin     = "SentenceBegin"
	evtResultChanged     = "TranscriptionResultChanged"
	evtSentenceEnd       = "SentenceEnd"
	evtResultTranslated  = "ResultTranslated"
	controlStart         = "StartTranscription"
	controlStop          = "StopTranscription"
	transcriberNamespace = "SpeechTranscriber"
	defaultControlFormat = "pcm"
)

// controlFrame 为发往上游的控制消息（非音频帧）
type controlFrame struct {
	Header  controlHeader  `json:"header"`
	Payload map[string]any `json:"payload"`
}

type controlHeader struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

func encodeControlFrame(name string, payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal(controlFrame{
		Header:  controlHeader{Name: name, Namespace: transcriberNamespace},
		Payload: payload,
	})
}

// eventEnvelope 为上游返回消息的判别式信封：header.name 区分事件类型
type eventEnvelope struct {
	Header struct {
		Name string `json:"name"`
	} `json:"header"`
	Payload struct {
		Index           int             `json:"index"`
		Result          string          `json:"result"`
		StashResult     json.RawMessage `json:"stash_result"`
		Time            int64           `json:"time"`
		TranslateResult json.RawMessage `json:"translate_result"`
	} `json:"payload"`
	// 上游错误信封（顶层字段）
	ErrorCode    json.RawMessage `json:"ErrorCode"`
	ErrorMessage string          `json:"ErrorMessage"`
}

// parseUpstreamMessage 将上游 JSON 消息解析为 TranscriptEvent
// 不识别或格式错误的消息返回 (nil, false)，由调用方直接丢弃
func parseUpstreamMessage(sessionID string, raw []byte, log *slog.Logger) (*TranscriptEvent, bool) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn("non-JSON upstream message dropped", "session_id", sessionID, "size", len(raw))
		return nil, false
	}

	// 错误信封：记录日志但不关闭连接，由底层传输错误决定连接生死
	if len(env.ErrorCode) > 0 {
		log.Error("upstream error envelope",
			"session_id", sessionID,
			"error_code", string(env.ErrorCode),
			"error_message", env.ErrorMessage,
		)
		return nil, false
	}

	switch env.Header.Name {
	case evtSentenceBegin:
		log.Debug("sentence begin", "session_id", sessionID, "index", env.Payload.Index)
		return nil, false

	case evtResultChanged:
		return &TranscriptEvent{
			SessionID:       sessionID,
			Text:            env.Payload.Result,
			IsFinal:         false,
			TimestampMillis: eventTimestamp(env.Payload.Time),
		}, true

	case evtSentenceEnd:
		// 最终结果只取 result 字段，stash_result 为暂存的临时文本，不得使用
		return &TranscriptEvent{
			SessionID:       sessionID,
			Text:            strings.TrimSpace(env.Payload.Result),
			IsFinal:         true,
			TimestampMillis: eventTimestamp(env.Payload.Time),
		}, true

	case evtResultTranslated:
		// 翻译结果暂不下发客户端
		log.Debug("translated result ignored", "session_id", sessionID)
		return nil, false

	default:
		log.Debug("unrecognized upstream event dropped", "session_id", sessionID, "event", env.Header.Name)
		return nil, false
	}
}

func eventTimestamp(t int64) int64 {
	if t > 0 {
		return t
	}
	return time.Now().UnixMilli()
}
