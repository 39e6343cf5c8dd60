package tingwu

import "encoding/json"

// 任务状态（上游 TaskStatus 字段的取值）
const (
	StatusOngoing   = "ONGOING"
	StatusPaused    = "PAUSED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusInvalid   = "INVALID"
	StatusUnknown   = "UNKNOWN"
)

// 结果工件名称（Result 映射的键）
const (
	ArtifactSummarization     = "Summarization"
	ArtifactMeetingAssistance = "MeetingAssistance"
	ArtifactOutputMp3Path     = "OutputMp3Path"
)

// TaskCreation 实时转写任务的创建结果
type TaskCreation struct {
	TaskID         string `json:"TaskId"`
	MeetingJoinURL string `json:"MeetingJoinUrl"`
	TaskStatus     string `json:"TaskStatus"`
}

// TaskInfo 任务查询结果
// Result 中的摘要与要点结果以 URL 形式返回，需另行下载；
// 下载合并后的内容填充到 Summarization / MeetingAssistance 字段
type TaskInfo struct {
	TaskID            string            `json:"TaskId"`
	TaskStatus        string            `json:"TaskStatus"`
	ErrorCode         string            `json:"ErrorCode,omitempty"`
	ErrorMessage      string            `json:"ErrorMessage,omitempty"`
	Result            map[string]string `json:"Result,omitempty"`
	OutputMp3Path     string            `json:"OutputMp3Path,omitempty"`
	Summarization     json.RawMessage   `json:"Summarization,omitempty"`
	MeetingAssistance json.RawMessage   `json:"MeetingAssistance,omitempty"`
}

// RealtimeTaskOptions 创建实时转写任务的参数
// 零值字段采用与控制台一致的默认配置
type RealtimeTaskOptions struct {
	Format                     string   `json:"audio_format"`
	SampleRate                 int      `json:"sample_rate"`
	SourceLanguage             string   `json:"source_language"`
	TaskKey                    string   `json:"task_key"`
	EnableProgressiveCallbacks bool     `json:"enable_progressive_callbacks"`
	EnableTranslation          bool     `json:"enable_translation"`
	TranslationTargetLanguages []string `json:"translation_target_languages"`
	EnableSummarization        bool     `json:"enable_summary"`
	SummarizationTypes         []string `json:"summary_types"`
	EnableMeetingAssistance    bool     `json:"enable_key_points"`
	MeetingAssistanceTypes     []string `json:"meeting_assistance_types"`
	EnableDiarization          *bool    `json:"enable_diarization"`
	SpeakerCount               int      `json:"speaker_count"`
	EnableTextPolish           *bool    `json:"enable_text_polish"`
}

// apiEnvelope 上游 OpenAPI 的统一响应包装，Code 为 "0" 表示成功
type apiEnvelope struct {
	Code      string          `json:"Code"`
	Message   string          `json:"Message"`
	RequestID string          `json:"RequestId"`
	Data      json.RawMessage `json:"Data"`
}
