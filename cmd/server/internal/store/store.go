package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrMeetingNotFound 查询的会议不存在
var ErrMeetingNotFound = errors.New("meeting not found")

// Meeting 会议记录
type Meeting struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Subject     string            `json:"subject,omitempty"`
	TaskID      string            `json:"task_id,omitempty"`
	StreamURL   string            `json:"stream_url,omitempty"`
	Transcripts []TranscriptEntry `json:"transcripts,omitempty"`
	Summary     *SummaryResult    `json:"summary,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TranscriptEntry 单条转写文本追加记录
type TranscriptEntry struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// SummaryResult 解析后的摘要与要点提炼结果
type SummaryResult struct {
	ParagraphTitle            string          `json:"paragraph_title,omitempty"`
	ParagraphSummary          string          `json:"paragraph_summary,omitempty"`
	ConversationalSummary     json.RawMessage `json:"conversational_summary,omitempty"`
	QuestionsAnsweringSummary json.RawMessage `json:"questions_answering_summary,omitempty"`
	MindMapSummary            json.RawMessage `json:"mind_map_summary,omitempty"`
	Keywords                  []string        `json:"keywords,omitempty"`
	KeySentences              json.RawMessage `json:"key_sentences,omitempty"`
	Actions                   json.RawMessage `json:"actions,omitempty"`
	MP3URL                    string          `json:"mp3_url,omitempty"`
}

// MeetingStore 会议持久化接口
// 核心中继与轮询组件只依赖该接口，具体存储实现可替换
type MeetingStore interface {
	// CreateMeeting 创建会议记录，ID 为空时由实现生成
	CreateMeeting(m *Meeting) (*Meeting, error)
	// FindMeeting 按 ID 查询，不存在时返回 ErrMeetingNotFound
	FindMeeting(id string) (*Meeting, error)
	// UpdateMeetingTask 更新会议关联的转写任务与推流地址
	UpdateMeetingTask(id, taskID, streamURL string) (*Meeting, error)
	// AppendTranscript 追加一条转写文本
	AppendTranscript(id, text string) error
	// SaveSummaryResult 保存摘要结果
	SaveSummaryResult(id string, result *SummaryResult) (*Meeting, error)
}
