package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shanlih/lectprep/cmd/server/internal/metrics"
	"github.com/shanlih/lectprep/cmd/server/internal/store"
	"github.com/shanlih/lectprep/cmd/server/internal/tingwu"
)

// TaskAPI 轮询器依赖的任务查询接口，由 tingwu.Client 实现
type TaskAPI interface {
	GetTaskInfo(ctx context.Context, taskID string) (*tingwu.TaskInfo, error)
	DownloadArtifact(ctx context.Context, url string) (json.RawMessage, error)
}

// 推送事件类型
const (
	EventStart    = "start"
	EventStatus   = "status"
	EventWarning  = "warning"
	EventError    = "error"
	EventComplete = "complete"
)

// ProgressEvent 轮询过程中推送给客户端的进度事件
type ProgressEvent struct {
	Type    string               `json:"type"`
	Message string               `json:"message,omitempty"`
	Status  string               `json:"status,omitempty"`
	Data    *store.SummaryResult `json:"data,omitempty"`
	MP3URL  string               `json:"mp3_url,omitempty"`
}

// EmitFunc 进度事件回调，在轮询 goroutine 内同步调用
type EmitFunc func(ProgressEvent)

const (
	defaultTick          = time.Second
	defaultMaxPolls      = 300
	defaultMaxPauseWaits = 20
)

// Poller 摘要任务轮询器
// 任务停止后，上游异步生成摘要与要点结果；轮询器以固定间隔查询任务状态，
// 完成后下载并解析结果、写入存储，并将全过程以进度事件推送给调用方
type Poller struct {
	api           TaskAPI
	meetings      store.MeetingStore
	log           *slog.Logger
	tick          time.Duration
	maxPolls      int
	maxPauseWaits int
}

// PollerOptions 轮询器可选参数，零值使用默认配置
type PollerOptions struct {
	Tick          time.Duration
	MaxPolls      int
	MaxPauseWaits int
	Logger        *slog.Logger
}

// NewPoller 创建轮询器
func NewPoller(api TaskAPI, meetings store.MeetingStore, opts PollerOptions) *Poller {
	if opts.Tick == 0 {
		opts.Tick = defaultTick
	}
	if opts.MaxPolls == 0 {
		opts.MaxPolls = defaultMaxPolls
	}
	if opts.MaxPauseWaits == 0 {
		opts.MaxPauseWaits = defaultMaxPauseWaits
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		api:           api,
		meetings:      meetings,
		log:           opts.Logger,
		tick:          opts.Tick,
		maxPolls:      opts.MaxPolls,
		maxPauseWaits: opts.MaxPauseWaits,
	}
}

// Run 轮询任务直到完成、失败或超出轮询预算
// 每轮先查询再等待一个 tick；PAUSED 状态最多容忍 maxPauseWaits 个连续轮次，
// 且暂停轮次一并计入总预算。所有终态都会以一条 error 或 complete 事件收尾
func (p *Poller) Run(ctx context.Context, meetingID, taskID string, emit EmitFunc) error {
	start := time.Now()
	p.log.Info("summary poll started", "meeting_id", meetingID, "task_id", taskID)
	emit(ProgressEvent{Type: EventStart, Message: "开始获取摘要结果"})

	pauseWaits := 0
	for poll := 0; poll < p.maxPolls; poll++ {
		info, err := p.api.GetTaskInfo(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				metrics.RecordSummaryPoll("error", time.Since(start).Seconds())
				return ctx.Err()
			}
			p.log.Error("summary poll query failed", "task_id", taskID, "error", err)
			metrics.RecordSummaryPoll("error", time.Since(start).Seconds())
			emit(ProgressEvent{Type: EventError, Message: "查询任务状态失败: " + err.Error()})
			return err
		}

		switch info.TaskStatus {
		case tingwu.StatusCompleted:
			result := p.collectResult(ctx, info, emit)
			if meetingID != "" {
				if _, err := p.meetings.SaveSummaryResult(meetingID, result); err != nil {
					// 存储失败不阻断推送，客户端仍能拿到本次结果
					p.log.Warn("save summary result failed", "meeting_id", meetingID, "error", err)
					emit(ProgressEvent{Type: EventWarning, Message: "摘要结果保存失败，本次结果仅在线返回"})
				}
			}
			p.log.Info("summary poll completed", "task_id", taskID, "polls", poll+1)
			metrics.RecordSummaryPoll("complete", time.Since(start).Seconds())
			emit(ProgressEvent{Type: EventComplete, Message: "摘要生成完成", Data: result, MP3URL: result.MP3URL})
			return nil

		case tingwu.StatusFailed, tingwu.StatusInvalid:
			msg := info.ErrorMessage
			if msg == "" {
				msg = info.TaskStatus
			}
			p.log.Error("summary task failed upstream", "task_id", taskID, "status", info.TaskStatus, "error_code", info.ErrorCode)
			metrics.RecordSummaryPoll("error", time.Since(start).Seconds())
			emit(ProgressEvent{Type: EventError, Message: "摘要任务失败: " + msg})
			return fmt.Errorf("summary task %s: status=%s message=%s", taskID, info.TaskStatus, msg)

		case tingwu.StatusPaused:
			pauseWaits++
			if pauseWaits > p.maxPauseWaits {
				p.log.Error("summary task stuck in paused state", "task_id", taskID, "pause_waits", pauseWaits)
				metrics.RecordSummaryPoll("error", time.Since(start).Seconds())
				emit(ProgressEvent{Type: EventError, Message: "摘要任务已暂停且长时间未恢复"})
				return fmt.Errorf("summary task %s: paused beyond %d polls", taskID, p.maxPauseWaits)
			}
			emit(ProgressEvent{Type: EventStatus, Status: info.TaskStatus, Message: "任务已暂停，等待恢复"})

		case tingwu.StatusOngoing:
			pauseWaits = 0
			emit(ProgressEvent{Type: EventStatus, Status: info.TaskStatus, Message: "摘要生成中"})

		default:
			p.log.Error("summary task in unexpected status", "task_id", taskID, "status", info.TaskStatus)
			metrics.RecordSummaryPoll("error", time.Since(start).Seconds())
			emit(ProgressEvent{Type: EventError, Message: "任务状态异常: " + info.TaskStatus})
			return fmt.Errorf("summary task %s: unexpected status %q", taskID, info.TaskStatus)
		}

		select {
		case <-ctx.Done():
			metrics.RecordSummaryPoll("error", time.Since(start).Seconds())
			return ctx.Err()
		case <-time.After(p.tick):
		}
	}

	p.log.Error("summary poll budget exhausted", "task_id", taskID, "max_polls", p.maxPolls)
	metrics.RecordSummaryPoll("timeout", time.Since(start).Seconds())
	emit(ProgressEvent{Type: EventError, Message: "摘要生成超时，请稍后重试"})
	return fmt.Errorf("summary task %s: poll budget of %d exhausted", taskID, p.maxPolls)
}

// collectResult 汇总完成态任务的摘要内容
// 结果可能内联在任务信息里，也可能以工件 URL 形式给出，需要按需下载。
// 单个工件下载失败降级为 warning 事件，不阻断整体完成
func (p *Poller) collectResult(ctx context.Context, info *tingwu.TaskInfo, emit EmitFunc) *store.SummaryResult {
	summarization := info.Summarization
	assistance := info.MeetingAssistance
	mp3URL := info.OutputMp3Path

	if len(summarization) == 0 {
		if url := info.Result[tingwu.ArtifactSummarization]; url != "" {
			raw, err := p.api.DownloadArtifact(ctx, url)
			if err != nil {
				p.log.Warn("download summarization failed", "task_id", info.TaskID, "error", err)
				emit(ProgressEvent{Type: EventWarning, Message: "摘要内容下载失败，结果可能不完整"})
			} else {
				summarization = raw
			}
		}
	}
	if len(assistance) == 0 {
		if url := info.Result[tingwu.ArtifactMeetingAssistance]; url != "" {
			raw, err := p.api.DownloadArtifact(ctx, url)
			if err != nil {
				p.log.Warn("download meeting assistance failed", "task_id", info.TaskID, "error", err)
				emit(ProgressEvent{Type: EventWarning, Message: "要点提炼下载失败，结果可能不完整"})
			} else {
				assistance = raw
			}
		}
	}
	if mp3URL == "" {
		mp3URL = info.Result[tingwu.ArtifactOutputMp3Path]
	}

	return parseSummaryResult(summarization, assistance, mp3URL)
}

// summarizationPayload 摘要工件的内容结构
type summarizationPayload struct {
	Summarization *summarizationPayload `json:"Summarization,omitempty"`

	ParagraphTitle            string          `json:"ParagraphTitle"`
	ParagraphSummary          string          `json:"ParagraphSummary"`
	ConversationalSummary     json.RawMessage `json:"ConversationalSummary,omitempty"`
	QuestionsAnsweringSummary json.RawMessage `json:"QuestionsAnsweringSummary,omitempty"`
	MindMapSummary            json.RawMessage `json:"MindMapSummary,omitempty"`
}

// assistancePayload 要点提炼工件的内容结构
type assistancePayload struct {
	MeetingAssistance *assistancePayload `json:"MeetingAssistance,omitempty"`

	Keywords     []string        `json:"Keywords,omitempty"`
	KeySentences json.RawMessage `json:"KeySentences,omitempty"`
	Actions      json.RawMessage `json:"Actions,omitempty"`
}

// parseSummaryResult 将上游原始结果整理为存储模型
// 工件内容可能在顶层，也可能再包一层同名字段，两种形态都接受
func parseSummaryResult(summarization, assistance json.RawMessage, mp3URL string) *store.SummaryResult {
	result := &store.SummaryResult{MP3URL: mp3URL}

	if len(summarization) > 0 {
		var payload summarizationPayload
		if err := json.Unmarshal(summarization, &payload); err == nil {
			if payload.Summarization != nil {
				payload = *payload.Summarization
			}
			result.ParagraphTitle = payload.ParagraphTitle
			result.ParagraphSummary = payload.ParagraphSummary
			result.ConversationalSummary = payload.ConversationalSummary
			result.QuestionsAnsweringSummary = payload.QuestionsAnsweringSummary
			result.MindMapSummary = payload.MindMapSummary
		}
	}
	if len(assistance) > 0 {
		var payload assistancePayload
		if err := json.Unmarshal(assistance, &payload); err == nil {
			if payload.MeetingAssistance != nil {
				payload = *payload.MeetingAssistance
			}
			result.Keywords = payload.Keywords
			result.KeySentences = payload.KeySentences
			result.Actions = payload.Actions
		}
	}
	return result
}
