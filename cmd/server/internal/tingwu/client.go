package tingwu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"

	"github.com/shanlih/lectprep/cmd/server/internal/config"
)

// Client 通义听悟 OpenAPI 客户端
// 凭证缺失时进入 Demo 模式：各操作返回占位结果而非真实调用
type Client struct {
	cfg  config.TingwuConfig
	acs  *sdk.Client
	http *http.Client
	log  *slog.Logger
}

var (
	// ErrNotConfigured 凭证缺失且调用方未容忍 Demo 模式
	ErrNotConfigured = errors.New("tingwu credentials not configured")
	// ErrUpstream 上游返回非成功 Code
	ErrUpstream = errors.New("tingwu api error")
)

const artifactDownloadTimeout = 30 * time.Second

// NewClient 创建客户端；凭证不完整时返回 Demo 模式客户端而非错误
func NewClient(cfg config.TingwuConfig, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: artifactDownloadTimeout},
		log:  log,
	}
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.AppKey == "" {
		log.Warn("tingwu credentials missing, running in demo mode")
		return c, nil
	}
	acs, err := sdk.NewClientWithAccessKey(cfg.Region, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("create acs client: %w", err)
	}
	c.acs = acs
	return c, nil
}

// IsConfigured 返回是否具备真实调用凭证
func (c *Client) IsConfigured() bool {
	return c.acs != nil
}

// CreateRealtimeTask 创建实时转写任务，返回任务 ID 和推流地址
func (c *Client) CreateRealtimeTask(ctx context.Context, opts RealtimeTaskOptions) (*TaskCreation, error) {
	applyDefaults(&opts)

	if !c.IsConfigured() {
		c.log.Info("demo mode: returning mock realtime task", "task_key", opts.TaskKey)
		return &TaskCreation{
			TaskID:         "mock_task_" + opts.TaskKey,
			MeetingJoinURL: "wss://mock-meeting-url/" + opts.TaskKey,
			TaskStatus:     StatusOngoing,
		}, nil
	}

	body := buildCreateTaskBody(c.cfg.AppKey, opts)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal create task body: %w", err)
	}

	req := c.commonRequest(http.MethodPut, "/openapi/tingwu/v2/tasks")
	req.QueryParams["type"] = "realtime"
	req.SetContent(payload)

	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var created TaskCreation
	if err := json.Unmarshal(env.Data, &created); err != nil {
		return nil, fmt.Errorf("decode create task response: %w", err)
	}
	c.log.Info("realtime task created", "task_id", created.TaskID)
	return &created, nil
}

// StopTask 停止实时转写任务，触发后处理（摘要、要点等）
func (c *Client) StopTask(ctx context.Context, taskID string) (*TaskInfo, error) {
	if !c.IsConfigured() || strings.HasPrefix(taskID, "mock_task_") {
		c.log.Info("demo mode: returning mock stop result", "task_id", taskID)
		return &TaskInfo{TaskID: taskID, TaskStatus: StatusCompleted}, nil
	}

	body := map[string]any{
		"AppKey": c.cfg.AppKey,
		"Input":  map[string]any{"TaskId": taskID},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal stop task body: %w", err)
	}

	req := c.commonRequest(http.MethodPut, "/openapi/tingwu/v2/tasks")
	req.QueryParams["type"] = "realtime"
	req.QueryParams["operation"] = "stop"
	req.SetContent(payload)

	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var info TaskInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return nil, fmt.Errorf("decode stop task response: %w", err)
	}
	return &info, nil
}

// GetTaskInfo 查询任务状态
// COMPLETED 时 Result 含各工件的下载地址，由调用方按需下载
func (c *Client) GetTaskInfo(ctx context.Context, taskID string) (*TaskInfo, error) {
	if !c.IsConfigured() || strings.HasPrefix(taskID, "mock_task_") {
		return mockTaskInfo(taskID), nil
	}

	req := c.commonRequest(http.MethodGet, "/openapi/tingwu/v2/tasks/"+taskID)
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var info TaskInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return nil, fmt.Errorf("decode task info response: %w", err)
	}
	return &info, nil
}

// DownloadArtifact 下载 Result 中某个工件地址指向的 JSON 内容
func (c *Client) DownloadArtifact(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build artifact request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: artifact download status %d", ErrUpstream, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact body: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: artifact body is not valid json", ErrUpstream)
	}
	return json.RawMessage(data), nil
}

func (c *Client) commonRequest(method, pathPattern string) *requests.CommonRequest {
	req := requests.NewCommonRequest()
	req.Method = method
	req.Scheme = "https"
	req.Domain = c.cfg.APIEndpoint
	req.Version = c.cfg.APIVersion
	req.PathPattern = pathPattern
	req.SetContentType("application/json")
	return req
}

func (c *Client) do(ctx context.Context, req *requests.CommonRequest) (*apiEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.acs.ProcessCommonRequest(req)
	if err != nil {
		return nil, fmt.Errorf("tingwu request %s %s: %w", req.Method, req.PathPattern, err)
	}
	var env apiEnvelope
	if err := json.Unmarshal(resp.GetHttpContentBytes(), &env); err != nil {
		return nil, fmt.Errorf("decode tingwu response: %w", err)
	}
	if env.Code != "0" {
		return nil, fmt.Errorf("%w: code=%s message=%s", ErrUpstream, env.Code, env.Message)
	}
	return &env, nil
}

func applyDefaults(opts *RealtimeTaskOptions) {
	if opts.Format == "" {
		opts.Format = "pcm"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = "cn"
	}
	if opts.TaskKey == "" {
		opts.TaskKey = fmt.Sprintf("task_%d", time.Now().Unix())
	}
	if opts.EnableTranslation && len(opts.TranslationTargetLanguages) == 0 {
		opts.TranslationTargetLanguages = []string{"en"}
	}
	if opts.EnableSummarization && len(opts.SummarizationTypes) == 0 {
		opts.SummarizationTypes = []string{"Paragraph", "Conversational", "QuestionsAnswering", "MindMap"}
	}
	if opts.EnableMeetingAssistance && len(opts.MeetingAssistanceTypes) == 0 {
		opts.MeetingAssistanceTypes = []string{"Actions", "KeyInformation"}
	}
	// 说话人分离仅支持 0（不限）或 2
	if opts.SpeakerCount != 0 && opts.SpeakerCount != 2 {
		opts.SpeakerCount = 0
	}
}

func buildCreateTaskBody(appKey string, opts RealtimeTaskOptions) map[string]any {
	input := map[string]any{
		"Format":         opts.Format,
		"SampleRate":     opts.SampleRate,
		"SourceLanguage": opts.SourceLanguage,
		"TaskKey":        opts.TaskKey,
	}
	if opts.EnableProgressiveCallbacks {
		input["ProgressiveCallbacksEnabled"] = true
	}

	transcription := map[string]any{}
	if opts.EnableDiarization != nil {
		transcription["DiarizationEnabled"] = *opts.EnableDiarization
		if *opts.EnableDiarization {
			transcription["Diarization"] = map[string]any{"SpeakerCount": opts.SpeakerCount}
		}
	}

	params := map[string]any{}
	if len(transcription) > 0 {
		params["Transcription"] = transcription
	}
	if opts.EnableTranslation {
		params["TranslationEnabled"] = true
		params["Translation"] = map[string]any{"OutputLanguages": opts.TranslationTargetLanguages}
	}
	if opts.EnableSummarization {
		params["SummarizationEnabled"] = true
		params["Summarization"] = map[string]any{"Types": opts.SummarizationTypes}
	}
	if opts.EnableMeetingAssistance {
		params["MeetingAssistanceEnabled"] = true
		params["MeetingAssistance"] = map[string]any{"Types": opts.MeetingAssistanceTypes}
	}
	if opts.EnableTextPolish != nil {
		params["TextPolishEnabled"] = *opts.EnableTextPolish
	}

	body := map[string]any{
		"AppKey": appKey,
		"Input":  input,
	}
	if len(params) > 0 {
		body["Parameters"] = params
	}
	return body
}

// mockTaskInfo Demo 模式下直接给出完成态与内置示例结果，便于前端联调
func mockTaskInfo(taskID string) *TaskInfo {
	summarization, _ := json.Marshal(map[string]any{
		"ParagraphTitle":   "示例会议摘要",
		"ParagraphSummary": "这是 Demo 模式生成的占位摘要，配置真实凭证后将返回实际内容。",
	})
	assistance, _ := json.Marshal(map[string]any{
		"Keywords": []string{"演示", "占位"},
	})
	return &TaskInfo{
		TaskID:            taskID,
		TaskStatus:        StatusCompleted,
		Summarization:     summarization,
		MeetingAssistance: assistance,
	}
}
