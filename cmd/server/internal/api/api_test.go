package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/shanlih/lectprep/cmd/server/internal/config"
	"github.com/shanlih/lectprep/cmd/server/internal/store"
	"github.com/shanlih/lectprep/cmd/server/internal/summary"
	"github.com/shanlih/lectprep/cmd/server/internal/tingwu"
	"github.com/shanlih/lectprep/pkg/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if _, err := logger.Init(logger.Config{Level: "error", Environment: "test"}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testServer struct {
	router   *gin.Engine
	meetings store.MeetingStore
	sem      *semaphore.Weighted
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	meetings, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	tw, err := tingwu.NewClient(config.TingwuConfig{}, nil)
	require.NoError(t, err)

	poller := summary.NewPoller(tw, meetings, summary.PollerOptions{Tick: time.Millisecond})
	sem := semaphore.NewWeighted(2)

	r := gin.New()
	r.GET("/api/health", HandleHealth())
	r.POST("/api/v1/meetings", HandleCreateMeeting(meetings))
	r.GET("/api/v1/meetings/:id", HandleGetMeeting(meetings))
	r.PUT("/api/v1/meetings/:id/task", HandleSetMeetingTask(meetings))
	r.POST("/api/v1/tingwu/create-task", HandleCreateRealtimeTask(tw, meetings))
	r.POST("/api/v1/tingwu/stop-task", HandleStopTask(tw))
	r.GET("/api/v1/tingwu/task-info/:task_id", HandleGetTaskInfo(tw))
	r.GET("/api/v1/meetings/:id/summary/stream", HandleSummaryStream(poller, meetings, sem))

	return &testServer{router: r, meetings: meetings, sem: sem}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestMeetingLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/meetings", gin.H{"title": "线性代数备课", "subject": "数学"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	id := data["id"].(string)
	require.NotEmpty(t, id)

	w = s.do(t, http.MethodGet, "/api/v1/meetings/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "线性代数备课", decodeData(t, w)["title"])

	w = s.do(t, http.MethodPut, "/api/v1/meetings/"+id+"/task", gin.H{
		"task_id":    "task-1",
		"stream_url": "wss://tingwu.example.com/stream/1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	assert.Equal(t, "task-1", data["task_id"])
	assert.Equal(t, "wss://tingwu.example.com/stream/1", data["stream_url"])
}

func TestCreateMeetingRequiresTitle(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/meetings", gin.H{"subject": "物理"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUnknownMeetingReturns404(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/meetings/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "会议不存在")
}

func TestSetTaskOnUnknownMeetingReturns404(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPut, "/api/v1/meetings/ghost/task", gin.H{"task_id": "t1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTaskInDemoMode(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/tingwu/create-task", gin.H{"task_key": "k1"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "mock_task_k1", data["task_id"])
	assert.Equal(t, "wss://mock-meeting-url/k1", data["meeting_join_url"])
}

func TestCreateTaskWritesThroughToMeeting(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/meetings", gin.H{"title": "早会"})
	id := decodeData(t, w)["id"].(string)

	w = s.do(t, http.MethodPost, "/api/v1/tingwu/create-task", gin.H{"meeting_id": id, "task_key": "k2"})
	require.Equal(t, http.StatusOK, w.Code)

	meeting, err := s.meetings.FindMeeting(id)
	require.NoError(t, err)
	assert.Equal(t, "mock_task_k2", meeting.TaskID)
	assert.Equal(t, "wss://mock-meeting-url/k2", meeting.StreamURL)
}

func TestCreateTaskUnknownMeetingReturns404(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/tingwu/create-task", gin.H{"meeting_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStopTaskRequiresTaskID(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/tingwu/stop-task", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskInfoInDemoMode(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/tingwu/task-info/mock_task_k1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tingwu.StatusCompleted, decodeData(t, w)["TaskStatus"])
}

func createMeetingWithTask(t *testing.T, s *testServer) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/meetings", gin.H{"title": "周会"})
	id := decodeData(t, w)["id"].(string)
	w = s.do(t, http.MethodPut, "/api/v1/meetings/"+id+"/task", gin.H{"task_id": "mock_task_x"})
	require.Equal(t, http.StatusOK, w.Code)
	return id
}

func TestSummaryStreamEndsWithDone(t *testing.T) {
	s := newTestServer(t)
	id := createMeetingWithTask(t, s)

	w := s.do(t, http.MethodGet, "/api/v1/meetings/"+id+"/summary/stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	lines := strings.Split(strings.TrimSpace(body), "\n\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], `"start"`)
	assert.Contains(t, lines[len(lines)-2], `"complete"`)
	assert.Equal(t, "data: [DONE]", lines[len(lines)-1])

	// 完成后摘要结果已落盘
	meeting, err := s.meetings.FindMeeting(id)
	require.NoError(t, err)
	require.NotNil(t, meeting.Summary)
}

func TestSummaryStreamUnknownMeetingReturns404(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/meetings/ghost/summary/stream", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummaryStreamWithoutTaskReturns400(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/meetings", gin.H{"title": "无任务会议"})
	id := decodeData(t, w)["id"].(string)

	w = s.do(t, http.MethodGet, "/api/v1/meetings/"+id+"/summary/stream", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummaryStreamSaturatedReturns503(t *testing.T) {
	s := newTestServer(t)
	id := createMeetingWithTask(t, s)

	// 占满全部并发额度
	require.True(t, s.sem.TryAcquire(2))
	defer s.sem.Release(2)

	w := s.do(t, http.MethodGet, "/api/v1/meetings/"+id+"/summary/stream", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
