package tingwu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanlih/lectprep/cmd/server/internal/config"
)

func newDemoClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(config.TingwuConfig{}, nil)
	require.NoError(t, err)
	require.False(t, c.IsConfigured())
	return c
}

func TestDemoModeCreateRealtimeTask(t *testing.T) {
	c := newDemoClient(t)

	created, err := c.CreateRealtimeTask(context.Background(), RealtimeTaskOptions{TaskKey: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "mock_task_abc123", created.TaskID)
	assert.Equal(t, "wss://mock-meeting-url/abc123", created.MeetingJoinURL)
	assert.Equal(t, StatusOngoing, created.TaskStatus)
}

func TestDemoModeStopAndQuery(t *testing.T) {
	c := newDemoClient(t)

	stopped, err := c.StopTask(context.Background(), "mock_task_abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stopped.TaskStatus)

	info, err := c.GetTaskInfo(context.Background(), "mock_task_abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, info.TaskStatus)
	assert.NotEmpty(t, info.Summarization)
	assert.NotEmpty(t, info.MeetingAssistance)
}

func TestApplyDefaults(t *testing.T) {
	opts := RealtimeTaskOptions{
		EnableTranslation:       true,
		EnableSummarization:     true,
		EnableMeetingAssistance: true,
		SpeakerCount:            5,
	}
	applyDefaults(&opts)

	assert.Equal(t, "pcm", opts.Format)
	assert.Equal(t, 16000, opts.SampleRate)
	assert.Equal(t, "cn", opts.SourceLanguage)
	assert.NotEmpty(t, opts.TaskKey)
	assert.Equal(t, []string{"en"}, opts.TranslationTargetLanguages)
	assert.Contains(t, opts.SummarizationTypes, "Paragraph")
	assert.Contains(t, opts.MeetingAssistanceTypes, "Actions")
	// 说话人数只允许 0 或 2
	assert.Equal(t, 0, opts.SpeakerCount)
}

func TestBuildCreateTaskBody(t *testing.T) {
	diarization := true
	opts := RealtimeTaskOptions{
		Format:              "pcm",
		SampleRate:          16000,
		SourceLanguage:      "cn",
		TaskKey:             "k1",
		EnableDiarization:   &diarization,
		SpeakerCount:        2,
		EnableSummarization: true,
		SummarizationTypes:  []string{"Paragraph"},
	}
	body := buildCreateTaskBody("app-key", opts)

	assert.Equal(t, "app-key", body["AppKey"])
	input := body["Input"].(map[string]any)
	assert.Equal(t, "k1", input["TaskKey"])
	params := body["Parameters"].(map[string]any)
	assert.Equal(t, true, params["SummarizationEnabled"])
	trans := params["Transcription"].(map[string]any)
	assert.Equal(t, true, trans["DiarizationEnabled"])
	assert.Equal(t, map[string]any{"SpeakerCount": 2}, trans["Diarization"])
	_, hasTranslation := params["TranslationEnabled"]
	assert.False(t, hasTranslation)
}

func TestBuildCreateTaskBodyOmitsEmptyParameters(t *testing.T) {
	body := buildCreateTaskBody("app-key", RealtimeTaskOptions{Format: "pcm", SampleRate: 16000, SourceLanguage: "cn", TaskKey: "k2"})
	_, hasParams := body["Parameters"]
	assert.False(t, hasParams)
}

func TestDownloadArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ParagraphSummary":"内容"}`))
	}))
	defer srv.Close()

	c := newDemoClient(t)
	raw, err := c.DownloadArtifact(context.Background(), srv.URL)
	require.NoError(t, err)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "内容", parsed["ParagraphSummary"])
}

func TestDownloadArtifactRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newDemoClient(t)
	_, err := c.DownloadArtifact(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrUpstream)
}

func TestDownloadArtifactRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := newDemoClient(t)
	_, err := c.DownloadArtifact(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrUpstream)
}
