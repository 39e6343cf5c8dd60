package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions 当前活跃转写会话数量
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lectprep_relay_active_sessions",
			Help: "Number of live transcription links in the session registry",
		},
	)

	// AudioFramesTotal 转发音频帧总数计数器
	// Labels: status (forwarded/dropped/error)
	AudioFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lectprep_relay_audio_frames_total",
			Help: "Total number of client audio frames handled by the relay",
		},
		[]string{"status"},
	)

	// TranscriptEventsTotal 转写事件总数计数器
	// Labels: kind (interim/final)
	TranscriptEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lectprep_relay_transcript_events_total",
			Help: "Total number of normalized transcript events broadcast to clients",
		},
		[]string{"kind"},
	)

	// BroadcastErrorsTotal 广播失败总数计数器（按单个接收方计）
	BroadcastErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lectprep_relay_broadcast_errors_total",
			Help: "Total number of per-recipient broadcast delivery failures",
		},
	)

	// SummaryPollDuration 摘要任务轮询总耗时直方图（秒）
	// Labels: outcome (complete/error/timeout)
	// Buckets: 1s 到 300s，覆盖最大轮询预算
	SummaryPollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lectprep_summary_poll_duration_seconds",
			Help:    "End-to-end duration of summarization job poll loops in seconds",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)
)

// SetActiveSessions 设置活跃会话数
func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}

// RecordAudioFrame 记录一帧音频的处理结果
func RecordAudioFrame(status string) {
	AudioFramesTotal.WithLabelValues(status).Inc()
}

// RecordTranscriptEvent 记录一条转写事件
func RecordTranscriptEvent(isFinal bool) {
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	TranscriptEventsTotal.WithLabelValues(kind).Inc()
}

// RecordBroadcastError 记录一次向单个客户端的广播失败
func RecordBroadcastError() {
	BroadcastErrorsTotal.Inc()
}

// RecordSummaryPoll 记录一次摘要轮询的总耗时
func RecordSummaryPoll(outcome string, seconds float64) {
	SummaryPollDuration.WithLabelValues(outcome).Observe(seconds)
}
