package relay

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUpstreamMessage(t *testing.T) {
	log := slog.Default()

	tests := []struct {
		name    string
		raw     string
		want    *TranscriptEvent
		dropped bool
	}{
		{
			name: "interim result",
			raw:  `{"header":{"name":"TranscriptionResultChanged"},"payload":{"result":"今天讲","time":1500}}`,
			want: &TranscriptEvent{SessionID: "m1", Text: "今天讲", IsFinal: false, TimestampMillis: 1500},
		},
		{
			name: "final result trims whitespace",
			raw:  `{"header":{"name":"SentenceEnd"},"payload":{"result":"  今天讲函数。 ","time":3000}}`,
			want: &TranscriptEvent{SessionID: "m1", Text: "今天讲函数。", IsFinal: true, TimestampMillis: 3000},
		},
		{
			name: "final result ignores stash field",
			raw:  `{"header":{"name":"SentenceEnd"},"payload":{"result":"定稿","stash_result":{"text":"草稿"},"time":1}}`,
			want: &TranscriptEvent{SessionID: "m1", Text: "定稿", IsFinal: true, TimestampMillis: 1},
		},
		{
			name:    "sentence begin not surfaced",
			raw:     `{"header":{"name":"SentenceBegin"},"payload":{"index":3}}`,
			dropped: true,
		},
		{
			name:    "translated result not surfaced",
			raw:     `{"header":{"name":"ResultTranslated"},"payload":{"translate_result":{"text":"hello"}}}`,
			dropped: true,
		},
		{
			name:    "error envelope",
			raw:     `{"ErrorCode":"41010105","ErrorMessage":"too long silence"}`,
			dropped: true,
		},
		{
			name:    "unknown event",
			raw:     `{"header":{"name":"SomethingNew"},"payload":{}}`,
			dropped: true,
		},
		{
			name:    "malformed json",
			raw:     `{"header":{`,
			dropped: true,
		},
		{
			name:    "non-json",
			raw:     `pong`,
			dropped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parseUpstreamMessage("m1", []byte(tt.raw), log)
			if tt.dropped {
				assert.False(t, ok)
				assert.Nil(t, ev)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestParseUpstreamMessageDefaultsTimestamp(t *testing.T) {
	raw := `{"header":{"name":"SentenceEnd"},"payload":{"result":"无时间戳"}}`
	ev, ok := parseUpstreamMessage("m1", []byte(raw), slog.Default())
	require.True(t, ok)
	// 上游未带时间时回退为当前时间
	assert.Greater(t, ev.TimestampMillis, int64(0))
}

func TestEncodeControlFrame(t *testing.T) {
	data, err := encodeControlFrame(controlStop, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"header":{"name":"StopTranscription","namespace":"SpeechTranscriber"},"payload":{}}`, string(data))
}
