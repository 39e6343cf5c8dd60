package gateway

// 客户端动作
const (
	actionJoin             = "join"
	actionLeave            = "leave"
	actionStartRecognition = "start_recognition"
	actionAudioData        = "audio_data"
	actionStopRecognition  = "stop_recognition"
)

// 服务端事件类型
const (
	typeJoined             = "joined"
	typeLeft               = "left"
	typeRecognitionStarted = "recognition_started"
	typeRecognitionStopped = "recognition_stopped"
	typeTranscriptUpdate   = "transcript_update"
	typeError              = "error"
)

// clientMessage 客户端发来的统一消息结构
type clientMessage struct {
	Action    string `json:"action"`
	MeetingID string `json:"meeting_id"`
	StreamURL string `json:"stream_url,omitempty"`
	AudioData string `json:"audio_data,omitempty"`
	Format    string `json:"format,omitempty"`
}

// ackMessage 操作确认
type ackMessage struct {
	Type      string `json:"type"`
	MeetingID string `json:"meeting_id"`
}

// errorMessage 错误通知
type errorMessage struct {
	Type      string `json:"type"`
	MeetingID string `json:"meeting_id,omitempty"`
	Message   string `json:"message"`
}

// transcriptUpdate 广播到会议房间的转写更新
type transcriptUpdate struct {
	Type      string `json:"type"`
	MeetingID string `json:"meeting_id"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
	Timestamp int64  `json:"timestamp"`
}
