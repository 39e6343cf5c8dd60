package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shanlih/lectprep/cmd/server/internal/metrics"
	"github.com/shanlih/lectprep/cmd/server/internal/relay"
	"github.com/shanlih/lectprep/cmd/server/internal/store"
)

// 每个客户端的待发送队列长度；写入过慢的客户端会丢消息
const sendQueueSize = 64

// wsConn 网关对底层连接的最小依赖，*websocket.Conn 满足该接口
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client 一条客户端 WebSocket 连接
// 读循环在 serveConn 的 goroutine 中运行；所有写出统一走 send 队列，
// 由专属 writeLoop goroutine 串行写入，保证事件顺序
type Client struct {
	hub  *Hub
	conn wsConn
	send chan []byte

	// joined 本连接加入过的房间，断开时用于清理
	joined map[string]struct{}

	mu     sync.Mutex
	closed bool
}

func newClient(h *Hub, conn wsConn) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		joined: make(map[string]struct{}),
	}
}

func (c *Client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) writeLoop() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.hub.log.Debug("client write failed", "error", err)
			_ = c.conn.Close()
			return
		}
	}
	_ = c.conn.Close()
}

// trySend 非阻塞投递；连接已关闭或队列已满时返回 false
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdown 关闭发送队列，终止 writeLoop
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) reply(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Error("marshal reply failed", "error", err)
		return
	}
	if !c.trySend(payload) {
		metrics.RecordBroadcastError()
	}
}

func (c *Client) replyError(meetingID, message string) {
	c.reply(errorMessage{Type: typeError, MeetingID: meetingID, Message: message})
}

func (c *Client) dispatch(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.replyError("", "消息格式错误")
		return
	}
	if msg.MeetingID == "" {
		c.replyError("", "缺少 meeting_id")
		return
	}

	switch msg.Action {
	case actionJoin:
		c.handleJoin(msg)
	case actionLeave:
		c.handleLeave(msg)
	case actionStartRecognition:
		c.handleStartRecognition(msg)
	case actionAudioData:
		c.handleAudioData(msg)
	case actionStopRecognition:
		c.handleStopRecognition(msg)
	default:
		c.replyError(msg.MeetingID, "未知操作: "+msg.Action)
	}
}

func (c *Client) handleJoin(msg clientMessage) {
	_, err := c.hub.meetings.FindMeeting(msg.MeetingID)
	if err != nil {
		if !errors.Is(err, store.ErrMeetingNotFound) {
			c.hub.log.Error("find meeting failed", "meeting_id", msg.MeetingID, "error", err)
			c.replyError(msg.MeetingID, "查询会议失败")
			return
		}
		if !c.hub.allowDemo {
			c.replyError(msg.MeetingID, "会议不存在")
			return
		}
		c.hub.log.Info("demo session joined without meeting record", "meeting_id", msg.MeetingID)
	}

	c.hub.joinRoom(msg.MeetingID, c)
	c.joined[msg.MeetingID] = struct{}{}
	c.reply(ackMessage{Type: typeJoined, MeetingID: msg.MeetingID})
}

func (c *Client) handleLeave(msg clientMessage) {
	c.hub.leaveRoom(msg.MeetingID, c)
	delete(c.joined, msg.MeetingID)
	c.reply(ackMessage{Type: typeLeft, MeetingID: msg.MeetingID})
}

func (c *Client) handleStartRecognition(msg clientMessage) {
	target, demo, err := c.resolveTarget(msg)
	if err != nil {
		c.replyError(msg.MeetingID, err.Error())
		return
	}

	_, err = c.hub.registry.GetOrCreate(
		msg.MeetingID,
		target,
		c.hub.transcriptHandler(msg.MeetingID, demo),
		c.hub.linkErrorHandler(msg.MeetingID),
	)
	if err != nil {
		c.hub.log.Error("open transcription link failed", "meeting_id", msg.MeetingID, "error", err)
		switch {
		case errors.Is(err, relay.ErrMisconfiguredUpstream):
			c.replyError(msg.MeetingID, "推流地址无效，无法开始识别")
		case errors.Is(err, relay.ErrConnection):
			c.replyError(msg.MeetingID, "连接转写服务失败，请稍后重试")
		default:
			c.replyError(msg.MeetingID, "开始识别失败")
		}
		return
	}

	if c.hub.audit != nil {
		c.hub.audit.LogSessionEvent(msg.MeetingID, msg.MeetingID, "recognition_started", "")
	}
	c.reply(ackMessage{Type: typeRecognitionStarted, MeetingID: msg.MeetingID})
}

// resolveTarget 确定转写服务推流地址
// 有会议记录时取记录中的地址，记录缺地址时退回客户端提供的地址；
// 无会议记录仅在 Demo 模式下放行
func (c *Client) resolveTarget(msg clientMessage) (target string, demo bool, err error) {
	meeting, findErr := c.hub.meetings.FindMeeting(msg.MeetingID)
	switch {
	case findErr == nil:
		target = meeting.StreamURL
		if target == "" {
			target = msg.StreamURL
		}
		if target == "" {
			return "", false, errors.New("会议未关联推流地址，请先创建转写任务")
		}
		return target, false, nil
	case errors.Is(findErr, store.ErrMeetingNotFound) && c.hub.allowDemo:
		if msg.StreamURL == "" {
			return "", false, errors.New("缺少 stream_url")
		}
		return msg.StreamURL, true, nil
	case errors.Is(findErr, store.ErrMeetingNotFound):
		return "", false, errors.New("会议不存在")
	default:
		c.hub.log.Error("find meeting failed", "meeting_id", msg.MeetingID, "error", findErr)
		return "", false, errors.New("查询会议失败")
	}
}

func (c *Client) handleAudioData(msg clientMessage) {
	audio, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		c.hub.log.Debug("audio frame base64 decode failed", "meeting_id", msg.MeetingID, "error", err)
		metrics.RecordAudioFrame("error")
		return
	}

	link := c.hub.registry.Get(msg.MeetingID)
	if link == nil {
		// 识别尚未开始或刚停止，静默丢弃
		metrics.RecordAudioFrame("dropped")
		return
	}
	if err := link.SendAudio(audio); err != nil {
		c.hub.log.Debug("forward audio frame failed", "meeting_id", msg.MeetingID, "error", err)
		metrics.RecordAudioFrame("error")
		return
	}
	metrics.RecordAudioFrame("forwarded")
}

func (c *Client) handleStopRecognition(msg clientMessage) {
	link := c.hub.registry.Get(msg.MeetingID)
	if link != nil && link.Connected() {
		if err := link.SendStop(); err != nil {
			c.hub.log.Warn("send stop control failed", "meeting_id", msg.MeetingID, "error", err)
		}
		// 给上游留出回送最后一段定稿结果的时间
		if c.hub.stopFlushWait > 0 {
			time.Sleep(c.hub.stopFlushWait)
		}
	}
	c.hub.registry.Close(msg.MeetingID)

	if c.hub.audit != nil {
		c.hub.audit.LogSessionEvent(msg.MeetingID, msg.MeetingID, "recognition_stopped", "")
	}
	c.reply(ackMessage{Type: typeRecognitionStopped, MeetingID: msg.MeetingID})
}
