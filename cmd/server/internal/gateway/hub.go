package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shanlih/lectprep/cmd/server/internal/audit"
	"github.com/shanlih/lectprep/cmd/server/internal/config"
	"github.com/shanlih/lectprep/cmd/server/internal/metrics"
	"github.com/shanlih/lectprep/cmd/server/internal/relay"
	"github.com/shanlih/lectprep/cmd/server/internal/store"
)

// 停止识别后等待上游回送尾部结果的时间
const defaultStopFlushWait = 100 * time.Millisecond

// Hub 客户端事件网关
// 管理 WebSocket 客户端与会议房间的成员关系，
// 将客户端动作分发到转写中继，并把转写事件广播回房间
type Hub struct {
	registry  *relay.Registry
	meetings  store.MeetingStore
	audit     *audit.TranscriptLogger
	allowDemo bool
	log       *slog.Logger
	upgrader  websocket.Upgrader

	// stopFlushWait 测试中可置零
	stopFlushWait time.Duration

	mu    sync.Mutex
	rooms map[string]map[*Client]struct{}
}

// NewHub 创建网关
// auditLog 可以为 nil，此时不写审计日志
func NewHub(registry *relay.Registry, meetings store.MeetingStore, auditLog *audit.TranscriptLogger, relayCfg config.RelayConfig, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		registry:      registry,
		meetings:      meetings,
		audit:         auditLog,
		allowDemo:     relayCfg.AllowDemoSessions,
		log:           log,
		upgrader:      newUpgrader(relayCfg.CORSAllowedOrigins),
		stopFlushWait: defaultStopFlushWait,
		rooms:         make(map[string]map[*Client]struct{}),
	}
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
}

// ServeHTTP 升级 WebSocket 连接并托管其生命周期
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.serveConn(conn)
}

// serveConn 在调用方 goroutine 中运行读循环直到连接关闭
func (h *Hub) serveConn(conn wsConn) {
	c := newClient(h, conn)
	go c.writeLoop()
	c.readLoop()
	h.removeClient(c)
}

// joinRoom 将客户端加入会议房间
func (h *Hub) joinRoom(meetingID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[meetingID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[meetingID] = room
	}
	room[c] = struct{}{}
}

// leaveRoom 将客户端移出会议房间；空房间随之删除
// 离开不会停止转写会话，同一会话可能还有其他观看端
func (h *Hub) leaveRoom(meetingID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(meetingID, c)
}

func (h *Hub) leaveRoomLocked(meetingID string, c *Client) {
	room, ok := h.rooms[meetingID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, meetingID)
	}
}

// removeClient 连接断开后的清理：退出全部房间并关闭发送通道
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	for meetingID := range c.joined {
		h.leaveRoomLocked(meetingID, c)
	}
	h.mu.Unlock()
	c.shutdown()
}

// RoomSize 返回房间当前成员数
func (h *Hub) RoomSize(meetingID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[meetingID])
}

// broadcast 向房间内所有客户端投递一条消息
// 单个客户端投递失败只记录，不影响其余客户端
func (h *Hub) broadcast(meetingID string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal broadcast message failed", "meeting_id", meetingID, "error", err)
		return
	}

	h.mu.Lock()
	recipients := make([]*Client, 0, len(h.rooms[meetingID]))
	for c := range h.rooms[meetingID] {
		recipients = append(recipients, c)
	}
	h.mu.Unlock()

	for _, c := range recipients {
		if !c.trySend(payload) {
			metrics.RecordBroadcastError()
			h.log.Warn("broadcast to client failed, dropping message", "meeting_id", meetingID)
		}
	}
}

// transcriptHandler 构造某个会话的转写事件回调
// demo 会话没有后端会议记录，跳过存储写入
func (h *Hub) transcriptHandler(meetingID string, demo bool) relay.EventHandler {
	return func(ev relay.TranscriptEvent) {
		metrics.RecordTranscriptEvent(ev.IsFinal)

		if ev.IsFinal && ev.Text != "" {
			if !demo {
				if err := h.meetings.AppendTranscript(meetingID, ev.Text); err != nil {
					h.log.Warn("append transcript failed", "meeting_id", meetingID, "error", err)
				}
			}
			if h.audit != nil {
				h.audit.LogTranscript(meetingID, ev.SessionID, ev.Text, ev.TimestampMillis)
			}
		}

		h.broadcast(meetingID, transcriptUpdate{
			Type:      typeTranscriptUpdate,
			MeetingID: meetingID,
			Text:      ev.Text,
			IsFinal:   ev.IsFinal,
			Timestamp: ev.TimestampMillis,
		})
	}
}

// linkErrorHandler 构造某个会话的链路异常回调
func (h *Hub) linkErrorHandler(meetingID string) relay.ErrorHandler {
	return func(sessionID string, err error) {
		h.log.Error("transcription link error", "meeting_id", meetingID, "session_id", sessionID, "error", err)
		if h.audit != nil {
			h.audit.LogSessionEvent(meetingID, sessionID, "link_error", err.Error())
		}
		h.broadcast(meetingID, errorMessage{
			Type:      typeError,
			MeetingID: meetingID,
			Message:   "转写连接异常，请重新开始识别",
		})
	}
}
