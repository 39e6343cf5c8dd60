package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State 表示 Link 的协议状态
type State string

const (
	StateConnecting    State = "connecting"
	StateHandshakeSent State = "handshake_sent"
	StateStreaming     State = "streaming"
	StateClosing       State = "closing"
	StateClosed        State = "closed"
)

// 错误分类：调用方通过 errors.Is 判别
var (
	// ErrConnection 上游不可达
	ErrConnection = errors.New("upstream connection failed")
	// ErrMisconfiguredUpstream 目标地址为空或为占位（mock）地址
	ErrMisconfiguredUpstream = errors.New("upstream target is a placeholder or not configured")
	// ErrNotConnected 在 Closing/Closed 状态上执行发送
	ErrNotConnected = errors.New("link is not connected")
	// ErrHandshakeTimeout 握手控制帧未在限定时间内确认
	ErrHandshakeTimeout = errors.New("handshake was not confirmed in time")
)

// EventHandler 接收归一化转写事件，在 Link 的读协程内按到达顺序调用
type EventHandler func(TranscriptEvent)

// ErrorHandler 接收传输层错误，连接已随之关闭
type ErrorHandler func(sessionID string, err error)

// Conn 为 Link 依赖的最小连接接口，*websocket.Conn 满足该接口
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer 建立到上游转写服务的连接，测试中可注入假实现
type Dialer func(target string) (Conn, error)

func defaultDialer(target string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// LinkOptions 控制 Link 的行为，零值采用默认配置
type LinkOptions struct {
	Dialer           Dialer
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

func (o *LinkOptions) fill() {
	if o.Dialer == nil {
		o.Dialer = defaultDialer
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Link 管理与上游流式转写服务的单个连接
// 读循环运行在独立协程上，写操作由互斥锁保护
type Link struct {
	sessionID string
	target    string
	onEvent   EventHandler
	onError   ErrorHandler
	logger    *slog.Logger

	handshakeTimeout time.Duration

	mu            sync.Mutex
	conn          Conn
	state         State
	handshakeSent bool
	ready         chan struct{} // 握手控制帧发送成功后关闭
	createdAt     time.Time
}

// isPlaceholderTarget 识别明显未配置的上游地址，避免对占位地址发起真实连接
func isPlaceholderTarget(target string) bool {
	if target == "" {
		return true
	}
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "wss://mock-") || strings.Contains(lower, "mock")
}

// Open 建立到上游的连接并发送 StartTranscription 控制帧
// 占位地址返回 ErrMisconfiguredUpstream，拨号失败返回 ErrConnection
func Open(sessionID, target string, onEvent EventHandler, onError ErrorHandler, opts *LinkOptions) (*Link, error) {
	if opts == nil {
		opts = &LinkOptions{}
	}
	opts.fill()

	if isPlaceholderTarget(target) {
		return nil, fmt.Errorf("%w: %q", ErrMisconfiguredUpstream, target)
	}

	conn, err := opts.Dialer(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	l := &Link{
		sessionID:        sessionID,
		target:           target,
		onEvent:          onEvent,
		onError:          onError,
		logger:           opts.Logger.With("component", "link", "session_id", sessionID),
		handshakeTimeout: opts.HandshakeTimeout,
		conn:             conn,
		state:            StateConnecting,
		ready:            make(chan struct{}),
		createdAt:        time.Now(),
	}

	l.mu.Lock()
	if err := l.sendHandshakeLocked(); err != nil {
		// 连接保持打开，SendAudio 会补发握手帧
		l.logger.Warn("handshake send failed on open, will retry on first audio frame", "error", err)
		l.state = StateHandshakeSent
	}
	l.mu.Unlock()

	go l.readLoop()

	l.logger.Info("link opened", "target", target, "state", string(l.State()))
	return l, nil
}

// sendHandshakeLocked 发送 StartTranscription 控制帧，调用方需持有 l.mu
func (l *Link) sendHandshakeLocked() error {
	if l.handshakeSent {
		return nil
	}
	frame, err := encodeControlFrame(controlStart, map[string]any{"format": defaultControlFormat})
	if err != nil {
		return err
	}
	l.state = StateHandshakeSent
	if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	l.handshakeSent = true
	l.state = StateStreaming
	close(l.ready)
	return nil
}

// SendAudio 转发一帧二进制音频，不做任何转码
// 握手未完成时先补发控制帧，并在限定时间内等待握手确认
func (l *Link) SendAudio(audio []byte) error {
	select {
	case <-l.ready:
	default:
		l.mu.Lock()
		if l.state == StateClosing || l.state == StateClosed {
			l.mu.Unlock()
			return ErrNotConnected
		}
		if !l.handshakeSent {
			if err := l.sendHandshakeLocked(); err != nil {
				l.mu.Unlock()
				return fmt.Errorf("send handshake: %w", err)
			}
		}
		l.mu.Unlock()

		select {
		case <-l.ready:
		case <-time.After(l.handshakeTimeout):
			return ErrHandshakeTimeout
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosing || l.state == StateClosed {
		return ErrNotConnected
	}
	if err := l.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		l.failLocked(err)
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// SendControl 发送一条控制消息（如 StopTranscription）
func (l *Link) SendControl(name string) error {
	frame, err := encodeControlFrame(name, nil)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosing || l.state == StateClosed {
		return ErrNotConnected
	}
	if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		l.failLocked(err)
		return fmt.Errorf("send control %s: %w", name, err)
	}
	return nil
}

// SendStop 发送 StopTranscription 控制帧
func (l *Link) SendStop() error {
	return l.SendControl(controlStop)
}

// Close 关闭连接，可重复调用、可并发调用
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return nil
	}
	l.state = StateClosing
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			l.logger.Warn("close underlying connection", "error", err)
		}
	}
	l.state = StateClosed
	l.logger.Info("link closed")
	return nil
}

// State 返回当前协议状态
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connected 判断 Link 是否仍可发送数据
func (l *Link) Connected() bool {
	s := l.State()
	return s == StateStreaming || s == StateHandshakeSent || s == StateConnecting
}

// CreatedAt 返回 Link 建立时间
func (l *Link) CreatedAt() time.Time {
	return l.createdAt
}

// failLocked 处理传输层失败：强制进入 Closed，调用方需持有 l.mu
func (l *Link) failLocked(err error) {
	if l.state == StateClosing || l.state == StateClosed {
		return
	}
	l.state = StateClosed
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.logger.Error("link transport failure", "error", err)
}

// readLoop 阻塞读取上游消息，解析后按到达顺序回调 onEvent
// 连接错误导致循环退出并强制关闭 Link
func (l *Link) readLoop() {
	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			deliberate := l.state == StateClosing || l.state == StateClosed
			l.failLocked(err)
			l.mu.Unlock()

			if !deliberate && l.onError != nil {
				l.onError(l.sessionID, err)
			}
			return
		}

		ev, ok := parseUpstreamMessage(l.sessionID, raw, l.logger)
		if !ok {
			continue
		}
		if l.onEvent != nil {
			l.onEvent(*ev)
		}
	}
}
