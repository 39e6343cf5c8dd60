package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shanlih/lectprep/cmd/server/internal/metrics"
	"github.com/shanlih/lectprep/pkg/logger"
)

// Registry 维护 sessionId 到 Link 的并发安全映射
// 不变式：任意时刻每个 sessionId 至多持有一条活跃 Link
type Registry struct {
	mu    sync.Mutex
	links map[string]*Link
	opts  LinkOptions
	log   *slog.Logger
}

// NewRegistry 创建会话注册表，opts 为 nil 时采用默认 Link 配置
func NewRegistry(opts *LinkOptions, log *slog.Logger) *Registry {
	o := LinkOptions{}
	if opts != nil {
		o = *opts
	}
	o.fill()
	if log == nil {
		log = o.Logger
	}
	return &Registry{
		links: map[string]*Link{},
		opts:  o,
		log:   log.With("component", "registry"),
	}
}

// Get 返回 sessionID 对应的活跃 Link，不存在或已关闭时返回 nil
func (r *Registry) Get(sessionID string) *Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aliveLocked(sessionID)
}

// GetOrCreate 返回已有 Link；不存在（或已关闭）时新建并注册
// 整个操作持锁执行，并发调用同一 sessionID 时后到者拿到先到者创建的 Link
func (r *Registry) GetOrCreate(sessionID, target string, onEvent EventHandler, onError ErrorHandler) (*Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l := r.aliveLocked(sessionID); l != nil {
		return l, nil
	}

	l, err := Open(sessionID, target, onEvent, onError, &r.opts)
	if err != nil {
		return nil, err
	}
	r.links[sessionID] = l
	metrics.SetActiveSessions(len(r.links))
	r.log.Info("link registered", "session_id", sessionID)
	return l, nil
}

// Replace 先尽力关闭同 ID 的旧 Link（失败仅记日志），再创建新 Link
// 用于客户端对同一会议重启识别
func (r *Registry) Replace(sessionID, target string, onEvent EventHandler, onError ErrorHandler) (*Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old := r.links[sessionID]; old != nil {
		if err := old.Close(); err != nil {
			r.log.Warn("close previous link", "session_id", sessionID, "error", err)
		}
		delete(r.links, sessionID)
	}

	l, err := Open(sessionID, target, onEvent, onError, &r.opts)
	if err != nil {
		metrics.SetActiveSessions(len(r.links))
		return nil, err
	}
	r.links[sessionID] = l
	metrics.SetActiveSessions(len(r.links))
	r.log.Info("link replaced", "session_id", sessionID)
	return l, nil
}

// Close 关闭并移除指定会话的 Link，不存在时为无操作
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.links[sessionID]
	if l == nil {
		return
	}
	errCode := ""
	if err := l.Close(); err != nil {
		r.log.Warn("close link", "session_id", sessionID, "error", err)
		errCode = "close_failed"
	}
	delete(r.links, sessionID)
	metrics.SetActiveSessions(len(r.links))
	logger.LogRelayEvent(r.log, "registry", "close", sessionID, time.Since(l.CreatedAt()).Milliseconds(), errCode)
}

// CloseAll 关闭全部 Link，进程退出时调用
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, l := range r.links {
		if err := l.Close(); err != nil {
			r.log.Warn("close link", "session_id", id, "error", err)
		}
		delete(r.links, id)
	}
	metrics.SetActiveSessions(0)
	r.log.Info("all links closed")
}

// Len 返回当前注册的 Link 数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// aliveLocked 返回仍然活跃的 Link；已关闭的条目被顺带清除，
// 保证停止识别后的下一次 GetOrCreate 拿到全新连接
func (r *Registry) aliveLocked(sessionID string) *Link {
	l := r.links[sessionID]
	if l == nil {
		return nil
	}
	if s := l.State(); s == StateClosed || s == StateClosing {
		delete(r.links, sessionID)
		metrics.SetActiveSessions(len(r.links))
		return nil
	}
	return l
}
