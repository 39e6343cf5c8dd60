package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore 基于文件系统的 MeetingStore 实现
// 每个会议一个 JSON 文件，所有写操作由互斥锁串行化
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore 创建文件存储，目录不存在时自动创建
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "./meetings"
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create meetings dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// sanitizeID 防止会议 ID 穿越存储目录
func sanitizeID(id string) string {
	id = strings.ReplaceAll(id, string(filepath.Separator), "_")
	return strings.ReplaceAll(id, "..", "_")
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, sanitizeID(id)+".json")
}

func (s *FileStore) readLocked(id string) (*Meeting, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("read meeting %s: %w", id, err)
	}
	var m Meeting
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode meeting %s: %w", id, err)
	}
	return &m, nil
}

func (s *FileStore) writeLocked(m *Meeting) error {
	m.UpdatedAt = time.Now()
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode meeting %s: %w", m.ID, err)
	}
	// 先写临时文件再改名，避免读到半截数据
	tmp := s.path(m.ID) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write meeting %s: %w", m.ID, err)
	}
	return os.Rename(tmp, s.path(m.ID))
}

// CreateMeeting 创建会议记录
func (s *FileStore) CreateMeeting(m *Meeting) (*Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if err := s.writeLocked(m); err != nil {
		return nil, err
	}
	return m, nil
}

// FindMeeting 按 ID 查询会议
func (s *FileStore) FindMeeting(id string) (*Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(id)
}

// UpdateMeetingTask 更新会议关联的转写任务信息
func (s *FileStore) UpdateMeetingTask(id, taskID, streamURL string) (*Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked(id)
	if err != nil {
		return nil, err
	}
	m.TaskID = taskID
	m.StreamURL = streamURL
	if err := s.writeLocked(m); err != nil {
		return nil, err
	}
	return m, nil
}

// AppendTranscript 追加一条转写文本
func (s *FileStore) AppendTranscript(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked(id)
	if err != nil {
		return err
	}
	m.Transcripts = append(m.Transcripts, TranscriptEntry{
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
	return s.writeLocked(m)
}

// SaveSummaryResult 保存摘要结果
func (s *FileStore) SaveSummaryResult(id string, result *SummaryResult) (*Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked(id)
	if err != nil {
		return nil, err
	}
	m.Summary = result
	if err := s.writeLocked(m); err != nil {
		return nil, err
	}
	return m, nil
}
