package practice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/coaching"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/session"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/voice"
)

var (
	ErrScriptRequired  = errors.New("script id is required")
	ErrScriptNotFound  = errors.New("script not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownBackend  = errors.New("unknown backend")
	ErrNothingToReplay = errors.New("replay needs a transcript or a source session")
)

// Info describes a registered practice session.
type Info struct {
	ID        string     `json:"id"`
	ScriptID  string     `json:"scriptId"`
	Backend   voice.Kind `json:"backend"`
	CreatedAt time.Time  `json:"createdAt"`
}

// CreateRequest selects the script and backend of a new session.
// Replay sessions take Messages, or the transcript of ReplayOf when Messages is empty.
type CreateRequest struct {
	ScriptID string               `json:"scriptId"`
	Backend  string               `json:"backend"`
	ReplayOf string               `json:"replayOf,omitempty"`
	Messages []transcript.Message `json:"messages,omitempty"`
}

type entry struct {
	info    Info
	session *session.Session
	audio   *voice.StreamSource
	request CreateRequest
}

// Service 管理进行中的练习会话
type Service struct {
	scripts script.Store
	coaches coaching.Provider
	voice   voice.Options

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService 创建会话注册表；coaches 为 nil 时会话不产生教练反馈
func NewService(scripts script.Store, coaches coaching.Provider, opts voice.Options) *Service {
	return &Service{
		scripts:  scripts,
		coaches:  coaches,
		voice:    opts,
		sessions: make(map[string]*entry),
	}
}

// Create 根据脚本和后端创建一个未连接的会话
func (s *Service) Create(_ context.Context, req CreateRequest) (Info, error) {
	if req.ScriptID == "" {
		return Info{}, ErrScriptRequired
	}
	sc, ok := s.scripts.FindByID(req.ScriptID)
	if !ok {
		return Info{}, ErrScriptNotFound
	}

	kind, err := voice.ParseKind(req.Backend)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownBackend, req.Backend)
	}

	opts := s.voice
	if kind == voice.KindReplay {
		messages, err := s.replaySource(req)
		if err != nil {
			return Info{}, err
		}
		opts.Replay.Messages = messages
		req.Messages = messages
	}

	audio := voice.NewStreamSource()
	adapter, err := voice.New(kind, opts, audio)
	if err != nil {
		return Info{}, fmt.Errorf("build %s adapter: %w", kind, err)
	}

	var coach coaching.Coach
	if s.coaches != nil {
		coach = s.coaches.ForScript(sc)
	}

	info := Info{
		ID:        uuid.NewString(),
		ScriptID:  sc.ID,
		Backend:   kind,
		CreatedAt: time.Now().UTC(),
	}
	sess, err := session.New(session.Options{
		ID:      info.ID,
		Script:  sc,
		Adapter: adapter,
		Coach:   coach,
	})
	if err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	s.sessions[info.ID] = &entry{info: info, session: sess, audio: audio, request: req}
	s.mu.Unlock()

	log.Printf("[practice] created session %s script=%s backend=%s", info.ID, info.ScriptID, kind)
	return info, nil
}

func (s *Service) replaySource(req CreateRequest) ([]transcript.Message, error) {
	if len(req.Messages) > 0 {
		return req.Messages, nil
	}
	if req.ReplayOf == "" {
		return nil, ErrNothingToReplay
	}
	src, err := s.Get(req.ReplayOf)
	if err != nil {
		return nil, err
	}
	messages := src.Snapshot().Messages
	if len(messages) == 0 {
		return nil, ErrNothingToReplay
	}
	return messages, nil
}

// Get 返回会话
func (s *Service) Get(id string) (*session.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// View 返回会话的只读视图
func (s *Service) View(id string) (session.View, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Audio 返回会话的麦克风输入
func (s *Service) Audio(id string) (*voice.StreamSource, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.audio, nil
}

// Info 返回会话描述
func (s *Service) Info(id string) (Info, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return e.info, nil
}

// lastActive 取会话事件与麦克风推流中较晚的时间
func (e *entry) lastActive() time.Time {
	last := e.session.LastActive()
	if pushed := e.audio.LastPush(); pushed.After(last) {
		return pushed
	}
	return last
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// List 按创建时间返回全部会话
func (s *Service) List() []Info {
	s.mu.RLock()
	infos := make([]Info, 0, len(s.sessions))
	for _, e := range s.sessions {
		infos = append(infos, e.info)
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Close 断开并移除会话
func (s *Service) Close(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.session.Close()
	log.Printf("[practice] closed session %s", id)
	return nil
}

// Restart 关闭旧会话并以相同参数新建一个，进度与反馈从零开始
func (s *Service) Restart(ctx context.Context, id string) (Info, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Info{}, err
	}

	if err := s.Close(id); err != nil {
		return Info{}, err
	}
	return s.Create(ctx, e.request)
}

// CloseIdle 关闭超过 timeout 未活动的会话，返回关闭数量
func (s *Service) CloseIdle(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-timeout)

	s.mu.RLock()
	var idle []string
	for id, e := range s.sessions {
		if e.lastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if err := s.Close(id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		log.Printf("[practice] closed %d idle sessions", closed)
	}
	return closed
}

// Shutdown 关闭全部会话
func (s *Service) Shutdown() {
	s.mu.Lock()
	entries := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
}
