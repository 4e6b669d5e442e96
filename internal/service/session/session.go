package session

import (
	"context"
	"errors"
	"log"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/zhouzirui/canvass-coach/backend/internal/analysis/emotion"
	"github.com/zhouzirui/canvass-coach/backend/internal/analysis/trigger"
	coachingmodel "github.com/zhouzirui/canvass-coach/backend/internal/model/coaching"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/coaching"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/voice"
)

const (
	amplitudeInterval = 250 * time.Millisecond
	topEmotions       = 3
)

// View is the read-only surface handed to consumers that must not drive the session.
type View interface {
	ID() string
	Snapshot() Snapshot
	// Subscribe returns a channel holding the latest snapshot; stale ones are replaced.
	Subscribe() (<-chan Snapshot, func())
}

// Controls extends View with the session controls.
type Controls interface {
	View
	Connect(ctx context.Context) error
	Disconnect()
	Mute()
	Unmute()
	TogglePause(explicit *bool) bool
}

// Snapshot is everything a client renders.
type Snapshot struct {
	ID              string                      `json:"id"`
	ScriptID        string                      `json:"scriptId"`
	Backend         voice.Kind                  `json:"backend"`
	Status          voice.Status                `json:"status"`
	Reason          string                      `json:"reason,omitempty"`
	Muted           bool                        `json:"muted"`
	Messages        []transcript.Message        `json:"messages"`
	Progress        trigger.State               `json:"progress"`
	Category        string                      `json:"category"`
	Hints           []string                    `json:"hints,omitempty"`
	Feedback        coachingmodel.Feedback      `json:"feedback"`
	FeedbackSummary []coaching.CategoryFeedback `json:"feedbackSummary"`
	Cues            []coachingmodel.Cue         `json:"cues"`
	MicAmplitude    []float64                   `json:"micAmplitude,omitempty"`
	TopEmotions     []emotion.Score             `json:"topEmotions,omitempty"`
	VoterMood       emotion.Mood                `json:"voterMood"`
	SessionMood     emotion.Mood                `json:"sessionMood"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
}

// Options wires one session.
type Options struct {
	ID      string
	Script  script.Script
	Adapter voice.Adapter
	Coach   coaching.Coach
}

// Session owns one adapter and everything derived from its transcript.
// A single loop goroutine appends messages and applies evaluation results.
type Session struct {
	id      string
	script  script.Script
	adapter voice.Adapter

	coached  bool
	feedback *coaching.FeedbackPipeline
	cues     *coaching.CuePipeline

	evalCtx    context.Context
	evalCancel context.CancelFunc
	evals      sync.WaitGroup
	results    chan func()

	closed    chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}

	mu         sync.RWMutex
	messages   []transcript.Message
	ids        map[string]struct{}
	progress   trigger.State
	framePos   int
	lastActive time.Time

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

var errNoAdapter = errors.New("session requires a voice adapter")

// New starts the session loop. The adapter is not connected yet.
func New(opts Options) (*Session, error) {
	if opts.Adapter == nil {
		return nil, errNoAdapter
	}

	evalCtx, evalCancel := context.WithCancel(context.Background())
	s := &Session{
		id:         opts.ID,
		script:     opts.Script,
		adapter:    opts.Adapter,
		coached:    opts.Coach != nil,
		feedback:   coaching.NewFeedbackPipeline(opts.Coach),
		cues:       coaching.NewCuePipeline(opts.Coach),
		evalCtx:    evalCtx,
		evalCancel: evalCancel,
		results:    make(chan func()),
		closed:     make(chan struct{}),
		loopDone:   make(chan struct{}),
		ids:        make(map[string]struct{}),
		progress:   trigger.Progress(nil, opts.Script),
		lastActive: time.Now(),
		subs:       make(map[int]chan Snapshot),
	}
	if opts.Coach == nil {
		log.Printf("[session] %s running without a coach", s.id)
	}

	go s.run()
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Script returns the script the session was created with.
func (s *Session) Script() script.Script { return s.script }

// Backend returns the adapter kind.
func (s *Session) Backend() voice.Kind { return s.adapter.Kind() }

func (s *Session) run() {
	defer close(s.loopDone)

	events := s.adapter.Events()
	ticker := time.NewTicker(amplitudeInterval)
	defer ticker.Stop()
	var amplitude []float64

	for {
		select {
		case <-s.closed:
			return
		case ev := <-events:
			s.handleEvent(ev)
		case apply := <-s.results:
			apply()
			s.publish()
		case <-ticker.C:
			if !s.adapter.Status().Live() {
				continue
			}
			if next := s.adapter.MicAmplitude(); !slices.Equal(next, amplitude) {
				amplitude = next
				s.publish()
			}
		}
	}
}

func (s *Session) handleEvent(ev voice.Event) {
	s.touch()

	if ev.Status != nil {
		log.Printf("[session] %s status=%s %s", s.id, ev.Status.Status, ev.Status.Reason)
		s.publish()
	}
	if ev.Frame == nil {
		return
	}

	s.mu.Lock()
	msg, ok := voice.Normalize(ev.Frame, s.framePos)
	s.framePos++
	if !ok {
		s.mu.Unlock()
		return
	}
	msg.ID = s.uniqueID(msg.ID)
	s.messages = append(s.messages, msg)
	s.progress = trigger.Progress(s.messages, s.script)
	messages := append([]transcript.Message(nil), s.messages...)
	category := s.progress.CurrentCategory(s.script)
	s.mu.Unlock()

	if s.coached {
		s.dispatch(messages, category)
	}
	s.publish()
}

// uniqueID must be called with mu held.
func (s *Session) uniqueID(id string) string {
	candidate := id
	for n := 1; ; n++ {
		if _, taken := s.ids[candidate]; !taken {
			s.ids[candidate] = struct{}{}
			return candidate
		}
		candidate = id + "-" + strconv.Itoa(n)
	}
}

// dispatch claims new slices on the loop, then evaluates them off the loop.
func (s *Session) dispatch(messages []transcript.Message, category string) {
	if req, ok := s.feedback.Begin(messages, category); ok {
		s.spawn(func(ctx context.Context) func() {
			fb, err := s.feedback.Run(ctx, req)
			return func() {
				if err != nil {
					logEvaluationError(s.id, "feedback", err)
					return
				}
				s.feedback.Merge(req.Category, fb)
			}
		})
	}

	if req, ok := s.cues.Begin(messages); ok {
		s.spawn(func(ctx context.Context) func() {
			cue, err := s.cues.Run(ctx, req)
			return func() {
				if err != nil {
					logEvaluationError(s.id, "cue", err)
					return
				}
				s.cues.Append(cue)
			}
		})
	}
}

func (s *Session) spawn(work func(ctx context.Context) func()) {
	s.evals.Add(1)
	go func() {
		defer s.evals.Done()
		apply := work(s.evalCtx)
		select {
		case s.results <- apply:
		case <-s.closed:
		}
	}()
}

func logEvaluationError(id, kind string, err error) {
	var parseErr *coaching.EvaluationParseError
	switch {
	case errors.As(err, &parseErr):
		log.Printf("[session] %s %s response ignored: %v", id, kind, err)
	case errors.Is(err, context.Canceled):
	default:
		log.Printf("[session] %s %s evaluation failed: %v", id, kind, err)
	}
}

// Connect dials the backend. It blocks until the attempt settles.
func (s *Session) Connect(ctx context.Context) error {
	s.touch()
	err := s.adapter.Connect(ctx)
	s.publish()
	return err
}

// Disconnect ends the backend link. Evaluations already in flight still land.
func (s *Session) Disconnect() {
	s.touch()
	s.adapter.Disconnect()
	s.publish()
}

func (s *Session) Mute() {
	s.touch()
	s.adapter.Mute()
	s.publish()
}

func (s *Session) Unmute() {
	s.touch()
	s.adapter.Unmute()
	s.publish()
}

func (s *Session) TogglePause(explicit *bool) bool {
	s.touch()
	paused := s.adapter.TogglePause(explicit)
	s.publish()
	return paused
}

// Close disconnects, cancels pending evaluations and stops the loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.adapter.Disconnect()
		s.evalCancel()
		close(s.closed)
		<-s.loopDone
		s.evals.Wait()

		s.subMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subMu.Unlock()
	})
}

// Done is closed once Close has been called.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive reports when the session last saw an event or a control call.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Snapshot assembles the client view from the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	messages := make([]transcript.Message, len(s.messages))
	for i, msg := range s.messages {
		messages[i] = msg.Clone()
	}
	progress := s.progress
	s.mu.RUnlock()

	status := s.adapter.Status()
	category := progress.CurrentCategory(s.script)

	snap := Snapshot{
		ID:              s.id,
		ScriptID:        s.script.ID,
		Backend:         s.adapter.Kind(),
		Status:          status.Status,
		Reason:          status.Reason,
		Muted:           s.adapter.Muted(),
		Messages:        messages,
		Progress:        progress,
		Category:        category,
		Hints:           progress.Hints(s.script),
		Feedback:        s.feedback.Current(category),
		FeedbackSummary: s.feedback.Summary(),
		Cues:            s.cues.Cues(),
		MicAmplitude:    s.adapter.MicAmplitude(),
		VoterMood:       emotion.MoodUnknown,
		SessionMood:     emotion.Classify(emotion.Average(messages, transcript.Voter)),
		UpdatedAt:       time.Now(),
	}
	if last, ok := transcript.LastOfRole(messages, transcript.Voter); ok {
		snap.TopEmotions = emotion.Top(last.Emotions, topEmotions)
		snap.VoterMood = emotion.Classify(last.Emotions)
	}
	return snap
}

func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- s.Snapshot()

	s.subMu.Lock()
	select {
	case <-s.closed:
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

func (s *Session) publish() {
	snap := s.Snapshot()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// latest wins
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
