package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/canvass-coach/backend/internal/analysis/emotion"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/coaching"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/voice"
)

func busyScript() script.Script {
	return script.Script{
		ID: "busy",
		Steps: []script.Step{
			{ID: "open", Items: []script.Item{{Text: "notice time", Triggers: []string{"busy"}}}},
			{ID: "rate", Items: []script.Item{{Text: "rating", Triggers: []string{"out of ten"}}}},
		},
	}
}

func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := s.Snapshot()
	t.Fatalf("condition not met, last snapshot status=%s messages=%d feedback=%v cues=%d",
		snap.Status, len(snap.Messages), snap.Feedback, len(snap.Cues))
	return snap
}

type recordingCoach struct {
	mu     sync.Mutex
	slices []string
	cues   int
}

func (c *recordingCoach) Evaluate(_ context.Context, _, slice, category string) (string, error) {
	c.mu.Lock()
	c.slices = append(c.slices, slice)
	c.mu.Unlock()
	return `<feedback>{"` + category + `.0": "✅ noticed"}</feedback>`, nil
}

func (c *recordingCoach) SuggestCue(context.Context, string) (string, error) {
	c.mu.Lock()
	c.cues++
	c.mu.Unlock()
	return `<cue>{"text": "Ask how their week is going", "kind": "feeling"}</cue>`, nil
}

func TestSessionDerivesProgressAndCoaching(t *testing.T) {
	adapter := voice.NewMock(voice.MockOptions{Messages: []transcript.Message{
		{Role: transcript.Canvasser, Content: "Hi, got a minute?"},
		{Role: transcript.Voter, Content: "I'm a bit busy right now", Emotions: transcript.Emotions{"Annoyance": 0.6, "Interest": 0.2}},
	}})
	coach := &recordingCoach{}
	s, err := New(Options{ID: "s1", Script: busyScript(), Adapter: adapter, Coach: coach})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}

	snap := waitFor(t, s, func(snap Snapshot) bool {
		return len(snap.Messages) == 2 && len(snap.FeedbackSummary) > 0 && len(snap.Cues) > 0
	})

	if !snap.Progress.StepTriggered(0) || snap.Progress.CurrentStep != 1 || snap.Category != "rate" {
		t.Fatalf("unexpected progress %+v category %s", snap.Progress, snap.Category)
	}
	if snap.FeedbackSummary[0].Feedback["rate.0"].Text != "noticed" {
		t.Fatalf("unexpected feedback summary %+v", snap.FeedbackSummary)
	}
	if len(snap.TopEmotions) != 2 || snap.TopEmotions[0].Name != "Annoyance" {
		t.Fatalf("unexpected top emotions %+v", snap.TopEmotions)
	}
	if snap.Status != voice.StatusConnected || snap.Backend != voice.KindMock {
		t.Fatalf("unexpected status %s backend %s", snap.Status, snap.Backend)
	}
}

func TestSessionEvaluatesEachSliceOnce(t *testing.T) {
	base := time.Unix(0, 0)
	adapter := voice.NewReplay(voice.ReplayOptions{
		Speed: 1000,
		Messages: []transcript.Message{
			{Role: transcript.Canvasser, Content: "Hello", Timestamp: base},
			{Role: transcript.Voter, Content: "Hi", Timestamp: base.Add(10 * time.Millisecond)},
			{Role: transcript.Canvasser, Content: "Rate it?", Timestamp: base.Add(20 * time.Millisecond)},
			{Role: transcript.Voter, Content: "Six out of ten", Timestamp: base.Add(30 * time.Millisecond)},
			{Role: transcript.Canvasser, Content: "Thanks", Timestamp: base.Add(40 * time.Millisecond)},
		},
	})
	coach := &recordingCoach{}
	s, err := New(Options{ID: "s2", Script: busyScript(), Adapter: adapter, Coach: coach})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	waitFor(t, s, func(snap Snapshot) bool { return len(snap.Messages) == 5 && len(snap.Cues) == 5 })

	coach.mu.Lock()
	defer coach.mu.Unlock()
	seen := make(map[string]bool)
	for _, slice := range coach.slices {
		for _, line := range strings.Split(slice, "\n") {
			if seen[line] {
				t.Fatalf("line %q evaluated twice across %q", line, coach.slices)
			}
			seen[line] = true
		}
	}
	if seen["Canvasser: Thanks"] {
		t.Fatal("canvasser-only slice should not be evaluated")
	}
}

func TestSessionDisconnectDuringConnectNeverConnects(t *testing.T) {
	adapter := voice.NewMock(voice.MockOptions{Delay: time.Second})
	s, err := New(Options{ID: "s3", Script: busyScript(), Adapter: adapter})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- s.Connect(context.Background()) }()

	waitFor(t, s, func(snap Snapshot) bool { return snap.Status == voice.StatusConnecting })
	s.Disconnect()
	<-result

	time.Sleep(50 * time.Millisecond)
drain:
	for {
		select {
		case snap := <-updates:
			if snap.Status == voice.StatusConnected {
				t.Fatal("session reported connected after disconnect")
			}
		default:
			break drain
		}
	}
	if got := s.Snapshot().Status; got != voice.StatusEnded {
		t.Fatalf("got %s want ended", got)
	}
}

func TestSessionDeduplicatesIDs(t *testing.T) {
	adapter := voice.NewMock(voice.MockOptions{Messages: []transcript.Message{
		{ID: "x", Role: transcript.Canvasser, Content: "one"},
		{ID: "x", Role: transcript.Voter, Content: "two"},
		{ID: "x", Role: transcript.Voter, Content: "three"},
	}})
	s, err := New(Options{ID: "s4", Script: busyScript(), Adapter: adapter})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	snap := waitFor(t, s, func(snap Snapshot) bool { return len(snap.Messages) == 3 })

	want := []string{"x", "x-1", "x-2"}
	for i, msg := range snap.Messages {
		if msg.ID != want[i] {
			t.Fatalf("message %d id got %s want %s", i, msg.ID, want[i])
		}
	}
}

func TestSessionParseFailureIsSilent(t *testing.T) {
	adapter := voice.NewMock(voice.MockOptions{Messages: []transcript.Message{
		{Role: transcript.Voter, Content: "busy"},
	}})
	coach := coaching.Pair{
		Evaluator: coaching.EvaluatorFunc(func(context.Context, string, string, string) (string, error) {
			return "no tags here", nil
		}),
		CueSuggester: coaching.CueSuggesterFunc(func(context.Context, string) (string, error) {
			return "<cue>{broken</cue>", nil
		}),
	}
	s, err := New(Options{ID: "s5", Script: busyScript(), Adapter: adapter, Coach: coach})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	waitFor(t, s, func(snap Snapshot) bool { return len(snap.Messages) == 1 })
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Status != voice.StatusConnected {
		t.Fatalf("parse failure changed status to %s", snap.Status)
	}
	if len(snap.FeedbackSummary) != 0 || len(snap.Cues) != 0 {
		t.Fatalf("unexpected coaching output %+v %+v", snap.FeedbackSummary, snap.Cues)
	}
}

func TestSessionPauseAndMute(t *testing.T) {
	adapter := voice.NewMock(voice.MockOptions{Messages: []transcript.Message{}})
	s, err := New(Options{ID: "s6", Script: busyScript(), Adapter: adapter})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if !s.TogglePause(nil) {
		t.Fatal("expected paused")
	}
	snap := s.Snapshot()
	if snap.Status != voice.StatusPaused || !snap.Muted {
		t.Fatalf("unexpected snapshot %s muted=%v", snap.Status, snap.Muted)
	}
	s.TogglePause(nil)
	s.Mute()
	if !s.Snapshot().Muted {
		t.Fatal("expected muted")
	}
	s.Unmute()
	if s.Snapshot().Muted {
		t.Fatal("expected unmuted")
	}
}

func TestSubscribeClosesOnClose(t *testing.T) {
	s, err := New(Options{ID: "s7", Script: busyScript(), Adapter: voice.NewMock(voice.MockOptions{})})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	updates, _ := s.Subscribe()
	<-updates

	s.Close()
	for range updates {
		// drain whatever was buffered before close
	}
}

type amplitudeAdapter struct {
	*voice.MockAdapter
	mu  sync.Mutex
	amp []float64
}

func (a *amplitudeAdapter) MicAmplitude() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]float64{}, a.amp...)
}

func (a *amplitudeAdapter) set(amp []float64) {
	a.mu.Lock()
	a.amp = amp
	a.mu.Unlock()
}

func TestSessionPublishesAmplitudeOnlyOnChange(t *testing.T) {
	adapter := &amplitudeAdapter{MockAdapter: voice.NewMock(voice.MockOptions{Messages: []transcript.Message{}})}
	s, err := New(Options{ID: "amp", Script: busyScript(), Adapter: adapter})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

settle:
	for {
		select {
		case <-updates:
		case <-time.After(100 * time.Millisecond):
			break settle
		}
	}

	select {
	case snap := <-updates:
		t.Fatalf("silent microphone republished a snapshot: status=%s amplitude=%v", snap.Status, snap.MicAmplitude)
	case <-time.After(3 * amplitudeInterval):
	}

	adapter.set([]float64{0.4})
	select {
	case snap := <-updates:
		if len(snap.MicAmplitude) != 1 || snap.MicAmplitude[0] != 0.4 {
			t.Fatalf("unexpected amplitude %v", snap.MicAmplitude)
		}
	case <-time.After(time.Second):
		t.Fatal("amplitude change was never published")
	}
}

func TestSessionMoodAveragesVoterTurns(t *testing.T) {
	adapter := voice.NewMock(voice.MockOptions{Messages: []transcript.Message{
		{Role: transcript.Voter, Content: "I'm busy", Emotions: transcript.Emotions{"Annoyance": 0.8}},
		{Role: transcript.Canvasser, Content: "Totally fair."},
		{Role: transcript.Voter, Content: "Well, go on", Emotions: transcript.Emotions{"Interest": 0.3, "Annoyance": 0.4}},
	}})
	s, err := New(Options{ID: "mood", Script: busyScript(), Adapter: adapter})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	snap := waitFor(t, s, func(snap Snapshot) bool { return len(snap.Messages) == 3 })

	want := emotion.Classify(transcript.Emotions{"Annoyance": 0.6, "Interest": 0.3})
	if snap.SessionMood != want {
		t.Fatalf("got session mood %s want %s", snap.SessionMood, want)
	}
}
