package voice

import (
	"context"
	"time"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

// DefaultMockDelay is how long the mock backend pretends to dial.
const DefaultMockDelay = 500 * time.Millisecond

// MockOptions configures the canned backend.
type MockOptions struct {
	Delay    time.Duration
	Messages []transcript.Message
}

// MockAdapter connects after a short delay and exposes a static transcript.
type MockAdapter struct {
	*lifecycle
	opts MockOptions
}

func NewMock(opts MockOptions) *MockAdapter {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Messages == nil {
		opts.Messages = DefaultMockTranscript()
	}
	return &MockAdapter{lifecycle: newLifecycle(KindMock), opts: opts}
}

func (a *MockAdapter) Connect(ctx context.Context) error {
	return a.connect(ctx, func(dialCtx context.Context) (*link, error) {
		timer := time.NewTimer(a.opts.Delay)
		defer timer.Stop()
		select {
		case <-dialCtx.Done():
			return nil, dialCtx.Err()
		case <-timer.C:
		}
		return &link{start: func(runCtx context.Context) { go a.publish(runCtx) }}, nil
	})
}

func (a *MockAdapter) Disconnect() { a.disconnect() }

func (a *MockAdapter) TogglePause(explicit *bool) bool { return a.togglePause(explicit) }

func (a *MockAdapter) MicAmplitude() []float64 { return nil }

func (a *MockAdapter) publish(ctx context.Context) {
	now := time.Now()
	for _, msg := range a.opts.Messages {
		if !a.emitFrame(ctx, ReplayFrame{Message: msg, ReceivedAt: now, Origin: KindMock}) {
			return
		}
	}
}

// DefaultMockTranscript is a short doorstep exchange used for demos and tests.
func DefaultMockTranscript() []transcript.Message {
	return []transcript.Message{
		{Role: transcript.Canvasser, Content: "Hi there, I'm Sam with Families Forward. Do you have a couple of minutes?"},
		{Role: transcript.Voter, Content: "I'm a bit busy right now, what is this about?",
			Emotions: transcript.Emotions{"Annoyance": 0.41, "Interest": 0.18, "Doubt": 0.27}},
		{Role: transcript.Canvasser, Content: "We're talking with neighbors about paid family leave. On a scale of 0 to 10, how do you feel about it?"},
		{Role: transcript.Voter, Content: "I'd say maybe a five. I worry about what it costs small businesses.",
			Emotions: transcript.Emotions{"Doubt": 0.52, "Interest": 0.33, "Calmness": 0.22}},
		{Role: transcript.Canvasser, Content: "That makes sense. Has there been a time you or someone close to you needed time off to care for family?"},
		{Role: transcript.Voter, Content: "When my mom was in the hospital I took care of her for three weeks. It was really hard.",
			Emotions: transcript.Emotions{"Sadness": 0.63, "Sympathy": 0.38, "Tiredness": 0.31}},
	}
}
