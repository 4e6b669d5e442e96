package voice

import (
	"context"
	"time"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

// DefaultReplayGap is used when recorded timestamps give no usable spacing.
const DefaultReplayGap = 1500 * time.Millisecond

// ReplayFrame wraps one recorded message.
type ReplayFrame struct {
	Message    transcript.Message
	ReceivedAt time.Time
	// Origin overrides the reported source, used by the mock backend.
	Origin Kind
}

func (f ReplayFrame) Source() Kind {
	if f.Origin != "" {
		return f.Origin
	}
	return KindReplay
}

// ReplayOptions configures deterministic playback.
type ReplayOptions struct {
	Messages []transcript.Message
	// Speed scales playback; 2 plays twice as fast. Values <= 0 mean 1.
	Speed float64
	Gap   time.Duration
}

// ReplayAdapter plays back a fixed message list without any network.
type ReplayAdapter struct {
	*lifecycle
	opts ReplayOptions
}

func NewReplay(opts ReplayOptions) *ReplayAdapter {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Gap <= 0 {
		opts.Gap = DefaultReplayGap
	}
	msgs := make([]transcript.Message, len(opts.Messages))
	for i, msg := range opts.Messages {
		msgs[i] = msg.Clone()
	}
	opts.Messages = msgs

	return &ReplayAdapter{lifecycle: newLifecycle(KindReplay), opts: opts}
}

func (a *ReplayAdapter) Connect(ctx context.Context) error {
	return a.connect(ctx, func(context.Context) (*link, error) {
		return &link{start: func(runCtx context.Context) { go a.play(runCtx) }}, nil
	})
}

func (a *ReplayAdapter) Disconnect() { a.disconnect() }

func (a *ReplayAdapter) TogglePause(explicit *bool) bool { return a.togglePause(explicit) }

func (a *ReplayAdapter) MicAmplitude() []float64 { return nil }

// Delay returns the wait before message i is played.
func (a *ReplayAdapter) Delay(i int) time.Duration {
	if i <= 0 || i >= len(a.opts.Messages) {
		return 0
	}
	gap := a.opts.Gap
	prev, cur := a.opts.Messages[i-1].Timestamp, a.opts.Messages[i].Timestamp
	if !prev.IsZero() && !cur.IsZero() && cur.After(prev) {
		gap = cur.Sub(prev)
	}
	return time.Duration(float64(gap) / a.opts.Speed)
}

func (a *ReplayAdapter) play(ctx context.Context) {
	for i, msg := range a.opts.Messages {
		if d := a.Delay(i); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if err := a.waitResumed(ctx); err != nil {
			return
		}
		if !a.emitFrame(ctx, ReplayFrame{Message: msg, ReceivedAt: time.Now()}) {
			return
		}
	}
}
