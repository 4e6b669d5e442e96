package voice

import "fmt"

// Options holds the per-backend settings; only the selected backend's block is used.
type Options struct {
	Live      LiveOptions
	Alternate AlternateOptions
	Replay    ReplayOptions
	Mock      MockOptions
}

// New builds a fresh adapter of the given kind. Audio is attached to the
// streaming backends and ignored by the others.
func New(kind Kind, opts Options, audio AudioSource) (Adapter, error) {
	switch kind {
	case KindLive:
		live := opts.Live
		live.Audio = audio
		return NewLive(live), nil
	case KindAlternate:
		alt := opts.Alternate
		alt.Audio = audio
		return NewAlternate(alt), nil
	case KindReplay:
		return NewReplay(opts.Replay), nil
	case KindMock:
		return NewMock(opts.Mock), nil
	default:
		return nil, fmt.Errorf("unknown voice backend %q", kind)
	}
}
