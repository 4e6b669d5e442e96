package voice

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const (
	amplitudeWindow = 32
	frameBuffer     = 64
)

// AudioSource supplies microphone audio to the streaming backends.
type AudioSource interface {
	Acquire(ctx context.Context) error
	Release()
	// Pause stops forwarding frames but keeps the device reserved.
	Pause()
	Resume()
	Frames() <-chan []byte
	Amplitude() []float64
}

// StreamSource is an AudioSource fed with PCM16LE frames pushed by the client.
type StreamSource struct {
	mu       sync.Mutex
	denied   bool
	acquired bool
	paused   bool
	frames   chan []byte
	ring     [amplitudeWindow]float64
	next     int
	filled   bool
	lastPush time.Time
}

// NewStreamSource returns a source that is granted until the client says otherwise.
func NewStreamSource() *StreamSource {
	return &StreamSource{frames: make(chan []byte, frameBuffer)}
}

// SetPermission records the client's microphone permission answer.
func (s *StreamSource) SetPermission(granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = !granted
	if s.denied {
		s.acquired = false
	}
}

func (s *StreamSource) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return &PermissionError{Err: ErrPermissionDenied}
	}
	s.acquired = true
	s.paused = false
	return nil
}

func (s *StreamSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired = false
	s.paused = false
	s.ring = [amplitudeWindow]float64{}
	s.next = 0
	s.filled = false
}

func (s *StreamSource) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *StreamSource) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *StreamSource) Frames() <-chan []byte { return s.frames }

// Push accepts one client frame. It returns false when the frame was dropped.
func (s *StreamSource) Push(pcm []byte) bool {
	if len(pcm) == 0 {
		return false
	}

	s.mu.Lock()
	s.lastPush = time.Now()
	if !s.acquired || s.paused {
		s.mu.Unlock()
		return false
	}
	s.ring[s.next] = rms(pcm)
	s.next = (s.next + 1) % amplitudeWindow
	if s.next == 0 {
		s.filled = true
	}
	s.mu.Unlock()

	select {
	case s.frames <- pcm:
		return true
	default:
		return false
	}
}

// LastPush reports when the client last sent audio, accepted or not.
func (s *StreamSource) LastPush() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPush
}

// Amplitude returns the recent RMS levels, oldest first.
func (s *StreamSource) Amplitude() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filled {
		out := make([]float64, s.next)
		copy(out, s.ring[:s.next])
		return out
	}
	out := make([]float64, 0, amplitudeWindow)
	out = append(out, s.ring[s.next:]...)
	out = append(out, s.ring[:s.next]...)
	return out
}

// rms computes the normalized loudness of a PCM16LE frame.
func rms(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
