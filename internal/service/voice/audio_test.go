package voice

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestStreamSourceAmplitudeRing(t *testing.T) {
	src := NewStreamSource()
	if src.Push([]byte{0, 0}) {
		t.Fatal("frames before Acquire must be dropped")
	}
	if err := src.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire err: %v", err)
	}

	// full-scale negative sample
	src.Push([]byte{0x00, 0x80})
	amp := src.Amplitude()
	if len(amp) != 1 || math.Abs(amp[0]-1) > 1e-9 {
		t.Fatalf("unexpected amplitude %v", amp)
	}

	for i := 0; i < amplitudeWindow+5; i++ {
		src.Push([]byte{0, 0})
		<-src.Frames()
	}
	if got := len(src.Amplitude()); got != amplitudeWindow {
		t.Fatalf("ring size got %d want %d", got, amplitudeWindow)
	}

	src.Release()
	if len(src.Amplitude()) != 0 {
		t.Fatal("release should clear levels")
	}
}

func TestStreamSourcePermission(t *testing.T) {
	src := NewStreamSource()
	src.SetPermission(false)

	err := src.Acquire(context.Background())
	var permErr *PermissionError
	if !errors.As(err, &permErr) || !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}

	src.SetPermission(true)
	if err := src.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after grant err: %v", err)
	}
}

func TestStreamSourceLastPushCountsDroppedFrames(t *testing.T) {
	src := NewStreamSource()
	if !src.LastPush().IsZero() {
		t.Fatal("fresh source reported a push")
	}

	before := time.Now()
	if src.Push([]byte{0x01, 0x00}) {
		t.Fatal("frame accepted before Acquire")
	}
	if src.LastPush().Before(before) {
		t.Fatalf("dropped frame not recorded, last push %v", src.LastPush())
	}
}
