package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

func boolPtr(v bool) *bool { return &v }

func waitStatus(t *testing.T, a Adapter, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Status().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never reached %s, last %+v", want, a.Status())
}

func collectMessages(t *testing.T, a Adapter, n int) []transcript.Message {
	t.Helper()
	var msgs []transcript.Message
	timeout := time.After(2 * time.Second)
	pos := 0
	for len(msgs) < n {
		select {
		case ev := <-a.Events():
			if ev.Frame == nil {
				continue
			}
			if msg, ok := Normalize(ev.Frame, pos); ok {
				msgs = append(msgs, msg)
			}
			pos++
		case <-timeout:
			t.Fatalf("received %d of %d messages", len(msgs), n)
		}
	}
	return msgs
}

func TestMockConnectsAfterDelay(t *testing.T) {
	a := NewMock(MockOptions{Delay: 20 * time.Millisecond})
	defer a.Disconnect()

	start := time.Now()
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("mock connected before its delay")
	}
	if got := a.Status().Status; got != StatusConnected {
		t.Fatalf("got %s want connected", got)
	}

	msgs := collectMessages(t, a, len(DefaultMockTranscript()))
	if msgs[1].Role != transcript.Voter || msgs[1].Emotions == nil {
		t.Fatalf("unexpected second message %+v", msgs[1])
	}
}

func TestConnectIsIdempotentAndShared(t *testing.T) {
	a := NewMock(MockOptions{Delay: 30 * time.Millisecond, Messages: []transcript.Message{}})
	defer a.Disconnect()

	var dials int
	var mu sync.Mutex
	dial := func(ctx context.Context) (*link, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		return &link{}, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = a.connect(context.Background(), dial)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d got %v", i, err)
		}
	}
	if dials != 1 {
		t.Fatalf("expected a single dial, got %d", dials)
	}
	if err := a.connect(context.Background(), dial); err != nil || dials != 1 {
		t.Fatalf("connect after connected should be a no-op, err=%v dials=%d", err, dials)
	}
}

func TestDisconnectDuringConnect(t *testing.T) {
	a := NewMock(MockOptions{Delay: time.Second})

	result := make(chan error, 1)
	go func() { result <- a.Connect(context.Background()) }()

	waitStatus(t, a, StatusConnecting)
	a.Disconnect()

	select {
	case err := <-result:
		if !errors.Is(err, ErrConnectAborted) {
			t.Fatalf("expected ErrConnectAborted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending connect never returned")
	}

	if got := a.Status().Status; got != StatusEnded {
		t.Fatalf("got %s want ended", got)
	}
	if err := a.Connect(context.Background()); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("ended instance must refuse Connect, got %v", err)
	}
}

func TestAbandonedConnectCanBeRetried(t *testing.T) {
	a := NewMock(MockOptions{Delay: 200 * time.Millisecond, Messages: []transcript.Message{}})
	defer a.Disconnect()
	var released int
	a.cleanup = func() { released++ }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the caller's deadline error, got %v", err)
	}
	if st := a.Status(); st.Status != StatusNotStarted || st.Reason != "" {
		t.Fatalf("abandoned connect should leave the instance not-started, got %+v", st)
	}
	if released != 1 {
		t.Fatalf("expected audio released once, got %d", released)
	}

	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("retry on the same instance failed: %v", err)
	}
	if got := a.Status().Status; got != StatusConnected {
		t.Fatalf("got %s want connected", got)
	}
}

func TestLateDialResultIsDiscarded(t *testing.T) {
	l := newLifecycle(KindMock)
	closed := make(chan struct{})
	release := make(chan struct{})

	result := make(chan error, 1)
	go func() {
		result <- l.connect(context.Background(), func(context.Context) (*link, error) {
			// ignore cancellation and succeed late
			<-release
			return &link{close: func() { close(closed) }}, nil
		})
	}()

	waitStatus(t, &MockAdapter{lifecycle: l}, StatusConnecting)
	l.disconnect()
	close(release)

	if err := <-result; !errors.Is(err, ErrConnectAborted) {
		t.Fatalf("expected ErrConnectAborted, got %v", err)
	}
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("late link was not closed")
	}
	if got := l.Status().Status; got != StatusEnded {
		t.Fatalf("got %s want ended", got)
	}
}

func TestDisconnectBeforeStartIsNoop(t *testing.T) {
	a := NewMock(MockOptions{})
	a.Disconnect()
	if got := a.Status().Status; got != StatusNotStarted {
		t.Fatalf("got %s want not-started", got)
	}
}

func TestPauseImpliesMuteAndRestores(t *testing.T) {
	a := NewMock(MockOptions{Messages: []transcript.Message{}})
	defer a.Disconnect()

	if a.TogglePause(nil) {
		t.Fatal("pause before connect must be ignored")
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}

	if !a.TogglePause(nil) {
		t.Fatal("expected paused")
	}
	if !a.Muted() || a.Status().Status != StatusPaused {
		t.Fatalf("pause should mute, status %+v muted %v", a.Status(), a.Muted())
	}
	if !a.TogglePause(boolPtr(true)) {
		t.Fatal("explicit pause on paused instance should stay paused")
	}
	if a.TogglePause(nil) {
		t.Fatal("expected resumed")
	}
	if a.Muted() {
		t.Fatal("resume should restore the unmuted state")
	}

	a.Mute()
	a.TogglePause(boolPtr(true))
	a.TogglePause(boolPtr(false))
	if !a.Muted() {
		t.Fatal("resume should keep an explicit mute")
	}
}

func TestFailIsTerminal(t *testing.T) {
	a := NewMock(MockOptions{Messages: []transcript.Message{}})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	a.fail(errors.New("socket dropped"))

	st := a.Status()
	if st.Status != StatusError || st.Reason != "socket dropped" {
		t.Fatalf("unexpected status %+v", st)
	}
	a.Disconnect()
	if a.Status().Status != StatusError {
		t.Fatal("disconnect must not rewrite a terminal error")
	}
}

func TestReplayPlaysInOrderAndHonorsPause(t *testing.T) {
	base := time.Unix(0, 0)
	msgs := []transcript.Message{
		{ID: "a", Role: transcript.Canvasser, Content: "one", Timestamp: base},
		{ID: "b", Role: transcript.Voter, Content: "two", Timestamp: base.Add(2 * time.Second)},
		{ID: "c", Role: transcript.Canvasser, Content: "three"},
	}
	a := NewReplay(ReplayOptions{Messages: msgs, Speed: 100, Gap: time.Second})
	defer a.Disconnect()

	if got := a.Delay(1); got != 20*time.Millisecond {
		t.Fatalf("Delay(1) got %v want 20ms", got)
	}
	if got := a.Delay(2); got != 10*time.Millisecond {
		t.Fatalf("Delay(2) got %v want 10ms", got)
	}

	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}

	got := collectMessages(t, a, 1)
	if got[0].ID != "a" {
		t.Fatalf("got %s want a", got[0].ID)
	}
	a.TogglePause(boolPtr(true))

	quiet := time.After(80 * time.Millisecond)
drain:
	for {
		select {
		case ev := <-a.Events():
			if ev.Frame != nil {
				t.Fatal("replay advanced while paused")
			}
		case <-quiet:
			break drain
		}
	}

	a.TogglePause(boolPtr(false))
	rest := collectMessages(t, a, 2)
	if rest[0].ID != "b" || rest[1].ID != "c" {
		t.Fatalf("unexpected order %s,%s", rest[0].ID, rest[1].ID)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" Alternate "); err != nil || k != KindAlternate {
		t.Fatalf("got %s,%v", k, err)
	}
	if _, err := ParseKind("carrier-pigeon"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
