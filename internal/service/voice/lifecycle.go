package voice

import (
	"context"
	"log"
	"sync"
)

const eventBuffer = 256

// link is an established backend connection. start launches its loops and
// close tears it down; both may be nil.
type link struct {
	start func(ctx context.Context)
	close func()
}

type dialFunc func(ctx context.Context) (*link, error)

type connectAttempt struct {
	done chan struct{}
	err  error
}

// lifecycle holds the state machine shared by every adapter.
type lifecycle struct {
	kind    Kind
	cleanup func()

	mu               sync.Mutex
	status           StatusInfo
	muted            bool
	mutedBeforePause bool
	attempt          *connectAttempt
	active           *link
	cancelRun        context.CancelFunc
	resumed          chan struct{}
	onPause          func(paused bool)

	events   chan Event
	done     chan struct{}
	doneOnce sync.Once
}

func newLifecycle(kind Kind) *lifecycle {
	resumed := make(chan struct{})
	close(resumed)
	return &lifecycle{
		kind:    kind,
		status:  StatusInfo{Status: StatusNotStarted},
		resumed: resumed,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

func (l *lifecycle) Kind() Kind { return l.kind }

func (l *lifecycle) Events() <-chan Event { return l.events }

func (l *lifecycle) Status() StatusInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *lifecycle) Muted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.muted
}

func (l *lifecycle) Mute() {
	l.mu.Lock()
	l.muted = true
	if l.status.Status == StatusPaused {
		l.mutedBeforePause = true
	}
	l.mu.Unlock()
}

func (l *lifecycle) Unmute() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.Status == StatusPaused {
		// 暂停期间保持静音，恢复时生效
		l.mutedBeforePause = false
		return
	}
	l.muted = false
}

// connect runs dial at most once at a time. A Disconnect that lands while dial
// is in flight wins: the fresh link is closed and the attempt reports ErrConnectAborted.
func (l *lifecycle) connect(ctx context.Context, dial dialFunc) error {
	l.mu.Lock()
	switch l.status.Status {
	case StatusConnected, StatusPaused:
		l.mu.Unlock()
		return nil
	case StatusEnded, StatusError:
		l.mu.Unlock()
		return ErrSessionEnded
	case StatusConnecting:
		attempt := l.attempt
		l.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	attempt := &connectAttempt{done: make(chan struct{})}
	runCtx, cancelRun := context.WithCancel(context.Background())
	l.attempt = attempt
	l.cancelRun = cancelRun
	l.status = StatusInfo{Status: StatusConnecting}
	l.mu.Unlock()
	l.emitStatus(StatusInfo{Status: StatusConnecting})

	dialCtx, cancelDial := context.WithCancel(runCtx)
	stop := context.AfterFunc(ctx, cancelDial)
	established, err := dial(dialCtx)
	stop()
	cancelDial()

	attempt.err = l.finishConnect(ctx, runCtx, established, err)
	close(attempt.done)
	return attempt.err
}

func (l *lifecycle) finishConnect(ctx, runCtx context.Context, established *link, err error) error {
	l.mu.Lock()
	if l.status.Status != StatusConnecting {
		l.mu.Unlock()
		if established != nil && established.close != nil {
			established.close()
		}
		return ErrConnectAborted
	}

	if err != nil && ctx.Err() != nil {
		// 调用方放弃等待，实例回到未开始状态，可再次连接
		l.status = StatusInfo{Status: StatusNotStarted}
		l.attempt = nil
		cancel := l.cancelRun
		l.cancelRun = nil
		l.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if l.cleanup != nil {
			l.cleanup()
		}
		log.Printf("[%s] connect abandoned by caller: %v", l.kind, ctx.Err())
		l.emitStatus(StatusInfo{Status: StatusNotStarted})
		return ctx.Err()
	}

	if err != nil {
		l.mu.Unlock()
		l.fail(err)
		return err
	}

	l.active = established
	l.status = StatusInfo{Status: StatusConnected}
	l.mu.Unlock()

	log.Printf("[%s] connected", l.kind)
	l.emitStatus(StatusInfo{Status: StatusConnected})
	if established != nil && established.start != nil {
		established.start(runCtx)
	}
	return nil
}

// disconnect ends the instance. Not-started and terminal instances are left alone.
func (l *lifecycle) disconnect() {
	l.terminate(StatusInfo{Status: StatusEnded}, StatusConnecting, StatusConnected, StatusPaused)
}

// fail moves any non-terminal instance into the error state.
func (l *lifecycle) fail(err error) {
	if err == nil {
		return
	}
	if l.terminate(StatusInfo{Status: StatusError, Reason: err.Error()},
		StatusNotStarted, StatusConnecting, StatusConnected, StatusPaused) {
		log.Printf("[%s] session failed: %v", l.kind, err)
	}
}

func (l *lifecycle) terminate(next StatusInfo, from ...Status) bool {
	l.mu.Lock()
	allowed := false
	for _, s := range from {
		if l.status.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		l.mu.Unlock()
		return false
	}

	l.status = next
	active := l.active
	l.active = nil
	cancel := l.cancelRun
	l.cancelRun = nil
	select {
	case <-l.resumed:
	default:
		close(l.resumed)
	}
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if active != nil && active.close != nil {
		active.close()
	}
	if l.cleanup != nil {
		l.cleanup()
	}
	l.emitStatus(next)
	l.doneOnce.Do(func() { close(l.done) })
	return true
}

func (l *lifecycle) togglePause(explicit *bool) bool {
	l.mu.Lock()
	current := l.status.Status == StatusPaused
	if !l.status.Live() {
		l.mu.Unlock()
		return current
	}

	target := !current
	if explicit != nil {
		target = *explicit
	}
	if target == current {
		l.mu.Unlock()
		return current
	}

	var next StatusInfo
	if target {
		l.mutedBeforePause = l.muted
		l.muted = true
		l.resumed = make(chan struct{})
		next = StatusInfo{Status: StatusPaused}
	} else {
		l.muted = l.mutedBeforePause
		close(l.resumed)
		next = StatusInfo{Status: StatusConnected}
	}
	l.status = next
	hook := l.onPause
	l.mu.Unlock()

	if hook != nil {
		hook(target)
	}
	l.emitStatus(next)
	return target
}

// waitResumed blocks while the instance is paused.
func (l *lifecycle) waitResumed(ctx context.Context) error {
	l.mu.Lock()
	ch := l.resumed
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emitFrame delivers a frame, waiting for room unless the instance has ended.
func (l *lifecycle) emitFrame(ctx context.Context, frame Frame) bool {
	select {
	case l.events <- Event{Frame: frame}:
		return true
	case <-ctx.Done():
		return false
	case <-l.done:
		return false
	}
}

func (l *lifecycle) emitStatus(info StatusInfo) {
	select {
	case l.events <- Event{Status: &info}:
	default:
		log.Printf("[%s] event buffer full, dropped status %s", l.kind, info.Status)
	}
}
