package frame

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the frame period used when none is configured.
const DefaultInterval = 16 * time.Millisecond

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("frame loop closed")

// Loop is the real scheduler: a single goroutine draining a task queue and
// firing frame callbacks on a fixed tick.
type Loop struct {
	interval time.Duration
	tasks    chan func()
	done     chan struct{}
	closeMu  sync.Once

	// owned by the loop goroutine, guarded by mu for RequestFrame/CancelFrame
	// calls made from other goroutines.
	mu     sync.Mutex
	nextID ID
	frames map[ID]func()
	order  []ID
}

// NewLoop starts a loop ticking every interval.
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	l := &Loop{
		interval: interval,
		tasks:    make(chan func(), 256),
		done:     make(chan struct{}),
		frames:   make(map[ID]func()),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.tasks:
			l.safeCall(fn)
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	l.mu.Lock()
	if len(l.order) == 0 {
		l.mu.Unlock()
		return
	}
	due := make([]func(), 0, len(l.order))
	for _, id := range l.order {
		if fn, ok := l.frames[id]; ok {
			due = append(due, fn)
		}
	}
	l.frames = make(map[ID]func())
	l.order = nil
	l.mu.Unlock()

	for _, fn := range due {
		l.safeCall(fn)
	}
}

func (l *Loop) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("frame callback panicked", "panic", r)
		}
	}()
	fn()
}

func (l *Loop) RequestFrame(fn func()) ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.frames[l.nextID] = fn
	l.order = append(l.order, l.nextID)
	return l.nextID
}

func (l *Loop) CancelFrame(id ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.frames, id)
}

func (l *Loop) Every(d time.Duration, fn func()) func() {
	stop := make(chan struct{})
	exited := make(chan struct{})
	var once sync.Once
	go func() {
		defer close(exited)
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-l.done:
				return
			case <-t.C:
				select {
				case l.tasks <- fn:
				case <-stop:
					return
				case <-l.done:
					return
				}
			}
		}
	}()
	return func() {
		once.Do(func() { close(stop) })
		<-exited
	}
}

// Do must not be called from the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.tasks <- task:
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Pending frames are dropped.
func (l *Loop) Close() {
	l.closeMu.Do(func() { close(l.done) })
}
