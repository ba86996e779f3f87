package projection

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// DefaultPollInterval is how often PollingWatcher samples the viewport.
const DefaultPollInterval = 100 * time.Millisecond

// ViewportWatcher reports pan/zoom/scroll changes. onChange is always invoked
// on the scheduler thread.
type ViewportWatcher interface {
	Start(onChange func(reason string))
	Stop()
}

type viewState struct {
	rng  renderer.VisibleRange
	size renderer.Size
}

// PollingWatcher samples the visible range and chart size on an interval and
// reports when either differs from the last sample. It is the fallback for
// renderers that do not expose viewport events.
type PollingWatcher struct {
	r        renderer.Renderer
	sched    frame.Scheduler
	interval time.Duration

	last     *viewState
	onChange func(string)
	stop     func()
}

// NewPollingWatcher creates a watcher polling r every interval.
func NewPollingWatcher(r renderer.Renderer, sched frame.Scheduler, interval time.Duration) *PollingWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingWatcher{r: r, sched: sched, interval: interval}
}

func (w *PollingWatcher) Start(onChange func(string)) {
	if w.stop != nil {
		return
	}
	w.onChange = onChange
	w.stop = w.sched.Every(w.interval, w.poll)
}

func (w *PollingWatcher) Stop() {
	if w.stop == nil {
		return
	}
	w.stop()
	w.stop = nil
	w.last = nil
}

func (w *PollingWatcher) poll() {
	ctx := context.Background()
	rng, err := w.r.GetVisibleRange(ctx)
	if err != nil {
		slog.Debug("viewport poll failed", "error", err)
		return
	}
	size, err := w.r.GetSize(ctx)
	if err != nil {
		slog.Debug("viewport poll failed", "error", err)
		return
	}
	cur := viewState{rng: rng, size: size}
	prev := w.last
	w.last = &cur
	if prev == nil || *prev == cur {
		return
	}
	reason := ReasonViewport
	if prev.size != cur.size {
		reason = ReasonResize
	}
	if w.onChange != nil {
		w.onChange(reason)
	}
}

// NativeWatcher forwards viewport events from a renderer that emits them.
// Events are re-posted onto the scheduler thread.
type NativeWatcher struct {
	n      renderer.ViewportNotifier
	sched  frame.Scheduler
	cancel func()
}

// NewNativeWatcher wraps n.
func NewNativeWatcher(n renderer.ViewportNotifier, sched frame.Scheduler) *NativeWatcher {
	return &NativeWatcher{n: n, sched: sched}
}

func (w *NativeWatcher) Start(onChange func(string)) {
	if w.cancel != nil {
		return
	}
	w.cancel = w.n.OnViewportChange(func() {
		w.sched.RequestFrame(func() { onChange(ReasonViewport) })
	})
}

func (w *NativeWatcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.cancel = nil
}
