// Package renderertest provides a call-recording renderer wrapper with
// failure injection.
package renderertest

import (
	"context"
	"sync"

	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// Call is one recorded renderer invocation.
type Call struct {
	Op string
	ID string
}

// Recorder wraps a renderer, records mutating calls and can be told to fail
// specific operations.
type Recorder struct {
	renderer.Renderer

	mu    sync.Mutex
	calls []Call
	fail  map[string]error // op or op+":"+id → error
}

// New wraps r.
func New(r renderer.Renderer) *Recorder {
	return &Recorder{Renderer: r, fail: make(map[string]error)}
}

// FailOn makes every call of op return err. A nil err clears it.
func (r *Recorder) FailOn(op string, err error) { r.setFail(op, err) }

// FailOnID makes op fail only for the given overlay id.
func (r *Recorder) FailOnID(op, id string, err error) { r.setFail(op+":"+id, err) }

func (r *Recorder) setFail(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, key)
		return
	}
	r.fail[key] = err
}

func (r *Recorder) record(op, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, ID: id})
	if err, ok := r.fail[op+":"+id]; ok {
		return err
	}
	return r.fail[op]
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many times op was called, optionally for one id.
func (r *Recorder) Count(op, id string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op && (id == "" || c.ID == id) {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *Recorder) CreateOverlay(ctx context.Context, d renderer.OverlayDescriptor) (string, error) {
	if err := r.record("CreateOverlay", d.ID); err != nil {
		return "", err
	}
	return r.Renderer.CreateOverlay(ctx, d)
}

func (r *Recorder) OverrideOverlay(ctx context.Context, d renderer.OverlayDescriptor) error {
	if err := r.record("OverrideOverlay", d.ID); err != nil {
		return err
	}
	return r.Renderer.OverrideOverlay(ctx, d)
}

func (r *Recorder) RemoveOverlay(ctx context.Context, id string) error {
	if err := r.record("RemoveOverlay", id); err != nil {
		return err
	}
	return r.Renderer.RemoveOverlay(ctx, id)
}

func (r *Recorder) GetVisibleRange(ctx context.Context) (renderer.VisibleRange, error) {
	if err := r.record("GetVisibleRange", ""); err != nil {
		return renderer.VisibleRange{}, err
	}
	return r.Renderer.GetVisibleRange(ctx)
}

func (r *Recorder) CreateIndicator(ctx context.Context, spec renderer.IndicatorSpec) (string, error) {
	if err := r.record("CreateIndicator", spec.Name); err != nil {
		return "", err
	}
	return r.Renderer.CreateIndicator(ctx, spec)
}

func (r *Recorder) RemoveIndicator(ctx context.Context, name, paneID string) error {
	if err := r.record("RemoveIndicator", name); err != nil {
		return err
	}
	return r.Renderer.RemoveIndicator(ctx, name, paneID)
}

func (r *Recorder) ConvertToPixel(ctx context.Context, points []renderer.DataPoint, opts renderer.PaneOptions) ([]renderer.Pixel, error) {
	if err := r.record("ConvertToPixel", ""); err != nil {
		return nil, err
	}
	return r.Renderer.ConvertToPixel(ctx, points, opts)
}
