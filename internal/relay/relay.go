// Package relay publishes chart activity to SSE clients.
package relay

import (
	"log/slog"

	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
	"github.com/dgnsrekt/tv_overlay/internal/undo"
)

// Feed names.
const (
	FeedUndo       = "undo"
	FeedProjection = "projection"
	FeedDrawings   = "drawings"
)

// Envelope wraps every payload with the chart it came from.
type Envelope struct {
	Chart string `json:"chart"`
	Data  any    `json:"data"`
}

// Sources are the chart components a Relay listens to. Nil members are
// skipped.
type Sources struct {
	Projection *projection.Manager
	Drawings   *drawing.Manager
	History    *undo.Manager
}

// Relay forwards one chart's events to a Broker. Attach and Detach must run
// on the chart's scheduler, like every other call into its managers.
type Relay struct {
	chart  string
	broker *Broker
	detach []func()
}

func NewRelay(chart string, broker *Broker) *Relay {
	return &Relay{chart: chart, broker: broker}
}

// Attach subscribes to src. The undo feed gets the current state
// immediately.
func (r *Relay) Attach(src Sources) {
	if p := src.Projection; p != nil {
		id := p.AddEventListener(func(ev projection.Event) {
			if ev.Type != projection.EventProjected || (ev.Projected == 0 && ev.Failed == 0) {
				return
			}
			r.publish(FeedProjection, ev)
		})
		r.detach = append(r.detach, func() { p.RemoveEventListener(id) })
	}
	if d := src.Drawings; d != nil {
		r.detach = append(r.detach, d.Subscribe(func(c drawing.Change) {
			r.publish(FeedDrawings, c)
		}))
	}
	if h := src.History; h != nil {
		r.detach = append(r.detach, h.Subscribe(func(s undo.State) {
			r.publish(FeedUndo, s)
		}))
	}
	slog.Info("relay attached", "chart", r.chart, "sources", len(r.detach))
}

// Detach drops every subscription made by Attach.
func (r *Relay) Detach() {
	for _, fn := range r.detach {
		fn()
	}
	r.detach = nil
}

func (r *Relay) publish(feed string, data any) {
	r.broker.PublishJSON(feed, Envelope{Chart: r.chart, Data: data})
}
