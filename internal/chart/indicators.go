package chart

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/undo"
)

// AddIndicator queues a render transaction that places spec on the chart and
// records it for undo. done runs on the scheduler with the pane the
// indicator landed in.
func (i *Instance) AddIndicator(ctx context.Context, spec renderer.IndicatorSpec, done func(paneID string, err error)) {
	var (
		recorded *renderer.IndicatorSpec
		paneID   string
	)
	i.queue.Submit(frame.Transaction{
		Name: "add_indicator:" + spec.Name,
		Mutate: func() error {
			if spec.Name == "" {
				return overlay.NewError(overlay.CodeValidation, "indicator name is required", nil)
			}
			placeholder := spec
			i.state.AddIndicator(placeholder)
			recorded = &placeholder
			return nil
		},
		Measure: func() error {
			_, err := i.r.GetSize(ctx)
			return err
		},
		Compute: func() error {
			if spec.PaneID == "" && spec.Stack {
				spec.PaneID = renderer.CandlePane
			}
			return nil
		},
		Draw: func() error {
			pane, err := i.r.CreateIndicator(ctx, spec)
			if err != nil {
				i.cfg.Metrics.RendererFailed("create_indicator")
				return overlay.NewError(overlay.CodeRendererFailure, fmt.Sprintf("create indicator %s", spec.Name), err)
			}
			paneID = pane
			return nil
		},
		Commit: func() error {
			placed := spec
			placed.PaneID = paneID
			i.state.ReplaceIndicator(*recorded, placed)
			_, err := i.history.AddAction(undo.Action{Type: undo.AddIndicator, Data: undo.Data{Indicator: &placed}})
			return err
		},
		Cleanup: func(err error) {
			if err != nil && recorded != nil {
				i.state.ReplaceIndicator(*recorded, renderer.IndicatorSpec{})
			}
			if err == nil {
				i.proj.RequestProjection(projection.ReasonResize)
			}
		},
		Done: func(err error) {
			if done != nil {
				done(paneID, unwrapPhase(err))
			}
		},
	})
}

// RemoveIndicator queues a render transaction that removes an indicator and
// records it for undo. An empty paneID matches the first indicator with
// that name.
func (i *Instance) RemoveIndicator(ctx context.Context, name, paneID string, done func(err error)) {
	var removed *renderer.IndicatorSpec
	i.queue.Submit(frame.Transaction{
		Name: "remove_indicator:" + name,
		Mutate: func() error {
			spec, ok := i.findIndicator(name, paneID)
			if !ok {
				return overlay.NewError(overlay.CodeNotFound, fmt.Sprintf("indicator %s not found", name), nil)
			}
			i.state.RemoveIndicator(spec.Name, spec.PaneID)
			removed = &spec
			return nil
		},
		Draw: func() error {
			if err := i.r.RemoveIndicator(ctx, removed.Name, removed.PaneID); err != nil {
				i.cfg.Metrics.RendererFailed("remove_indicator")
				return overlay.NewError(overlay.CodeRendererFailure, fmt.Sprintf("remove indicator %s", name), err)
			}
			return nil
		},
		Commit: func() error {
			_, err := i.history.AddAction(undo.Action{Type: undo.RemoveIndicator, Data: undo.Data{Indicator: removed}})
			return err
		},
		Cleanup: func(err error) {
			if err != nil && removed != nil {
				i.state.AddIndicator(*removed)
			}
			if err == nil {
				i.proj.RequestProjection(projection.ReasonResize)
			}
		},
		Done: func(err error) {
			if done != nil {
				done(unwrapPhase(err))
			}
		},
	})
}

func (i *Instance) findIndicator(name, paneID string) (renderer.IndicatorSpec, bool) {
	for _, spec := range i.state.Indicators() {
		if spec.Name == name && (paneID == "" || spec.PaneID == paneID) {
			return spec, true
		}
	}
	return renderer.IndicatorSpec{}, false
}

// ApplyAddIndicator places an indicator without recording history. It is
// the replay path of the undo manager.
func (i *Instance) ApplyAddIndicator(ctx context.Context, spec renderer.IndicatorSpec) (string, error) {
	pane, err := i.r.CreateIndicator(ctx, spec)
	if err != nil {
		i.cfg.Metrics.RendererFailed("create_indicator")
		return "", err
	}
	spec.PaneID = pane
	i.state.AddIndicator(spec)
	i.proj.RequestProjection(projection.ReasonResize)
	return pane, nil
}

// ApplyRemoveIndicator removes an indicator without recording history.
func (i *Instance) ApplyRemoveIndicator(ctx context.Context, spec renderer.IndicatorSpec) error {
	if err := i.r.RemoveIndicator(ctx, spec.Name, spec.PaneID); err != nil {
		i.cfg.Metrics.RendererFailed("remove_indicator")
		return err
	}
	i.state.RemoveIndicator(spec.Name, spec.PaneID)
	i.proj.RequestProjection(projection.ReasonResize)
	return nil
}

// QueuedTransactions reports render transactions not yet finished.
func (i *Instance) QueuedTransactions() int { return i.queue.Len() }

func unwrapPhase(err error) error {
	var pe *frame.PhaseError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
