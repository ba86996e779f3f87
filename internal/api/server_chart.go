package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tv_overlay/internal/controller"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

func registerChartHandlers(api huma.API, svc Service) {
	type symbolOutput struct {
		Body controller.SymbolState
	}
	huma.Register(api, huma.Operation{OperationID: "get-symbol", Method: http.MethodGet, Path: "/api/v1/symbol", Summary: "Get active symbol and timeframe", Tags: []string{"Chart"}},
		func(ctx context.Context, input *struct{}) (*symbolOutput, error) {
			state, err := svc.GetSymbol(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &symbolOutput{Body: state}, nil
		})

	type setSymbolInput struct {
		Body struct {
			Symbol string `json:"symbol" doc:"Symbol to activate, e.g. DSEBD:GP"`
		}
	}
	type setSymbolOutput struct {
		Body struct {
			Symbol overlay.SymbolKey `json:"symbol"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-symbol", Method: http.MethodPut, Path: "/api/v1/symbol", Summary: "Switch active symbol", Tags: []string{"Chart"}},
		func(ctx context.Context, input *setSymbolInput) (*setSymbolOutput, error) {
			key, err := svc.SetSymbol(ctx, input.Body.Symbol)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &setSymbolOutput{}
			out.Body.Symbol = key
			return out, nil
		})

	type setTimeframeInput struct {
		Body struct {
			Timeframe string `json:"timeframe" doc:"Chart interval, e.g. 1D"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-timeframe", Method: http.MethodPut, Path: "/api/v1/timeframe", Summary: "Change timeframe and reproject overlays", Tags: []string{"Chart"}},
		func(ctx context.Context, input *setTimeframeInput) (*statusOutput, error) {
			if err := svc.SetTimeframe(ctx, input.Body.Timeframe); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	// --- Indicators ---

	type indicatorListOutput struct {
		Body struct {
			Indicators []renderer.IndicatorSpec `json:"indicators"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-indicators", Method: http.MethodGet, Path: "/api/v1/indicators", Summary: "List indicators on the chart", Tags: []string{"Indicators"}},
		func(ctx context.Context, input *struct{}) (*indicatorListOutput, error) {
			specs, err := svc.Indicators(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &indicatorListOutput{}
			out.Body.Indicators = specs
			if out.Body.Indicators == nil {
				out.Body.Indicators = []renderer.IndicatorSpec{}
			}
			return out, nil
		})

	type addIndicatorInput struct {
		Body struct {
			Name   string    `json:"name" doc:"Indicator name, e.g. MA or VOL"`
			PaneID string    `json:"paneId,omitempty" doc:"Target pane. Empty creates a new pane unless isStack is set."`
			Params []float64 `json:"calcParams,omitempty"`
			Stack  bool      `json:"isStack,omitempty" doc:"Stack on an existing pane instead of opening a new one"`
		}
	}
	type addIndicatorOutput struct {
		Body struct {
			Name   string `json:"name"`
			PaneID string `json:"paneId"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "add-indicator", Method: http.MethodPost, Path: "/api/v1/indicators", Summary: "Add an indicator", Tags: []string{"Indicators"}},
		func(ctx context.Context, input *addIndicatorInput) (*addIndicatorOutput, error) {
			pane, err := svc.AddIndicator(ctx, renderer.IndicatorSpec{
				Name:   input.Body.Name,
				PaneID: input.Body.PaneID,
				Params: input.Body.Params,
				Stack:  input.Body.Stack,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &addIndicatorOutput{}
			out.Body.Name = input.Body.Name
			out.Body.PaneID = pane
			return out, nil
		})

	type removeIndicatorInput struct {
		Name   string `path:"name"`
		PaneID string `query:"pane" doc:"Pane holding the indicator. Empty removes the first match."`
	}
	huma.Register(api, huma.Operation{OperationID: "remove-indicator", Method: http.MethodDelete, Path: "/api/v1/indicators/{name}", Summary: "Remove an indicator", Tags: []string{"Indicators"}},
		func(ctx context.Context, input *removeIndicatorInput) (*statusOutput, error) {
			if err := svc.RemoveIndicator(ctx, input.Name, input.PaneID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	// --- Theme ---

	type themeInput struct {
		Body struct {
			Theme string `json:"theme" doc:"Theme name passed to the renderer, e.g. dark"`
		}
	}
	type themeOutput struct {
		Body controller.ThemeResult
	}
	huma.Register(api, huma.Operation{OperationID: "apply-theme", Method: http.MethodPut, Path: "/api/v1/theme", Summary: "Apply a theme, or hold it until the renderer is ready", Tags: []string{"Chart"}},
		func(ctx context.Context, input *themeInput) (*themeOutput, error) {
			res, err := svc.ApplyTheme(ctx, input.Body.Theme)
			if err != nil {
				return nil, mapErr(err)
			}
			return &themeOutput{Body: res}, nil
		})
}
