package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tv_overlay/internal/controller"
	"github.com/dgnsrekt/tv_overlay/internal/creation"
	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
)

// pointInput is an anchor as sent by clients. A missing id is generated.
type pointInput struct {
	ID string  `json:"id,omitempty"`
	T  int64   `json:"t" doc:"Timestamp in milliseconds"`
	P  float64 `json:"p" doc:"Price"`
}

func toPoints(in []pointInput) []overlay.OverlayPoint {
	out := make([]overlay.OverlayPoint, len(in))
	for i, p := range in {
		out[i] = overlay.OverlayPoint{ID: p.ID, T: p.T, P: overlay.Price(p.P)}
	}
	return out
}

type overlayOutput struct {
	Body overlay.DataSpaceOverlay
}

func registerDrawingHandlers(api huma.API, svc Service) {
	type shapesOutput struct {
		Body struct {
			Shapes []overlay.TypeInfo `json:"shapes"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-drawing-shapes", Method: http.MethodGet, Path: "/api/v1/drawings/shapes", Summary: "List supported overlay types with point counts", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *struct{}) (*shapesOutput, error) {
			out := &shapesOutput{}
			out.Body.Shapes = svc.Shapes()
			return out, nil
		})

	type symbolQuery struct {
		Symbol string `query:"symbol" doc:"Symbol key. Omit for the active symbol."`
	}
	type drawingListOutput struct {
		Body struct {
			Drawings []overlay.Drawing `json:"drawings"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-drawings", Method: http.MethodGet, Path: "/api/v1/drawings", Summary: "List drawings of a symbol", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *symbolQuery) (*drawingListOutput, error) {
			list, err := svc.ListDrawings(ctx, input.Symbol)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &drawingListOutput{}
			out.Body.Drawings = list
			if out.Body.Drawings == nil {
				out.Body.Drawings = []overlay.Drawing{}
			}
			return out, nil
		})

	type createInput struct {
		Body struct {
			Type    overlay.OverlayType   `json:"type" doc:"Overlay type, see /api/v1/drawings/shapes"`
			Points  []pointInput          `json:"points"`
			ID      string                `json:"id,omitempty"`
			Symbol  string                `json:"symbol,omitempty" doc:"Symbol key. Omit for the active symbol."`
			Style   *overlay.OverlayStyle `json:"style,omitempty"`
			GroupID string                `json:"groupId,omitempty"`
			Hidden  bool                  `json:"hidden,omitempty"`
			Lock    bool                  `json:"lock,omitempty"`
			Extend  map[string]any        `json:"extendData,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "create-drawing", Method: http.MethodPost, Path: "/api/v1/drawings", Summary: "Create a data-space overlay", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *createInput) (*overlayOutput, error) {
			o, err := svc.CreateDrawing(ctx, controller.CreateRequest{
				Type:   input.Body.Type,
				Points: toPoints(input.Body.Points),
				Options: creation.Options{
					ID:        input.Body.ID,
					SymbolKey: overlay.SymbolKey(input.Body.Symbol),
					Style:     input.Body.Style,
					GroupID:   input.Body.GroupID,
					Hidden:    input.Body.Hidden,
					Lock:      input.Body.Lock,
					Extend:    input.Body.Extend,
				},
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &overlayOutput{Body: o}, nil
		})

	type statsOutput struct {
		Body drawing.Stats
	}
	huma.Register(api, huma.Operation{OperationID: "drawing-stats", Method: http.MethodGet, Path: "/api/v1/drawings/stats", Summary: "Drawing counts", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *struct{}) (*statsOutput, error) {
			stats, err := svc.Stats(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &statsOutput{Body: stats}, nil
		})

	type exportOutput struct {
		Body map[overlay.SymbolKey][]overlay.Drawing
	}
	huma.Register(api, huma.Operation{OperationID: "export-drawings", Method: http.MethodGet, Path: "/api/v1/drawings/export", Summary: "Export every stored drawing grouped by symbol", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *struct{}) (*exportOutput, error) {
			all, err := svc.ExportDrawings(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &exportOutput{Body: all}, nil
		})

	type importInput struct {
		Body map[overlay.SymbolKey][]overlay.Drawing
	}
	huma.Register(api, huma.Operation{OperationID: "import-drawings", Method: http.MethodPut, Path: "/api/v1/drawings/import", Summary: "Replace the drawing store", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *importInput) (*statsOutput, error) {
			stats, err := svc.ImportDrawings(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &statsOutput{Body: stats}, nil
		})

	type clearOutput struct {
		Body struct {
			Removed int `json:"removed"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "clear-drawings", Method: http.MethodDelete, Path: "/api/v1/drawings", Summary: "Delete every drawing of a symbol", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *symbolQuery) (*clearOutput, error) {
			n, err := svc.ClearDrawings(ctx, input.Symbol)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &clearOutput{}
			out.Body.Removed = n
			return out, nil
		})

	type drawingIDInput struct {
		ID string `path:"id"`
	}
	type drawingOutput struct {
		Body overlay.Drawing
	}
	huma.Register(api, huma.Operation{OperationID: "get-drawing", Method: http.MethodGet, Path: "/api/v1/drawings/{id}", Summary: "Get drawing by ID", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *drawingIDInput) (*drawingOutput, error) {
			d, err := svc.GetDrawing(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &drawingOutput{Body: d}, nil
		})

	type updatePointsInput struct {
		ID   string `path:"id"`
		Body struct {
			Points []pointInput `json:"points"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "update-drawing-points", Method: http.MethodPut, Path: "/api/v1/drawings/{id}/points", Summary: "Replace the anchors of a drawing", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *updatePointsInput) (*overlayOutput, error) {
			o, err := svc.UpdateDrawingPoints(ctx, input.ID, toPoints(input.Body.Points))
			if err != nil {
				return nil, mapErr(err)
			}
			return &overlayOutput{Body: o}, nil
		})

	type removeInput struct {
		ID     string `path:"id"`
		Symbol string `query:"symbol" doc:"Symbol key. Omit for the active symbol."`
	}
	huma.Register(api, huma.Operation{OperationID: "remove-drawing", Method: http.MethodDelete, Path: "/api/v1/drawings/{id}", Summary: "Remove a drawing", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *removeInput) (*statusOutput, error) {
			if err := svc.RemoveDrawing(ctx, input.Symbol, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	type visibilityInput struct {
		ID   string `path:"id"`
		Body struct {
			Visible bool `json:"visible"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-drawing-visibility", Method: http.MethodPut, Path: "/api/v1/drawings/{id}/visibility", Summary: "Show or hide a drawing", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *visibilityInput) (*statusOutput, error) {
			if err := svc.SetVisibility(ctx, input.ID, input.Body.Visible); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	type lockInput struct {
		ID   string `path:"id"`
		Body struct {
			Locked bool `json:"locked"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-drawing-lock", Method: http.MethodPut, Path: "/api/v1/drawings/{id}/lock", Summary: "Lock or unlock a drawing", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *lockInput) (*statusOutput, error) {
			if err := svc.SetLock(ctx, input.ID, input.Body.Locked); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	type pixelInput struct {
		Body struct {
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
			PaneID string  `json:"paneId,omitempty" doc:"Pane the pixel belongs to. Defaults to the candle pane."`
		}
	}
	type pointOutput struct {
		Body overlay.OverlayPoint
	}
	huma.Register(api, huma.Operation{OperationID: "point-from-pixel", Method: http.MethodPost, Path: "/api/v1/point-from-pixel", Summary: "Convert a pixel position into a data-space point", Tags: []string{"Drawings"}},
		func(ctx context.Context, input *pixelInput) (*pointOutput, error) {
			p, err := svc.PointFromPixel(ctx, input.Body.X, input.Body.Y, input.Body.PaneID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &pointOutput{Body: p}, nil
		})
}
