package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tv_overlay/internal/chart"
	"github.com/dgnsrekt/tv_overlay/internal/savestore"
)

func registerLayoutHandlers(api huma.API, svc Service, legacy savestore.LegacySource) {
	type layoutListOutput struct {
		Body struct {
			Layouts []savestore.LayoutInfo `json:"layouts"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-layouts", Method: http.MethodGet, Path: "/api/v1/layouts", Summary: "List saved layouts, newest first", Tags: []string{"Layout"}},
		func(ctx context.Context, input *struct{}) (*layoutListOutput, error) {
			list, err := svc.ListLayouts(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &layoutListOutput{}
			out.Body.Layouts = list
			if out.Body.Layouts == nil {
				out.Body.Layouts = []savestore.LayoutInfo{}
			}
			return out, nil
		})

	type layoutNameInput struct {
		Name string `path:"name"`
	}
	type layoutOutput struct {
		Body savestore.LayoutInfo
	}
	huma.Register(api, huma.Operation{OperationID: "save-layout", Method: http.MethodPut, Path: "/api/v1/layouts/{name}", Summary: "Save the chart state under a name", Tags: []string{"Layout"}},
		func(ctx context.Context, input *layoutNameInput) (*layoutOutput, error) {
			info, err := svc.SaveLayout(ctx, input.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			return &layoutOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "load-layout", Method: http.MethodPost, Path: "/api/v1/layouts/{name}/load", Summary: "Replace the chart state with a saved layout", Tags: []string{"Layout"}},
		func(ctx context.Context, input *layoutNameInput) (*layoutOutput, error) {
			info, err := svc.LoadLayout(ctx, input.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			return &layoutOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-layout", Method: http.MethodDelete, Path: "/api/v1/layouts/{name}", Summary: "Delete a saved layout", Tags: []string{"Layout"}},
		func(ctx context.Context, input *layoutNameInput) (*statusOutput, error) {
			if err := svc.DeleteLayout(ctx, input.Name); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	type migrateInput struct {
		Force bool `query:"force" doc:"Run even if the migration marker is set"`
	}
	type migrateOutput struct {
		Body chart.MigrationResult
	}
	huma.Register(api, huma.Operation{OperationID: "migrate-legacy", Method: http.MethodPost, Path: "/api/v1/migrate", Summary: "Migrate legacy pixel-space overlays into the drawing store", Tags: []string{"Layout"}},
		func(ctx context.Context, input *migrateInput) (*migrateOutput, error) {
			res, err := svc.Migrate(ctx, legacy, input.Force)
			if err != nil {
				return nil, mapErr(err)
			}
			return &migrateOutput{Body: res}, nil
		})
}
