package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tv_overlay/internal/controller"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
)

func registerHistoryHandlers(api huma.API, svc Service) {
	type historyOutput struct {
		Body controller.HistoryView
	}
	huma.Register(api, huma.Operation{OperationID: "get-history", Method: http.MethodGet, Path: "/api/v1/history", Summary: "Undo and redo stacks, oldest first", Tags: []string{"History"}},
		func(ctx context.Context, input *struct{}) (*historyOutput, error) {
			view, err := svc.History(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &historyOutput{Body: view}, nil
		})

	type stepOutput struct {
		Body controller.HistoryResult
	}
	huma.Register(api, huma.Operation{OperationID: "undo", Method: http.MethodPost, Path: "/api/v1/undo", Summary: "Undo the last action", Tags: []string{"History"}},
		func(ctx context.Context, input *struct{}) (*stepOutput, error) {
			res, err := svc.Undo(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stepOutput{Body: res}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "redo", Method: http.MethodPost, Path: "/api/v1/redo", Summary: "Redo the last undone action", Tags: []string{"History"}},
		func(ctx context.Context, input *struct{}) (*stepOutput, error) {
			res, err := svc.Redo(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stepOutput{Body: res}, nil
		})

	type projectOutput struct {
		Body projection.Event
	}
	huma.Register(api, huma.Operation{OperationID: "project", Method: http.MethodPost, Path: "/api/v1/project", Summary: "Reproject every rendered overlay now", Tags: []string{"Chart"}},
		func(ctx context.Context, input *struct{}) (*projectOutput, error) {
			ev, err := svc.Project(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &projectOutput{Body: ev}, nil
		})
}
