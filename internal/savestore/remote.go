package savestore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteStore keeps layouts on a remote save API:
//
//	PUT    {base}/layouts/{name}
//	GET    {base}/layouts/{name}
//	GET    {base}/layouts
//	DELETE {base}/layouts/{name}
type RemoteStore struct {
	client *resty.Client
}

// NewRemoteStore builds a client for baseURL. token is sent as a bearer
// token when set.
func NewRemoteStore(baseURL, token string, timeout time.Duration) *RemoteStore {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	if token != "" {
		c.SetAuthToken(token)
	}
	return &RemoteStore{client: c}
}

func (r *RemoteStore) Close() error { return nil }

func (r *RemoteStore) SaveLayout(ctx context.Context, snap Snapshot) error {
	name, err := validName(snap.Name)
	if err != nil {
		return err
	}
	snap.Name = name
	if snap.Version == 0 {
		snap.Version = SnapshotVersion
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("name", name).
		SetBody(snap).
		Put("/layouts/{name}")
	return r.check("save layout "+name, name, resp, err)
}

func (r *RemoteStore) LoadLayout(ctx context.Context, name string) (Snapshot, error) {
	name, err := validName(name)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("name", name).
		SetResult(&snap).
		Get("/layouts/{name}")
	if err := r.check("load layout "+name, name, resp, err); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *RemoteStore) ListLayouts(ctx context.Context) ([]LayoutInfo, error) {
	out := make([]LayoutInfo, 0)
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/layouts")
	if err := r.check("list layouts", "", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RemoteStore) DeleteLayout(ctx context.Context, name string) error {
	name, err := validName(name)
	if err != nil {
		return err
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("name", name).
		Delete("/layouts/{name}")
	return r.check("delete layout "+name, name, resp, err)
}

func (r *RemoteStore) check(op, name string, resp *resty.Response, err error) error {
	if err != nil {
		return storageErr(op, err)
	}
	if resp.StatusCode() == http.StatusNotFound && name != "" {
		return notFound(name)
	}
	if resp.IsError() {
		return storageErr(op, fmt.Errorf("remote returned %s", resp.Status()))
	}
	return nil
}
