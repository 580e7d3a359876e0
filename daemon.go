package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var errDaemonUnreachable = errors.New("daemon unreachable")

// daemonClient talks to the HTTP API of a running daemon.
type daemonClient struct {
	base string
	http *http.Client
}

func newDaemonClient(base string) *daemonClient {
	return &daemonClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *daemonClient) reload(ctx context.Context, entryID string) error {
	return d.do(ctx, http.MethodPost, "/entries/"+url.PathEscape(entryID)+"/reload")
}

func (d *daemonClient) remove(ctx context.Context, entryID string) error {
	return d.do(ctx, http.MethodDelete, "/entries/"+url.PathEscape(entryID))
}

func (d *daemonClient) do(ctx context.Context, method string, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, d.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%v %v: %v", method, path, e.Error)
	}
	return fmt.Errorf("%v %v: %v", method, path, resp.Status)
}
