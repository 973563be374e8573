package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"scrivener/internal/journal"
)

// ErrDaemonNotRunning is returned when nothing listens on the socket.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// baseURL is a placeholder host; every request goes to the socket.
const baseURL = "http://scrivener"

// Client talks to a running daemon.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient returns a client for the daemon at socketPath. A zero timeout
// leaves requests bounded only by their context.
func NewClient(socketPath string, timeout time.Duration) *Client {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
				DisableKeepAlives: true,
			},
		},
	}
}

// Available reports whether a daemon answers on the socket.
func (c *Client) Available() bool {
	return IsSocketListening(c.socketPath)
}

// Deliver posts a delivery. Busy and failed deliveries are returned as
// responses, not errors; only transport and request problems are errors.
func (c *Client) Deliver(ctx context.Context, req DeliveryRequest, verbose bool) (*DeliveryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	path := "/v1/deliveries"
	if verbose {
		path += "?verbose=true"
	}

	var resp DeliveryResponse
	err = c.do(ctx, http.MethodPost, path, bytes.NewReader(body), &resp,
		http.StatusOK, http.StatusConflict, http.StatusUnprocessableEntity)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the daemon's engine state.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists journaled deliveries, newest first, optionally for one
// application.
func (c *Client) History(ctx context.Context, app string, limit int, verbose bool) ([]journal.Entry, error) {
	q := url.Values{}
	if app != "" {
		q.Set("app", app)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if verbose {
		q.Set("verbose", "true")
	}
	path := "/v1/deliveries"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var entries []journal.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries, http.StatusOK); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w: %s", ErrDaemonNotRunning, c.socketPath)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}
	}

	var e ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return fmt.Errorf("%s %s: %s", method, path, e.Error)
}
