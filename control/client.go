// Package control is a thin client for the ledger server's HTTP control
// channel. It configures the logical instance on the freshly discovered
// admin port; calls are not retried, a failed round-trip is fatal to
// startup.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Client talks to a single server over its admin port.
type Client struct {
	Log        *zap.SugaredLogger
	HTTPClient *http.Client

	baseURL string
}

// NewClient builds a client for the server listening on the given admin port
// on loopback.
func NewClient(log *zap.SugaredLogger, port uint16) *Client {
	return &Client{
		Log:        log.Named("control_client"),
		HTTPClient: http.DefaultClient,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
	}
}

// NewClientURL builds a client against an explicit base URL.
func NewClientURL(log *zap.SugaredLogger, baseURL string) *Client {
	return &Client{
		Log:        log.Named("control_client"),
		HTTPClient: http.DefaultClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Close = true

	c.Log.Debugw("control round-trip", "method", method, "path", path)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: unexpected status %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return nil
}

// CreateInstance builds the logical instance, including its HTTP gateway.
func (c *Client) CreateInstance(ctx context.Context, req *CreateInstanceRequest) (*Instance, error) {
	var inst Instance
	if err := c.doJSON(ctx, http.MethodPost, "/instances", req, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// SetAutoProgress puts the instance into self-driving execution, optionally
// with an artificial per-round delay.
func (c *Client) SetAutoProgress(ctx context.Context, instanceID int, artificialDelayMS *uint64) error {
	path := fmt.Sprintf("/instances/%d/auto_progress", instanceID)
	return c.doJSON(ctx, http.MethodPost, path, &AutoProgressConfig{ArtificialDelayMS: artificialDelayMS}, nil)
}

// RootKey fetches the instance's root key bytes.
func (c *Client) RootKey(ctx context.Context, instanceID int) ([]byte, error) {
	var resp rootKeyResponse
	path := fmt.Sprintf("/instances/%d/root_key", instanceID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.RootKey, nil
}

// DeleteInstance stops the logical instance cleanly.
func (c *Client) DeleteInstance(ctx context.Context, instanceID int) error {
	path := fmt.Sprintf("/instances/%d", instanceID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
