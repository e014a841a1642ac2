package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

const requestTimeout = 10 * time.Second

// Client talks to a directory service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Directory = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) Register(ctx context.Context, roomID, password, address string, ttl time.Duration) (*Registration, error) {
	req := registerRequest{RoomID: roomID, Password: password, Address: address, TTLSeconds: int(ttl / time.Second)}
	var reg Registration
	if err := c.post(ctx, "register", "/register", req, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (c *Client) Resolve(ctx context.Context, roomID, password string) (*Resolution, error) {
	var res Resolution
	if err := c.post(ctx, "resolve", "/resolve", resolveRequest{RoomID: roomID, Password: password}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ResolveCode(ctx context.Context, code string) (*Resolution, error) {
	var res Resolution
	if err := c.post(ctx, "resolve", "/resolve", resolveRequest{Code: code}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return protocol.NewOpError(op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return protocol.NewOpError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.NewOpError(op, fmt.Errorf("%w: %v", protocol.ErrTransport, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return protocol.WrapError(op, errorFor(resp.StatusCode), e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return protocol.NewOpError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func errorFor(status int) error {
	switch status {
	case http.StatusBadRequest:
		return protocol.ErrProtocol
	case http.StatusForbidden:
		return protocol.ErrBadPassword
	case http.StatusNotFound:
		return protocol.ErrNotFound
	case http.StatusConflict:
		return protocol.ErrConflict
	case http.StatusServiceUnavailable:
		return ErrNoFreeCode
	default:
		return protocol.ErrTransport
	}
}
