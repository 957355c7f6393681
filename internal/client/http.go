package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Running      bool                    `json:"running"`
	Connection   model.ConnStatus        `json:"connection"`
	State        string                  `json:"state"`
	Session      string                  `json:"session,omitempty"`
	Events       int                     `json:"events"`
	Transactions int                     `json:"transactions"`
	LastID       uint64                  `json:"last_id,string"`
	LastMetric   *protocol.MetricSummary `json:"last_metric,omitempty"`
	// StateEchoes counts state updates received from the spammer. It grows
	// by one for every echo, including ones that repeat the run state.
	StateEchoes  uint64                  `json:"state_echoes"`
	ByKind       map[string]int          `json:"by_kind,omitempty"`
}

// HTTPClient talks to the REST API of a running spamwatch server.
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

// httpTimeout bounds a single REST call, body included.
const httpTimeout = 30 * time.Second

// NewHTTPClient targets a server base URL such as "http://localhost:9090".
// A non-empty token is sent as a bearer credential on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: httpTimeout},
	}
}

// Health returns the server's health status string.
func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	h, err := get[struct {
		Status string `json:"status"`
	}](ctx, c, "/v1/health")
	return h.Status, err
}

func (c *HTTPClient) Status(ctx context.Context) (*StatusResponse, error) {
	st, err := get[StatusResponse](ctx, c, "/v1/status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) Snapshot(ctx context.Context) (*view.Snapshot, error) {
	snap, err := get[view.Snapshot](ctx, c, "/v1/snapshot")
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *HTTPClient) TPS(ctx context.Context) ([]view.Point, error) {
	return get[[]view.Point](ctx, c, "/v1/series/tps")
}

func (c *HTTPClient) ErrorRate(ctx context.Context) ([]view.Point, error) {
	return get[[]view.Point](ctx, c, "/v1/series/error-rate")
}

// Transactions returns the transaction log, newest first. limit <= 0
// returns every record.
func (c *HTTPClient) Transactions(ctx context.Context, limit int) ([]model.TxRecord, error) {
	path := "/v1/transactions"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	return get[[]model.TxRecord](ctx, c, path)
}

// Transaction looks up one logged transaction by hash. An unknown hash is
// an *APIError with status 404.
func (c *HTTPClient) Transaction(ctx context.Context, hash string) (*model.TxRecord, error) {
	tx, err := get[model.TxRecord](ctx, c, "/v1/transactions/"+url.PathEscape(hash))
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Start asks the server to send a start command to the spammer.
func (c *HTTPClient) Start(ctx context.Context) error {
	_, err := c.send(ctx, http.MethodPost, "/v1/spammer/start")
	return err
}

// Stop asks the server to send a stop command to the spammer.
func (c *HTTPClient) Stop(ctx context.Context) error {
	_, err := c.send(ctx, http.MethodPost, "/v1/spammer/stop")
	return err
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// get issues a GET and decodes the JSON reply into a T.
func get[T any](ctx context.Context, c *HTTPClient, path string) (T, error) {
	var v T
	body, err := c.send(ctx, http.MethodGet, path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, nil
}

// send performs a bodiless request and returns the reply body. Replies with
// status >= 400 become an *APIError.
func (c *HTTPClient) send(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage prefers the "error" field of a JSON body and falls back to
// the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
