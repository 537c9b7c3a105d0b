package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/model"
)

// Client drives a running aex-x402-streams instance over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Msg)
}

// Request makes an HTTP request
func (c *Client) Request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// JSON makes a request and decodes the JSON response
func (c *Client) JSON(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.Request(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var wrapped struct {
			Error APIError `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&wrapped)
		wrapped.Error.Status = resp.StatusCode
		return &wrapped.Error
	}
	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// HealthCheck checks if the service is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.Request(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) Wallet(ctx context.Context) (*model.Wallet, error) {
	var w model.Wallet
	err := c.JSON(ctx, http.MethodGet, "/v1/wallet", nil, &w)
	return &w, err
}

func (c *Client) Duration(ctx context.Context, amount, rate string) (*model.Duration, error) {
	var d model.Duration
	err := c.JSON(ctx, http.MethodGet, "/v1/deposits/duration?amount="+amount+"&rate="+rate, nil, &d)
	return &d, err
}

func (c *Client) StartDeposit(ctx context.Context, req model.DepositRequest) (*model.Flow, error) {
	var f model.Flow
	err := c.JSON(ctx, http.MethodPost, "/v1/deposits", req, &f)
	return &f, err
}

func (c *Client) GetDeposit(ctx context.Context, id string) (*model.Flow, error) {
	var f model.Flow
	err := c.JSON(ctx, http.MethodGet, "/v1/deposits/"+id, nil, &f)
	return &f, err
}

func (c *Client) Streams(ctx context.Context, refresh bool) (*model.StreamList, error) {
	path := "/v1/streams"
	if refresh {
		path += "?refresh=true"
	}
	var l model.StreamList
	err := c.JSON(ctx, http.MethodGet, path, nil, &l)
	return &l, err
}

func (c *Client) Rate(ctx context.Context) (*model.Rate, error) {
	var r model.Rate
	err := c.JSON(ctx, http.MethodGet, "/v1/rate?refresh=true", nil, &r)
	return &r, err
}

func (c *Client) CloseStream(ctx context.Context, id string) (*model.ActionResult, error) {
	var r model.ActionResult
	err := c.JSON(ctx, http.MethodPost, "/v1/streams/"+id+"/close", nil, &r)
	return &r, err
}

// WaitForDeposit polls until the flow leaves its pending stages.
func (c *Client) WaitForDeposit(ctx context.Context, id string, timeout time.Duration) (*model.Flow, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := c.GetDeposit(ctx, id)
		if err != nil {
			return nil, err
		}
		if !f.Busy {
			return f, nil
		}
		if time.Now().After(deadline) {
			return f, fmt.Errorf("deposit %s still %s after %v", id, f.Stage, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
