package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// RequestBuilder assembles a request fluently.
type RequestBuilder struct {
	method  string
	baseURL string
	path    string
	query   url.Values
	headers map[string]string
	body    any
	ctx     context.Context
}

// NewRequest starts a request against baseURL. baseURL may already carry a
// query string; Query values are merged into it.
func NewRequest(method, baseURL string) *RequestBuilder {
	return &RequestBuilder{
		method:  method,
		baseURL: baseURL,
		query:   make(url.Values),
		headers: make(map[string]string),
		ctx:     context.Background(),
	}
}

func (b *RequestBuilder) Path(path string) *RequestBuilder {
	b.path = path
	return b
}

// Query adds a parameter. Empty values are skipped so optional filters can
// be passed through unconditionally.
func (b *RequestBuilder) Query(key, value string) *RequestBuilder {
	if value != "" {
		b.query.Add(key, value)
	}
	return b
}

// QueryInt adds an integer parameter when n > 0.
func (b *RequestBuilder) QueryInt(key string, n int) *RequestBuilder {
	if n > 0 {
		b.query.Add(key, strconv.Itoa(n))
	}
	return b
}

func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	b.headers[key] = value
	return b
}

// JSON sets the body, encoded at Build time.
func (b *RequestBuilder) JSON(body any) *RequestBuilder {
	b.body = body
	b.headers["Content-Type"] = "application/json"
	return b
}

func (b *RequestBuilder) Context(ctx context.Context) *RequestBuilder {
	b.ctx = ctx
	return b
}

// Build creates the request.
func (b *RequestBuilder) Build() (*http.Request, error) {
	u, err := url.Parse(b.baseURL + b.path)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(b.query) > 0 {
		q := u.Query()
		for k, vs := range b.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	if b.body != nil {
		encoded, err := json.Marshal(b.body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(b.ctx, b.method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Execute builds and sends the request through client.
func (b *RequestBuilder) Execute(client *Client) (*http.Response, error) {
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	return client.Do(b.ctx, req)
}

// ExecuteJSON sends the request and decodes the JSON response into result.
func (b *RequestBuilder) ExecuteJSON(client *Client, result any) error {
	resp, err := b.Execute(client)
	if err != nil {
		return err
	}
	return decodeJSON(resp, result)
}
