// Package client calls a remote pipelinecheck server.
//
//	c := client.New("http://localhost:8080", nil)
//	res, err := c.Parse(ctx, p)
//	if errors.Is(err, errors.ErrCodeUnknownNode) {
//	    // same error codes as a local analysis
//	}
//
// Network failures, 5xx and 429 responses are retried according to
// Client.Policy. Error responses are decoded back into *errors.Error with
// the server's code, so callers handle remote and local failures alike.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/pipelinecheck/pkg/dag"
	"github.com/matzehuels/pipelinecheck/pkg/errors"
	"github.com/matzehuels/pipelinecheck/pkg/httputil"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to one pipelinecheck server. It is safe for concurrent use.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Policy  httputil.Policy
	headers map[string]string
}

// New creates a client for the server at baseURL. headers are added to
// every request; pass nil for none.
func New(baseURL string, headers map[string]string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		Policy:  httputil.DefaultPolicy(),
		headers: headers,
	}
}

// Health calls GET / and reports whether the server answered with its
// health payload.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Ping string `json:"Ping"`
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, &out); err != nil {
		return err
	}
	if out.Ping != "Pong" {
		return errors.New(errors.ErrCodeInternal, "unexpected health response %q", out.Ping)
	}
	return nil
}

// Parse submits p to POST /pipelines/parse and returns the server's
// analysis.
func (c *Client) Parse(ctx context.Context, p dag.Pipeline) (dag.Result, error) {
	if p.Nodes == nil {
		p.Nodes = []dag.Node{}
	}
	if p.Edges == nil {
		p.Edges = []dag.Edge{}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return dag.Result{}, fmt.Errorf("encode pipeline: %w", err)
	}
	var res dag.Result
	if err := c.do(ctx, http.MethodPost, "/pipelines/parse", body, &res); err != nil {
		return dag.Result{}, err
	}
	return res, nil
}

// do sends one logical request, retrying transient failures. All attempts
// share a request ID so server logs can correlate them.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	requestID := uuid.NewString()
	return httputil.Retry(ctx, c.Policy, func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &httputil.RetryableError{Err: fmt.Errorf("%s %s: %w", method, path, err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}

		apiErr := decodeError(resp)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &httputil.RetryableError{Err: apiErr, After: httputil.RetryAfter(resp.Header)}
		}
		return apiErr
	})
}

// decodeError converts an error envelope into *errors.Error. Responses
// that are not envelopes keep their status text.
func decodeError(resp *http.Response) error {
	var env struct {
		Error struct {
			Code    errors.Code `json:"code"`
			Message string      `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &env); err != nil || env.Error.Code == "" {
		code := errors.ErrCodeInternal
		if resp.StatusCode < 500 {
			code = errors.ErrCodeInvalidInput
		}
		return errors.New(code, "server returned %s", resp.Status)
	}
	return errors.New(env.Error.Code, "%s", env.Error.Message)
}
