// Package client is a Go client for the fragmenter HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

const Version = "0.1.0"

const apiPrefix = "/api/v1"

// Logger receives request traces.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Client calls a fragmenter server.  It is safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	apiKey       string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RequestID  string `json:"request_id"`

	retryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("fragmenter: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, msg, e.RequestID)
}

func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// NewClient returns a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid base URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New(errors.ErrCodeValidation, "base URL scheme must be http or https").WithDetail(baseURL)
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		userAgent:    fmt.Sprintf("fragmenter-go-client/%s", Version),
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fragment submits molecules for torsion fragmentation.
func (c *Client) Fragment(ctx context.Context, req *types.FragmentRequest) (*types.FragmentResponse, error) {
	var out types.FragmentResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/fragment", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cut splits one molecule at its weak bonds.
func (c *Client) Cut(ctx context.Context, req *types.CutRequest) (*types.CutResponse, error) {
	var out types.CutResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/cut", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRun(ctx context.Context, jobID string) (*types.RunResponse, error) {
	if jobID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "job id is required")
	}
	var out types.RunResponse
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/runs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns returns up to limit stored runs, newest first.  A limit of zero
// uses the server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	path := apiPrefix + "/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []types.RunSummary
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReportURL returns a time limited link to the stored report of a run.
func (c *Client) ReportURL(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", errors.New(errors.ErrCodeValidation, "job id is required")
	}
	var out types.ReportURLResponse
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/runs/"+url.PathEscape(jobID)+"/report", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Lineage lists the fragments recorded for a parent across runs.
func (c *Client) Lineage(ctx context.Context, parentSMILES string) (*types.LineageResponse, error) {
	var out types.LineageResponse
	path := apiPrefix + "/lineage?" + url.Values{"smiles": {parentSMILES}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready reports whether every backend of the server is reachable.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

// do sends one request, retrying network errors, 5xx responses and 429s.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encode request")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			if apiErr, ok := lastErr.(*APIError); ok && apiErr.IsRateLimited() && apiErr.retryAfter > 0 {
				wait = apiErr.retryAfter
			}
			c.logger.Debugf("retry %d of %s %s after %v", attempt, method, path, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeBadRequest, "build request")
		}
		requestID := uuid.NewString()
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("%s %s: %v", method, path, err)
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "read response")
		}
		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

		if resp.StatusCode >= 400 {
			apiErr := decodeError(resp, respBody, requestID)
			lastErr = apiErr
			if apiErr.IsServerError() || apiErr.IsRateLimited() {
				continue
			}
			return apiErr
		}
		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "decode response")
			}
		}
		return nil
	}
	return lastErr
}

func decodeError(resp *http.Response, body []byte, requestID string) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
	var env types.ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Detail = env.Error.Detail
		if env.Error.RequestID != "" {
			apiErr.RequestID = env.Error.RequestID
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		apiErr.retryAfter = time.Duration(s) * time.Second
	}
	return apiErr
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if d > c.retryWaitMax {
		d = c.retryWaitMax
	}
	if q := int64(d / 4); q > 0 {
		d += time.Duration(rand.Int63n(q))
	}
	return d
}
