// Package service is the HTTP client for the remote review/execution service.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sprite-ai/crev/internal/metrics"
	"github.com/sprite-ai/crev/internal/model"
)

// ErrInvalidRequest is returned when a request fails validation before it is
// sent.
var ErrInvalidRequest = errors.New("invalid request")

// ErrInvalidResponse is returned when the service answers with something
// that cannot be decoded into a result.
var ErrInvalidResponse = errors.New("invalid service response")

// Error is a failure reported by the service itself. Its Message is meant to
// be shown to the user as-is.
type Error struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: service error (%d): %s", e.Endpoint, e.Status, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	RateLimit   float64 // requests per second, 0 = unlimited
	Burst       int
	CPUTime     int
	MemoryLimit int
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Client talks to the review/run service.
type Client struct {
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	cpuTime     int
	memoryLimit int
	log         zerolog.Logger
}

// New creates a client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		http:        hc,
		limiter:     rate.NewLimiter(limit, burst),
		cpuTime:     opts.CPUTime,
		memoryLimit: opts.MemoryLimit,
		log:         opts.Logger.With().Str("component", "service").Logger(),
	}
}

// ReviewRequest asks for a review of code.
type ReviewRequest struct {
	Assignment model.Assignment
	Code       string
}

// RunRequest asks for code to be executed against test cases.
type RunRequest struct {
	Assignment model.Assignment
	Code       string
	Cases      []model.TestCase
}

// Review submits code for review.
func (c *Client) Review(ctx context.Context, req ReviewRequest) (model.ReviewResult, error) {
	body := reviewRequestJSON{
		Assignment: toAssignmentJSON(req.Assignment),
		Submission: submissionJSON{Code: req.Code},
	}
	if err := validate.Struct(body); err != nil {
		return model.ReviewResult{}, fmt.Errorf("review: %w: %v", ErrInvalidRequest, err)
	}

	var resp reviewResponseJSON
	if err := c.do(ctx, http.MethodPost, "/api/review", body, &resp); err != nil {
		return model.ReviewResult{}, err
	}
	if resp.Error != "" {
		return model.ReviewResult{}, &Error{Endpoint: "/api/review", Status: http.StatusOK, Message: resp.Error}
	}
	return resp.toModel(), nil
}

// Run executes code against the given test cases. A compile error comes back
// as the compile-error variant, not as an error.
func (c *Client) Run(ctx context.Context, req RunRequest) (model.TestRunResult, error) {
	body := runRequestJSON{
		Assignment:  toAssignmentJSON(req.Assignment),
		Submission:  submissionJSON{Code: req.Code},
		CPUTime:     c.cpuTime,
		MemoryLimit: c.memoryLimit,
	}
	for _, tc := range req.Cases {
		body.Testcase = append(body.Testcase, testcaseJSON{Name: tc.Name, Input: tc.Input, Expect: tc.Expect})
	}
	if err := validate.Struct(body); err != nil {
		return model.TestRunResult{}, fmt.Errorf("run: %w: %v", ErrInvalidRequest, err)
	}

	var resp runResponseJSON
	if err := c.do(ctx, http.MethodPost, "/api/run", body, &resp); err != nil {
		return model.TestRunResult{}, err
	}
	if resp.Error != "" {
		return model.TestRunResult{}, &Error{Endpoint: "/api/run", Status: http.StatusOK, Message: resp.Error}
	}

	result := resp.toModel()
	if err := result.Validate(); err != nil {
		return model.TestRunResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return result, nil
}

// Language is an execution language offered by the service.
type Language struct {
	ID      string
	Version string
}

// Languages lists the languages the service can run.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/languages", nil, &raw); err != nil {
		return nil, err
	}

	langs := make([]Language, 0, len(raw))
	for _, r := range raw {
		lang, err := decodeLanguage(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		langs = append(langs, lang)
	}
	return langs, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", path, err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ServiceRequestDuration.WithLabelValues(path, "transport_error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()
	metrics.ServiceRequestDuration.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("service call")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Endpoint: path, Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrInvalidResponse, err)
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(status int, data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
		return text
	}
	return http.StatusText(status)
}
