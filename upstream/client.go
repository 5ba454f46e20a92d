// Package upstream talks to the backend service that stores help requests.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"reliefdesk/models"
	"reliefdesk/normalizer"
	"reliefdesk/stats"
	"reliefdesk/submission"
)

const (
	EndPointPosts = "/api/posts"
	EndPointStats = "/api/posts/stats"

	// RequestIDHeader carries the correlation id of a submission.
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes = 10 << 20
)

// Client handles communication with the backend service
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit throttles outgoing requests to perSecond with the given
// burst. perSecond <= 0 leaves the client unthrottled.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a new backend client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) wait(ctx context.Context, endpoint string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("throttled: %w", err)}
	}
	return nil
}

// FetchPosts gets the full, unfiltered list of help requests. A body that is
// JSON but not an array is an empty list.
func (c *Client) FetchPosts(ctx context.Context) ([]models.Post, error) {
	body, err := c.get(ctx, EndPointPosts)
	if err != nil {
		return nil, err
	}
	posts, err := normalizer.DecodePosts(body)
	if err != nil {
		return nil, &TransportError{Endpoint: EndPointPosts, Err: err}
	}
	return posts, nil
}

// FetchStats gets the summary counters.
func (c *Client) FetchStats(ctx context.Context) (models.StatsSource, error) {
	body, err := c.get(ctx, EndPointStats)
	if err != nil {
		return models.StatsSource{}, err
	}
	src, err := stats.Decode(body)
	if err != nil {
		return models.StatsSource{}, &TransportError{Endpoint: EndPointStats, Err: err}
	}
	return src, nil
}

// SubmitPost sends a built payload. The response body of an accepted
// submission is ignored. A refused submission returns *RejectionError.
func (c *Client) SubmitPost(ctx context.Context, requestID string, p *submission.Payload) error {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if err := c.wait(ctx, EndPointPosts); err != nil {
		return err
	}
	body, contentType, err := p.Body()
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndPointPosts, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Endpoint: EndPointPosts, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		rejection := &RejectionError{
			StatusCode: resp.StatusCode,
			Message:    RejectionMessage(respBody),
		}
		log.WithFields(log.Fields{
			"request_id": requestID,
			"status":     resp.StatusCode,
		}).Warnf("Backend rejected submission: %s", rejection.Message)
		return rejection
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	log.WithFields(log.Fields{
		"request_id": requestID,
		"status":     resp.StatusCode,
		"images":     len(p.Images),
	}).Info("Submission accepted by backend")
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.wait(ctx, endpoint); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to load %s (%d)", strings.TrimPrefix(endpoint, "/api/"), resp.StatusCode),
		}
	}
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	return body, nil
}
