package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "artsync/1.0"
	defaultMaxBody   = 64 << 20
)

// ErrBodyTooLarge is returned by GetBytes when a download exceeds the limit.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError is returned when a platform answers with a non-2xx status.
// Message holds the platform's own error text when it sent one.
type StatusError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config holds configuration for a platform client.
type Config struct {
	BaseURL       string
	APIKey        string
	APIKeyHeader  string  // header carrying APIKey; "Authorization" sends a bearer token
	RatePerSecond float64 // 0 disables throttling
	Timeout       time.Duration
	UserAgent     string
	RetryCount    int   // retries on 429 and 5xx; 0 disables
	MaxBodyBytes  int64 // GetBytes limit; 0 uses 64 MiB
}

// Client is a throttled REST client shared by the HTTP gallery adapters.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	maxBody int64
}

// New creates a platform client.
// Parameters:
//   - cfg: base URL, credentials and throttling settings.
//
// Returns:
//   - *Client: initialized client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		switch header := cfg.APIKeyHeader; header {
		case "", "Authorization":
			rc.SetAuthToken(cfg.APIKey)
		default:
			rc.SetHeader(header, cfg.APIKey)
		}
	}

	if cfg.RetryCount > 0 {
		rc.SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil || r == nil {
					return false
				}
				code := r.StatusCode()
				return code == http.StatusTooManyRequests || code >= 500
			})
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	return &Client{http: rc, limiter: limiter, maxBody: maxBody}
}

// GetJSON issues a GET and decodes a JSON response into out.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: path relative to the base URL.
//   - query: query parameters; may be nil.
//   - out: destination for the decoded body.
//
// Returns:
//   - error: *StatusError for non-2xx answers, or the transport error.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, out interface{}) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	if resp.IsError() {
		return &StatusError{
			StatusCode: resp.StatusCode(),
			Message:    apiErr.message(),
			URL:        resp.Request.URL,
		}
	}
	return nil
}

// GetBytes downloads a resource, returning its body and content type.
// Absolute URLs bypass the base URL. Bodies over the client's limit fail
// with ErrBodyTooLarge.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "*/*").
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return nil, "", &StatusError{StatusCode: resp.StatusCode(), URL: url}
	}
	if resp.RawResponse.ContentLength > c.maxBody {
		return nil, "", fmt.Errorf("download %s: %w: %d bytes", url, ErrBodyTooLarge, resp.RawResponse.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(body, c.maxBody+1))
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, "", fmt.Errorf("download %s: %w", url, ErrBodyTooLarge)
	}
	return data, resp.Header().Get("Content-Type"), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// errorBody covers the error shapes gallery APIs commonly send.
type errorBody struct {
	Error   interface{} `json:"error"`
	Message string      `json:"message"`
}

func (b errorBody) message() string {
	if b.Message != "" {
		return b.Message
	}
	switch v := b.Error.(type) {
	case string:
		return v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
		if name, ok := v["name"].(string); ok {
			return name
		}
	}
	return ""
}
