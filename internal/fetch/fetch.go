// Package fetch is the single GET-and-decode path shared by every upstream API client.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/JonathanRys/weather-finder/internal/observability"
)

const maxLoggedBody = 512

// Options configures a Client. Only Name and BaseURL are required.
type Options struct {
	Name    string
	BaseURL string
	Headers map[string]string
	// Query is added to every request, e.g. an API key.
	Query map[string]string

	Timeout    time.Duration
	RetryCount int

	// RequestsPerSecond <= 0 disables outbound rate limiting.
	RequestsPerSecond float64
	Burst             int

	Logger *slog.Logger
}

// Client issues GET requests against one upstream API.
type Client struct {
	name    string
	rc      *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("component", "fetch", "api", opts.Name)
	rc := resty.New().
		SetLogger(restyLogger{logger}).
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeaders(opts.Headers).
		SetQueryParams(opts.Query)

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		name:    opts.Name,
		rc:      rc,
		limiter: limiter,
		logger:  logger,
	}
}

var queryString = regexp.MustCompile(`\?[^\s"]*`)

// restyLogger sends resty's own messages to slog with query strings removed.
type restyLogger struct{ l *slog.Logger }

func (r restyLogger) Errorf(format string, v ...any) { r.log(slog.LevelWarn, format, v...) }
func (r restyLogger) Warnf(format string, v ...any)  { r.log(slog.LevelWarn, format, v...) }
func (r restyLogger) Debugf(format string, v ...any) { r.log(slog.LevelDebug, format, v...) }

func (r restyLogger) log(level slog.Level, format string, v ...any) {
	msg := queryString.ReplaceAllString(fmt.Sprintf(format, v...), "")
	r.l.Log(context.Background(), level, strings.TrimSpace(msg), "source", "resty")
}

// Name is the upstream API label used in logs, metrics and errors.
func (c *Client) Name() string { return c.name }

// StatusError is returned for every non-200 upstream response.
type StatusError struct {
	API        string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API returned status %d", e.API, e.StatusCode)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.API, e.StatusCode, e.Body)
}

// IsStatus reports whether err carries an upstream response with the given status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func IsNotFound(err error) bool { return IsStatus(err, http.StatusNotFound) }

// JSON fetches u and decodes the whole body into T.
func JSON[T any](ctx context.Context, c *Client, u string, query map[string]string) (T, error) {
	var out T
	body, err := c.get(ctx, u, query)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decoding %s response: %w", c.name, err)
	}
	return out, nil
}

// Field fetches u and decodes only the named top-level field into T. An absent or null field
// yields the zero value of T.
func Field[T any](ctx context.Context, c *Client, u string, query map[string]string, field string) (T, error) {
	var out T
	body, err := c.get(ctx, u, query)
	if err != nil {
		return out, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return out, fmt.Errorf("decoding %s response: %w", c.name, err)
	}
	raw, ok := doc[field]
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding %s field %q: %w", c.name, field, err)
	}
	return out, nil
}

// Raw fetches u without a target type.
func Raw(ctx context.Context, c *Client, u string) (map[string]any, error) {
	return JSON[map[string]any](ctx, c, u, nil)
}

func (c *Client) get(ctx context.Context, u string, query map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limit wait: %w", c.name, err)
		}
	}

	ctx, span := otel.Tracer("weather-finder/fetch").Start(ctx, "GET "+c.name)
	defer span.End()
	span.SetAttributes(attribute.String("upstream.api", c.name), attribute.String("http.url", u))

	c.logger.Debug("upstream request", "url", u)
	started := time.Now()
	resp, err := c.rc.R().SetContext(ctx).SetQueryParams(query).Get(u)
	if err != nil {
		// The resolved URL in *url.Error carries default query params such as API keys.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = u
		}
		observability.ObserveUpstream(c.name, 0, time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		c.logger.Error("upstream request failed", "url", u, "error", err)
		return nil, fmt.Errorf("requesting %s: %w", c.name, err)
	}
	status := resp.StatusCode()
	observability.ObserveUpstream(c.name, status, time.Since(started))
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status != http.StatusOK {
		body := string(resp.Body())
		if len(body) > maxLoggedBody {
			body = body[:maxLoggedBody]
		}
		span.SetStatus(codes.Error, http.StatusText(status))
		// u, not resp.Request.URL: the resolved URL carries default query params such as API keys.
		c.logger.Warn("upstream returned non-200", "url", u, "status", status, "body", body)
		return nil, &StatusError{API: c.name, URL: u, StatusCode: status, Body: body}
	}
	return resp.Body(), nil
}
