// Package apiclient is the REST client for the workspace API. It layers
// per-path policies, retries and a circuit breaker on top of an
// http.RoundTripper chain and decodes JSON responses.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/rawrFetch/breaker"
	"github.com/Keksclan/rawrFetch/contextx"
	"github.com/Keksclan/rawrFetch/metrics"
	"github.com/Keksclan/rawrFetch/policy"
	"github.com/Keksclan/rawrFetch/retry"
	"github.com/Keksclan/rawrFetch/transport"
)

const (
	defaultTimeout = 10 * time.Second
	defaultGroup   = "default"
	defaultMaxBody = 8 << 20
)

// Option configures a [Client].
type Option func(*config)

type config struct {
	base        http.RoundTripper
	middlewares []transport.Middleware
	timeout     time.Duration
	retry       *retry.Config
	breaker     *breaker.Breaker
	resolver    *policy.Resolver
	metrics     *metrics.Metrics
	logger      log.Logger
	maxBody     int64
}

// WithBaseTransport sets the RoundTripper at the bottom of the chain.
// Defaults to http.DefaultTransport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.base = rt }
}

// WithMiddleware appends transport middlewares. They run in the order given,
// the first being outermost.
func WithMiddleware(mws ...transport.Middleware) Option {
	return func(c *config) { c.middlewares = append(c.middlewares, mws...) }
}

// WithTimeout bounds every attempt that has no policy timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithRetry enables retries for GET requests.
func WithRetry(cfg retry.Config) Option {
	return func(c *config) { c.retry = &cfg }
}

// WithBreaker guards every attempt with b.
func WithBreaker(b *breaker.Breaker) Option {
	return func(c *config) { c.breaker = b }
}

// WithResolver sets the policy resolver used to pick timeouts, retry
// eligibility and the path group reported in metrics.
func WithResolver(r *policy.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithMetrics records request latencies on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithMaxBodySize caps the size of a successful response body. Larger
// responses fail with ErrResponseTooLarge. Defaults to 8 MiB.
func WithMaxBodySize(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Client issues requests against a single API base URL. It is safe for
// concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	cfg     config
}

// New creates a Client for baseURL, e.g. "https://api.example.com/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	cfg := config{timeout: defaultTimeout, maxBody: defaultMaxBody}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.NewNopLogger()
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Transport: transport.Chain(cfg.middlewares, cfg.base)},
		cfg:     cfg,
	}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// GetJSON performs GET path?query and decodes the response into a T.
func GetJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	if err := c.Do(ctx, http.MethodGet, path, query, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Do sends a body-less request and decodes a 2xx JSON response into out,
// which may be nil to discard the body. Responses wrapped in the
// {"success":true,"data":...} envelope are unwrapped.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, out any) error {
	group, pol, _ := c.cfg.resolver.Resolve(method, path)
	if group == "" {
		group = defaultGroup
	}
	ctx = contextx.WithPathGroup(ctx, group)
	ctx = policy.NewContext(ctx, group, pol)

	timeout := c.cfg.timeout
	if pol != nil && pol.Timeout > 0 {
		timeout = pol.Timeout
	}

	attempt := func(ctx context.Context) (struct{}, error) {
		if c.cfg.breaker == nil {
			return struct{}{}, c.attempt(ctx, method, path, query, timeout, out)
		}
		return breaker.Do(c.cfg.breaker, func() (struct{}, error) {
			return struct{}{}, c.attempt(ctx, method, path, query, timeout, out)
		})
	}

	var err error
	if c.cfg.retry != nil && method == http.MethodGet && (pol == nil || !pol.NoRetry) {
		_, err = retry.Do(ctx, *c.cfg.retry, attempt)
	} else {
		_, err = attempt(ctx)
	}
	if err != nil {
		level.Warn(c.cfg.logger).Log("msg", "api request failed", "method", method, "path", path, "group", group, "err", err)
	}
	return err
}

// attempt performs one round trip bounded by timeout.
func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, timeout time.Duration, out any) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if c.cfg.metrics != nil {
			c.cfg.metrics.ObserveRequest(contextx.PathGroupFromContext(ctx), codeOf(err).String(), time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, query), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	// One byte past the cap tells a body that fits exactly from one that
	// does not.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.maxBody+1))
	if err != nil {
		return transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(resp, body)
	}
	if int64(len(body)) > c.cfg.maxBody {
		return &codedError{
			code: codes.OutOfRange,
			err:  fmt.Errorf("%w: %s %s exceeds %d bytes", ErrResponseTooLarge, method, path, c.cfg.maxBody),
		}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrap(body), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimPrefix(path, "/")
	u.RawQuery = query.Encode()
	return u.String()
}

// envelope is the success wrapper some endpoints use.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// unwrap returns the "data" member of an envelope, or body unchanged.
func unwrap(body []byte) []byte {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return body
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Success == nil || env.Data == nil {
		return body
	}
	return env.Data
}

// transportError classifies a failed round trip. Network failures become
// Unavailable and attempt timeouts DeadlineExceeded so they are retryable.
// Caller cancellation and recovered panics are returned unchanged.
func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, transport.ErrPanic):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &codedError{code: codes.DeadlineExceeded, err: err}
	default:
		return &codedError{code: codes.Unavailable, err: err}
	}
}

// codedError attaches a gRPC code to a transport failure.
type codedError struct {
	code codes.Code
	err  error
}

func (e *codedError) Error() string              { return e.err.Error() }
func (e *codedError) Unwrap() error              { return e.err }
func (e *codedError) GRPCStatus() *status.Status { return status.New(e.code, e.err.Error()) }

// codeOf reports the gRPC code an attempt ended with.
func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}
