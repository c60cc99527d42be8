package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/havenstack/widgetd/internal/infrastructure/resilience"
	"github.com/havenstack/widgetd/internal/infrastructure/tracing"
	"github.com/havenstack/widgetd/internal/shared/types"
)

const dispatchPath = "/v1/agent/dispatch"

// Config holds agent transport settings.
type Config struct {
	BaseURL string
	// DispatchTimeout bounds the wait for response headers; the stream
	// itself is unbounded and policed by the ingestor's idle timer.
	DispatchTimeout time.Duration
	MaxRetries      int
	RateLimit       float64
	RateBurst       int
}

// Client talks to the agent service: a streaming dispatch POST plus
// small control calls. Dispatch is guarded by a rate limiter and a
// circuit breaker so a dead backend fails fast instead of piling up.
type Client struct {
	cfg     Config
	http    *http.Client
	retrier *retryablehttp.Client
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	tracer  *tracing.Tracer
	logger  *zap.Logger
}

// New creates an agent client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.DispatchTimeout

	retrier := retryablehttp.NewClient()
	retrier.RetryMax = cfg.MaxRetries
	retrier.RetryWaitMin = 500 * time.Millisecond
	retrier.RetryWaitMax = 10 * time.Second
	retrier.Logger = nil
	retrier.HTTPClient = &http.Client{Transport: transport}

	restyClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.DispatchTimeout).
		SetRetryCount(cfg.MaxRetries).
		SetHeader("User-Agent", "widgetd/1.0")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	breaker := resilience.New("agent-dispatch", resilience.Settings{
		MaxProbes: 2,
		Interval:  60 * time.Second,
		Cooldown:  15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		cfg:     cfg,
		http:    retrier.HTTPClient,
		retrier: retrier,
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// WithTracer adds trace propagation to outbound requests.
func (c *Client) WithTracer(t *tracing.Tracer) *Client {
	c.tracer = t
	return c
}

// Dispatch posts the envelope and returns a channel of parsed stream
// events. The channel closes when the stream ends, fails, or ctx is
// cancelled. Any synchronous failure, including an open breaker,
// returns before a single event is produced.
func (c *Client) Dispatch(ctx context.Context, env types.Envelope) (<-chan types.StreamEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	var resp *http.Response
	err = c.breaker.Do(func() error {
		req, rerr := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+dispatchPath, bytes.NewReader(body))
		if rerr != nil {
			return rerr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("X-Request-ID", env.RequestID)
		c.injectTrace(ctx, req.Header)

		r, derr := c.retrier.Do(req)
		if derr != nil {
			return derr
		}
		if r.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(r.Body, 512))
			r.Body.Close()
			return fmt.Errorf("agent returned %d: %s", r.StatusCode, bytes.TrimSpace(snippet))
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make(chan types.StreamEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		// Unblock the body reader when the caller gives up.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				resp.Body.Close()
			case <-done:
			}
		}()

		if perr := readStream(resp.Body, env.RequestID, events); perr != nil && ctx.Err() == nil {
			c.logger.Debug("stream read ended",
				zap.String("request_id", env.RequestID),
				zap.Error(perr))
		}
	}()
	return events, nil
}

// Cancel notifies the agent to stop producing for a request. Best
// effort: failures are returned for logging but never retried hard.
func (c *Client) Cancel(ctx context.Context, requestID string) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		Delete(dispatchPath + "/" + requestID)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("agent cancel returned %d", resp.StatusCode())
	}
	return nil
}

// Health probes the agent service.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.resty.R().SetContext(ctx).Get("/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("agent health returned %d", resp.StatusCode())
	}
	return nil
}

// BreakerState exposes the dispatch breaker for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) injectTrace(ctx context.Context, header http.Header) {
	if c.tracer == nil {
		return
	}
	carrier := make(map[string]string, 2)
	tracing.Inject(ctx, carrier)
	for k, v := range carrier {
		header.Set(k, v)
	}
}
