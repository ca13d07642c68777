// Package detector is the HTTP client for the external image detection service.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/httpclient"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

// Sentinel errors. Every error returned by Client wraps exactly one of these.
var (
	ErrUnreachable = errors.NewStd("detector unreachable")
	ErrTimeout     = errors.NewStd("detector timeout")
	ErrProtocol    = errors.NewStd("detector protocol error")
)

const (
	verifyPath = "/api/verify"
	healthPath = "/health"

	uploadField       = "image"
	uploadFilename    = "image.jpg"
	uploadContentType = "image/jpeg"

	maxResponseBytes = 4 << 20
	previewBytes     = 256
)

// Config configures a Client.
type Config struct {
	URL       string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	RateBurst int

	// Transport overrides the HTTP transport, used by tests
	Transport http.RoundTripper
}

// Client calls the detection service. Safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *httpclient.Client
	limiter *rate.Limiter
	log     logger.Logger
	metrics metrics.Recorder
}

var _ detection.Detector = (*Client)(nil)

// New creates a detector client. A nil recorder disables metrics.
func New(cfg Config, log logger.Logger, recorder metrics.Recorder) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.Newf("detector url is required").
			Component("detector").
			Category(errors.CategoryConfiguration).
			Build()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := max(cfg.RateBurst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	hc := httpclient.New(&httpclient.Config{
		DefaultTimeout: cfg.Timeout,
		Transport:      cfg.Transport,
	})

	return &Client{
		baseURL: baseURL,
		timeout: cfg.Timeout,
		http:    hc,
		limiter: limiter,
		log:     log.Module("detector"),
		metrics: metrics.OrNoOp(recorder),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string { return c.baseURL }

// verifyResponse covers both the multi-region shape and the legacy
// single-result shape of the /api/verify response.
type verifyResponse struct {
	Status     string                `json:"status"`
	Message    string                `json:"message"`
	Detections []detection.Detection `json:"detections"`

	Result     string          `json:"result"`
	Confidence float64         `json:"confidence"`
	BBox       *detection.BBox `json:"bbox"`
}

// Detect uploads image to the service and returns the detected regions.
// An empty slice means the service found nothing.
func (c *Client) Detect(ctx context.Context, image []byte) ([]detection.Detection, error) {
	start := time.Now()
	url := c.baseURL + verifyPath

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.fail(metrics.OpDetect, url, start, classifyTransport(ctx, err), err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.http.PostFile(ctx, url, uploadField, uploadFilename, uploadContentType, image)
	if err != nil {
		return nil, c.fail(metrics.OpDetect, url, start, classifyTransport(ctx, err), err)
	}
	defer closeBody(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(metrics.OpDetect, url, start, classifyTransport(ctx, err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(metrics.OpDetect, url, start, ErrProtocol,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, preview(body)))
	}

	detections, err := decodeVerifyResponse(body)
	if err != nil {
		return nil, c.fail(metrics.OpDetect, url, start, ErrProtocol, err)
	}

	c.metrics.RecordOperation(metrics.OpDetect, metrics.StatusSuccess)
	c.metrics.RecordDuration(metrics.OpDetect, time.Since(start).Seconds())
	c.log.Debug("detection completed",
		logger.Int("regions", len(detections)),
		logger.Int("image_bytes", len(image)),
		logger.Duration("duration", time.Since(start)))

	return detections, nil
}

// Health probes GET {url}/health.
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	url := c.baseURL + healthPath

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return c.fail(metrics.OpHealth, url, start, classifyTransport(ctx, err), err)
	}
	defer closeBody(resp.Body)
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(metrics.OpHealth, url, start, ErrProtocol, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	c.metrics.RecordOperation(metrics.OpHealth, metrics.StatusSuccess)
	c.metrics.RecordDuration(metrics.OpHealth, time.Since(start).Seconds())
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) fail(op, url string, start time.Time, kind, cause error) error {
	elapsed := time.Since(start)
	errType := errorType(kind)

	c.metrics.RecordOperation(op, metrics.StatusError)
	c.metrics.RecordError(op, errType)
	c.metrics.RecordDuration(op, elapsed.Seconds())

	c.log.Warn("detector request failed",
		logger.String("operation", op),
		logger.String("error_type", errType),
		logger.Duration("duration", elapsed),
		logger.Error(cause))

	category := errors.CategoryDetector
	if kind == ErrTimeout {
		category = errors.CategoryTimeout
	}

	return errors.New(fmt.Errorf("%w: %w", kind, cause)).
		Component("detector").
		Category(category).
		NetworkContext(url, c.timeout).
		Context("operation", op).
		Timing(op, elapsed).
		Build()
}

func decodeVerifyResponse(body []byte) ([]detection.Detection, error) {
	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, preview(body))
	}

	if strings.EqualFold(vr.Status, "error") {
		return nil, fmt.Errorf("service reported error: %s", vr.Message)
	}

	if vr.Detections != nil {
		return vr.Detections, nil
	}

	if vr.Result == "" {
		return []detection.Detection{}, nil
	}

	// legacy single-result shape
	result, err := detection.ParseResult(vr.Result)
	if err != nil {
		return nil, err
	}
	d := detection.Detection{
		Stage1Label:      string(result),
		Stage1Confidence: vr.Confidence,
		Combined:         result,
	}
	if vr.BBox != nil {
		d.BBox = *vr.BBox
	}
	return []detection.Detection{d}, nil
}

// classifyTransport maps a failed round trip onto ErrTimeout or ErrUnreachable.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return ErrTimeout
	}
	// the limiter reports a wait that would outlast the deadline as a plain error
	if strings.Contains(err.Error(), "would exceed context deadline") {
		return ErrTimeout
	}
	return ErrUnreachable
}

func errorType(kind error) string {
	switch kind {
	case ErrTimeout:
		return "timeout"
	case ErrProtocol:
		return "protocol"
	default:
		return "unreachable"
	}
}

func preview(body []byte) string {
	if len(body) > previewBytes {
		return string(body[:previewBytes]) + "..."
	}
	return string(body)
}

func closeBody(body io.ReadCloser) {
	_ = body.Close()
}
