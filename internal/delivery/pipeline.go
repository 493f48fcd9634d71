package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sdale511/p3-bridge/internal/p3"
	"github.com/sdale511/p3-bridge/internal/retry"
)

// Config is the post.* configuration surface from §6.
type Config struct {
	Enabled                bool
	BaseURL                string
	Path                   string
	Method                 string
	Timeout                time.Duration
	Retries                int
	RetryDelay             time.Duration
	RetryBackoffMultiplier float64
	QueueDrainMaxPerTick   int
	Headers                map[string]string
	QueuePath              string
	DrainInterval          time.Duration
}

// httpRetryMaxBackoff caps the inline-retry delay series. The retry
// count (cfg.Retries) bounds how long delivery stalls, not this; it
// just keeps the exponential growth from overflowing on a high
// retryBackoffMultiplier with many retries configured.
const httpRetryMaxBackoff = time.Hour

// DefaultConfig matches §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		Method:                 http.MethodPost,
		Timeout:                8000 * time.Millisecond,
		Retries:                5,
		RetryDelay:             500 * time.Millisecond,
		RetryBackoffMultiplier: 2,
		QueueDrainMaxPerTick:   5,
		DrainInterval:          30 * time.Second,
	}
}

// StatusSink receives delivery outcome counters; internal/status.Counters
// satisfies this without delivery importing status directly.
type StatusSink interface {
	IncHTTPSent()
	IncHTTPRetried()
	IncHTTPEnqueued()
	IncHTTPDrainedOK()
	IncHTTPDrainedFail()
	SetQueueDepth(int)
}

// Pipeline is the per-record delivery pipeline: immediate POST, inline
// retry, durable fallback queue, and a periodic/post-success drainer. It
// is the same single-writer discipline as a confirmation queue plus
// Push/UnsafePush retry shape.
type Pipeline struct {
	cfg    Config
	client *http.Client
	queue  *Queue
	status StatusSink
	log    Logger

	draining int32 // single-flight guard, 0 or 1
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Logger is the minimal logging surface the pipeline needs; satisfied by
// logrus.FieldLogger.
type Logger interface {
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// NewPipeline builds a pipeline against an already-loaded queue.
func NewPipeline(cfg Config, queue *Queue, status StatusSink, log Logger) *Pipeline {
	base := &http.Client{Timeout: cfg.Timeout}
	base.Transport = otelhttp.NewTransport(http.DefaultTransport)
	return &Pipeline{
		cfg:    cfg,
		client: base,
		queue:  queue,
		status: status,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Start launches the periodic drain ticker. It never blocks the caller.
func (p *Pipeline) Start() {
	p.ticker = time.NewTicker(p.cfg.DrainInterval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.ticker.C:
				p.Drain()
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Stop cancels the drain ticker and awaits an in-flight drain with a
// short grace period, matching §5's cancellation contract.
func (p *Pipeline) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.stopCh)
	done := make(chan struct{})
	go func() { p.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

// Deliver handles one parsed record end to end: build the envelope,
// attempt immediate POST with inline retry, and enqueue on persistent
// failure. If delivery is disabled, the record is only logged.
func (p *Pipeline) Deliver(ctx context.Context, rec *p3.Record) error {
	envelope := BuildEnvelope(rec)
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if !p.cfg.Enabled {
		p.log.Infof("delivery disabled, dropping record tor=%s", rec.TORName)
		return nil
	}

	url := p.cfg.BaseURL + p.cfg.Path
	outcome, status, attemptErr := p.attempt(ctx, url, body)
	p.status.IncHTTPSent()

	// Same backoff.ExponentialBackOff shape as the TCP reconnect sequence
	// (internal/retry), tuned to post.retryDelayMs/retryBackoffMultiplier
	// with no jitter. Each delay is capped at httpRetryMaxBackoff; the
	// inline-retry series itself is bounded by cfg.Retries, not by delay.
	delays := retry.New(retry.Config{
		Base:   p.cfg.RetryDelay,
		Factor: p.cfg.RetryBackoffMultiplier,
		Max:    httpRetryMaxBackoff,
		Jitter: 0,
	})

	attempt := 1
	for outcome == OutcomeRetryable && attempt <= p.cfg.Retries {
		select {
		case <-time.After(delays.Next()):
		case <-ctx.Done():
			return ctx.Err()
		}
		p.status.IncHTTPRetried()
		outcome, status, attemptErr = p.attempt(ctx, url, body)
		attempt++
	}

	if outcome == OutcomeSuccess {
		p.Drain()
		return nil
	}

	lastError := errorString(status, attemptErr)
	entry := Entry{
		ID:        uuid.NewString(),
		CreatedAt: rec.ReceivedAt,
		Method:    p.cfg.Method,
		URL:       url,
		Headers:   p.cfg.Headers,
		Payload:   body,
		Attempts:  uint32(attempt - 1),
		LastError: lastError,
	}
	p.status.IncHTTPEnqueued()
	p.status.SetQueueDepth(p.queue.Len() + 1)
	return p.queue.Enqueue(entry)
}

// attempt performs one POST and classifies its result.
func (p *Pipeline) attempt(ctx context.Context, url string, body []byte) (Outcome, int, error) {
	req, err := http.NewRequestWithContext(ctx, p.cfg.Method, url, bytes.NewReader(body))
	if err != nil {
		return OutcomeTerminal, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return OutcomeRetryable, 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return ClassifyStatus(resp.StatusCode), resp.StatusCode, nil
}

func errorString(status int, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("HTTP %d", status)
}

// draining single-flight guard using an atomic so concurrent drain
// triggers (timer + post-success) short-circuit instead of racing.
func (p *Pipeline) tryBeginDrain() bool {
	return atomic.CompareAndSwapInt32(&p.draining, 0, 1)
}

func (p *Pipeline) endDrain() {
	atomic.StoreInt32(&p.draining, 0)
}
