// Package webhook delivers Discord webhook notifications through a queue,
// a worker pool, a shared rate limit and retry with jittered backoff.
// Delivery is best effort; callers never block on the remote endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"twitchbot/internal/eventbus"
	rtsup "twitchbot/internal/runtime/supervisor"
	logx "twitchbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("webhook queue full")
	ErrStopped   = errors.New("webhook service stopped")
	ErrNoURL     = errors.New("webhook url is empty")
)

// StatusError is a non-2xx webhook response.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook status %d: %s", e.Code, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type job struct {
	key string
	url string
	msg Message
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	client *http.Client

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping
}

func New(cfg Config, client *http.Client, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if client == nil {
		client = http.DefaultClient
	}
	s := &Service{log: log, bus: bus, client: client}
	s.applyLocked(cfg)
	return s
}

// Apply swaps tuning knobs. Worker and queue sizes take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s.cfg = cfg
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "webhook"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			// Clean exits happen on shutdown (queue close).
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("webhook worker exited unexpectedly")
		})
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers drain.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force-stop internal loops.
		sup.Cancel()
	}
}

// Notify enqueues msg for asynchronous delivery to webhookURL. Key is a
// correlation id carried into logs and bus events.
func (s *Service) Notify(ctx context.Context, key, webhookURL string, msg Message) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if webhookURL == "" {
		return ErrNoURL
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- job{key: key, url: webhookURL, msg: msg}:
		s.emit(key, webhookURL, eventbus.WebhookQueued, 0, nil)
		return nil
	default:
		s.emit(key, webhookURL, eventbus.WebhookDropped, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

// Post performs one synchronous delivery attempt.
func (s *Service) Post(ctx context.Context, webhookURL string, msg Message) error {
	if webhookURL == "" {
		return ErrNoURL
	}
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if msg.Username == "" {
		msg.Username = cfg.Username
	}
	if msg.AvatarURL == "" {
		msg.AvatarURL = cfg.AvatarURL
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook encode: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Code:       resp.StatusCode,
		Body:       string(bytes.TrimSpace(snippet)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	log := s.log.With(logx.Key(j.key), logx.String("host", hostOf(j.url)))

	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		// Rate limit (honor cancellation).
		if err := lim.Wait(ctx); err != nil {
			return
		}
		err := s.Post(ctx, j.url, j.msg)
		if err == nil {
			s.emit(j.key, j.url, eventbus.WebhookSent, attempt, nil)
			log.Debug("webhook delivered", logx.Int("attempt", attempt))
			return
		}
		lastErr = err
		log.Debug("webhook send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			break
		}
		if attempt >= maxAttempts {
			break
		}

		delay := retryDelay(cfg, attempt)
		if se != nil && se.RetryAfter > delay {
			delay = min(se.RetryAfter, cfg.RetryMaxDelay)
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	log.Warn("webhook delivery failed", logx.Err(lastErr), logx.Int("attempts", min(attempt, maxAttempts)))
	s.emit(j.key, j.url, eventbus.WebhookFailed, min(attempt, maxAttempts), lastErr)
}

func (s *Service) emit(key, webhookURL, outcome string, attempts int, err error) {
	ev := eventbus.WebhookEvent{Key: key, Host: hostOf(webhookURL), Outcome: outcome, Attempts: attempts}
	if err != nil {
		ev.Error = err.Error()
	}
	eventbus.Emit(s.bus, eventbus.TopicWebhook, ev)
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d < 0 {
		return 0
	}
	return min(d, cfg.RetryMaxDelay)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
