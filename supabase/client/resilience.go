package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/billing_layer/internal/metrics"
)

// =============================================================================
// Retry Configuration
// =============================================================================

// RetryConfig configures retry behavior. Only GET and HEAD requests are
// retried; writes are attempted once.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry policy used by the billing service.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// OnStateChange is called synchronously, outside the breaker lock.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing upstream for a cool-down period.
type CircuitBreaker struct {
	mu sync.Mutex

	config CircuitBreakerConfig
	state  CircuitState
	now    func() time.Time

	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// Allow returns ErrCircuitOpen while the circuit is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	var from CircuitState
	changed := false
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) <= cb.config.Timeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		from, changed = cb.transitionTo(CircuitHalfOpen)
	}
	cb.mu.Unlock()
	cb.notify(from, CircuitHalfOpen, changed)
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var from CircuitState
	changed := false
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			from, changed = cb.transitionTo(CircuitClosed)
		}
	}
	cb.mu.Unlock()
	cb.notify(from, CircuitClosed, changed)
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	cb.lastError = err
	var from CircuitState
	changed := false
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			from, changed = cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		from, changed = cb.transitionTo(CircuitOpen)
	}
	cb.mu.Unlock()
	cb.notify(from, CircuitOpen, changed)
}

// transitionTo must be called with mu held.
func (cb *CircuitBreaker) transitionTo(next CircuitState) (CircuitState, bool) {
	prev := cb.state
	if prev == next {
		return prev, false
	}
	cb.state = next
	switch next {
	case CircuitClosed:
		cb.failures = 0
		cb.successes = 0
	case CircuitOpen:
		cb.openedAt = cb.now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	}
	return prev, true
}

func (cb *CircuitBreaker) notify(from, to CircuitState, changed bool) {
	if changed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// LastError returns the last recorded error.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastError
}

// =============================================================================
// Resilient HTTP Client
// =============================================================================

// ResilientClientConfig configures the resilient client.
type ResilientClientConfig struct {
	BaseClient           *http.Client
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
}

// DefaultResilientClientConfig returns default retry and breaker settings.
func DefaultResilientClientConfig() ResilientClientConfig {
	return ResilientClientConfig{
		RetryConfig:          DefaultRetryConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	}
}

// ResilientClient wraps an HTTP client with retry and circuit breaker.
type ResilientClient struct {
	client         *http.Client
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker

	total, ok, failed, retried, rejected atomic.Int64
}

func (rc *ResilientClient) count(n *atomic.Int64, outcome string) {
	n.Add(1)
	metrics.RecordUpstream(outcome)
}

// NewResilientClient creates a new resilient HTTP client.
func NewResilientClient(config ResilientClientConfig) *ResilientClient {
	if config.BaseClient == nil {
		config.BaseClient = &http.Client{Timeout: 30 * time.Second, Transport: defaultTransport()}
	}
	return &ResilientClient{
		client:         config.BaseClient,
		retryConfig:    config.RetryConfig,
		circuitBreaker: NewCircuitBreaker(config.CircuitBreakerConfig),
	}
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// Do executes an HTTP request with retry and circuit breaker.
func (rc *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	rc.total.Add(1)

	if err := rc.circuitBreaker.Allow(); err != nil {
		rc.count(&rc.rejected, "rejected")
		return nil, err
	}

	maxRetries := rc.retryConfig.MaxRetries
	if !isIdempotent(req.Method) {
		maxRetries = 0
	}

	var (
		lastErr error
		resp    *http.Response
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			rc.count(&rc.retried, "retried")
			select {
			case <-req.Context().Done():
				rc.circuitBreaker.RecordFailure(req.Context().Err())
				rc.count(&rc.failed, "failed")
				return nil, req.Context().Err()
			case <-time.After(rc.calculateBackoff(attempt)):
			}
			req = req.Clone(req.Context())
		}

		resp, lastErr = rc.client.Do(req)
		if lastErr != nil {
			if attempt < maxRetries && isRetryableError(lastErr) {
				continue
			}
			rc.circuitBreaker.RecordFailure(lastErr)
			rc.count(&rc.failed, "failed")
			return nil, lastErr
		}

		if rc.isRetryableStatusCode(resp.StatusCode) {
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
			if attempt < maxRetries {
				resp.Body.Close()
				continue
			}
			break
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			rc.circuitBreaker.RecordFailure(&HTTPError{StatusCode: resp.StatusCode})
			rc.count(&rc.failed, "failed")
			return resp, nil
		}

		rc.circuitBreaker.RecordSuccess()
		rc.count(&rc.ok, "ok")
		return resp, nil
	}

	// Retries exhausted on a retryable status: hand the last response back so
	// the caller can read the error body.
	rc.circuitBreaker.RecordFailure(lastErr)
	rc.count(&rc.failed, "failed")
	return resp, nil
}

func (rc *ResilientClient) calculateBackoff(attempt int) time.Duration {
	backoff := float64(rc.retryConfig.InitialBackoff) * math.Pow(rc.retryConfig.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(rc.retryConfig.MaxBackoff) {
		backoff = float64(rc.retryConfig.MaxBackoff)
	}
	if rc.retryConfig.Jitter > 0 {
		backoff += backoff * rc.retryConfig.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func (rc *ResilientClient) isRetryableStatusCode(code int) bool {
	for _, retryable := range rc.retryConfig.RetryableStatusCodes {
		if code == retryable {
			return true
		}
	}
	return false
}

// HTTPError is a bare status failure seen by the breaker.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.StatusCode)
}

// Metrics returns client counters.
func (rc *ResilientClient) Metrics() map[string]int64 {
	return map[string]int64{
		"total_requests":    rc.total.Load(),
		"success_requests":  rc.ok.Load(),
		"failed_requests":   rc.failed.Load(),
		"retried_requests":  rc.retried.Load(),
		"rejected_requests": rc.rejected.Load(),
	}
}

// CircuitState returns the current circuit breaker state.
func (rc *ResilientClient) CircuitState() CircuitState {
	return rc.circuitBreaker.State()
}

// resilientTransport adapts ResilientClient to http.RoundTripper.
type resilientTransport struct {
	client *ResilientClient
}

func (rt *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.client.Do(req)
}
