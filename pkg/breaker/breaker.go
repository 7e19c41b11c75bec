// Package breaker implements a circuit breaker around an llm.LLMClient:
// closed/open/half-open states with a failure-count threshold and
// cool-down timeout.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/logx"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed State = iota // Normal operation.
	Open                // Failing, reject requests.
	HalfOpen            // Testing if the provider recovered.
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines circuit breaker thresholds.
type Config struct {
	FailureThreshold   int           // Failures within Window before opening.
	SuccessThreshold   int           // Successes to close the circuit from half-open.
	Window             time.Duration // Rolling window the failure count is measured over.
	Cooldown           time.Duration // Time to wait before trying half-open.
	MaxConcurrentCalls int           // Maximum concurrent calls while half-open.
}

// DefaultConfig matches the K=5/window=60s/cool-down=60s defaults.
var DefaultConfig = Config{ //nolint:gochecknoglobals
	FailureThreshold:   5,
	SuccessThreshold:   3,
	Window:             60 * time.Second,
	Cooldown:           60 * time.Second,
	MaxConcurrentCalls: 3,
}

// Error reports that a request was rejected because the circuit is open.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Client wraps an llm.LLMClient with circuit breaker behavior.
type Client struct {
	client llm.LLMClient
	logger *logx.Logger
	config Config

	mu              sync.RWMutex
	state           State
	failureCount    int
	successCount    int
	halfOpenCalls   int
	windowStart     time.Time
	lastFailureTime time.Time
}

// New creates a circuit breaker around client using cfg.
func New(client llm.LLMClient, cfg Config, logger *logx.Logger) *Client {
	return &Client{client: client, config: cfg, logger: logger, state: Closed}
}

// Complete implements llm.LLMClient.
func (cb *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := cb.allowRequest(); err != nil {
		return llm.CompletionResponse{}, err
	}

	resp, err := cb.client.Complete(ctx, req)
	cb.recordResult(err == nil)

	if err != nil {
		return resp, fmt.Errorf("llm complete request failed: %w", err)
	}
	return resp, nil
}

// Stream implements llm.LLMClient.
func (cb *Client) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	if err := cb.allowRequest(); err != nil {
		return nil, err
	}

	ch, err := cb.client.Stream(ctx, req)
	// Establishing the stream is what we track; individual chunks aren't.
	cb.recordResult(err == nil)

	if err != nil {
		return ch, fmt.Errorf("llm stream request failed: %w", err)
	}
	return ch, nil
}

// GetDefaultConfig delegates to the underlying client.
func (cb *Client) GetDefaultConfig() llm.ModelDefaults {
	return cb.client.GetDefaultConfig()
}

// State returns the current circuit state.
func (cb *Client) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// FailureCount returns the current failure count within the window.
func (cb *Client) FailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}

// Reset forces the circuit back to closed. Intended for tests.
func (cb *Client) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = Closed
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
	cb.windowStart = time.Time{}
}

func (cb *Client) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return nil

	case Open:
		if time.Since(cb.lastFailureTime) >= cb.config.Cooldown {
			cb.state = HalfOpen
			cb.halfOpenCalls = 0
			cb.successCount = 0
			return nil
		}
		return &Error{State: Open}

	case HalfOpen:
		if cb.halfOpenCalls >= cb.config.MaxConcurrentCalls {
			return &Error{State: HalfOpen}
		}
		cb.halfOpenCalls++
		return nil

	default:
		return &Error{State: cb.state}
	}
}

func (cb *Client) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == HalfOpen {
		cb.halfOpenCalls--
	}

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *Client) onSuccess() {
	switch cb.state {
	case Closed:
		cb.failureCount = 0
		cb.windowStart = time.Time{}

	case HalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = Closed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *Client) onFailure() {
	now := time.Now()

	if cb.windowStart.IsZero() || now.Sub(cb.windowStart) > cb.config.Window {
		cb.windowStart = now
		cb.failureCount = 0
	}
	cb.failureCount++
	cb.lastFailureTime = now

	switch cb.state {
	case Closed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = Open
			if cb.logger != nil {
				cb.logger.Warn("circuit breaker opened after %d failures in %s", cb.failureCount, cb.config.Window)
			}
		}

	case HalfOpen:
		cb.state = Open
		cb.successCount = 0
		if cb.logger != nil {
			cb.logger.Warn("circuit breaker reopened from half-open on failure")
		}
	}
}
