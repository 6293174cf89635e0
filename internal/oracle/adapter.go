package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
	"github.com/ledgerhound/ledgerhound/internal/service"
)

// Config holds configuration for the oracle adapter.
type Config struct {
	Endpoint   string
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	RateLimit  int // requests per minute
}

// Adapter implements service.Oracle over a low-level Client, adding rate
// limiting, bounded retry with exponential backoff, per-call timeouts, and
// strict response validation.
type Adapter struct {
	client    Client
	limiter   *rateLimiter
	retryOpts service.RetryOptions
	timeout   time.Duration
}

// NewAdapter creates an adapter with the default HTTP transport.
func NewAdapter(cfg Config) (*Adapter, error) {
	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle client: %w", err)
	}
	return NewAdapterWithClient(client, cfg), nil
}

// NewAdapterWithClient creates an adapter over a caller-supplied transport.
// Used by tests to inject a scripted client.
func NewAdapterWithClient(client Client, cfg Config) *Adapter {
	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Adapter{
		client:    client,
		limiter:   newRateLimiter(cfg.RateLimit),
		retryOpts: retryOpts,
		timeout:   timeout,
	}
}

// Classify asks the oracle for a category. Synchronous from the caller's
// point of view; cancellation propagates through ctx. Transient failures
// are retried up to the attempt ceiling, then surface as
// OracleError{Exhausted}; non-transient failures surface immediately as
// OracleError{Fatal}.
func (a *Adapter) Classify(ctx context.Context, description string, amount float64, currency string) (service.OracleResponse, error) {
	if err := a.limiter.wait(ctx); err != nil {
		return service.OracleResponse{}, err
	}

	var raw Response
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		resp, err := a.client.Classify(callCtx, Request{
			Description: description,
			Amount:      amount,
			Currency:    currency,
		})
		if err != nil {
			if isFatalRequest(err) {
				return &common.RetryableError{Err: err, Retryable: false}
			}
			return &common.RetryableError{Err: err, Retryable: true}
		}
		raw = resp
		return nil
	}

	if err := common.WithRetry(ctx, operation, a.retryOpts); err != nil {
		if ctx.Err() != nil {
			return service.OracleResponse{}, ctx.Err()
		}
		if isFatalRequest(err) {
			return service.OracleResponse{}, common.NewOracleError(common.OracleFatal, err)
		}
		return service.OracleResponse{}, common.NewOracleError(common.OracleExhausted, err)
	}

	validated, err := validate(raw)
	if err != nil {
		return service.OracleResponse{}, err
	}

	slog.Debug("oracle classified",
		"category", validated.Category,
		"confidence", validated.Confidence)

	return validated, nil
}

// Close releases the rate limiter.
func (a *Adapter) Close() {
	a.limiter.Close()
}

// validate coerces the raw wire response into the strict internal schema.
// Unrecognized categories fail closed as fatal rather than passing through.
func validate(raw Response) (service.OracleResponse, error) {
	category := model.Category(raw.Category)
	if !model.ValidCategory(category) {
		return service.OracleResponse{}, common.NewOracleError(common.OracleFatal,
			fmt.Errorf("unrecognized category %q", raw.Category))
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return service.OracleResponse{
		Category:   category,
		Confidence: confidence,
		Rationale:  raw.Rationale,
	}, nil
}
