// dispatcher.go - Model waterfall with per-credential retry

package ai

import (
	"context"
	"math"
	"time"

	"github.com/bosocmputer/statement_ledger/internal/common"
)

// RetryConfig defines retry behavior for transient provider errors
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for retry behavior
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    2 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// Waiter is satisfied by the rate limiter.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Attempt describes a call about to be made; progress observers use it to
// show which model and key are serving the current chunk.
type Attempt struct {
	Model      ModelSpec
	Credential Credential
	Try        int
}

// Result is a successful dispatch.
type Result struct {
	Text       string
	Usage      common.TokenUsage
	Model      ModelSpec
	Credential Credential
	Calls      int
}

// Dispatcher walks models in priority order and, per model, the credentials
// of its provider. Network errors are retried on the same credential with
// exponential backoff, quota errors move to the next credential, and fatal
// errors abort. Given the same sequence of provider outcomes the sequence of
// (model, credential) pairs tried is always the same.
type Dispatcher struct {
	providers   map[string]Provider
	models      []ModelSpec
	credentials map[string][]Credential
	retry       RetryConfig
	limiter     Waiter
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds a dispatcher. keys maps provider name to API keys in
// priority order.
func NewDispatcher(providers []Provider, models []ModelSpec, keys map[string][]string, retry RetryConfig) *Dispatcher {
	d := &Dispatcher{
		providers:   make(map[string]Provider, len(providers)),
		models:      append([]ModelSpec(nil), models...),
		credentials: make(map[string][]Credential),
		retry:       retry,
		sleep:       sleepContext,
	}
	if d.retry.MaxAttempts < 1 {
		d.retry.MaxAttempts = 1
	}
	if d.retry.BackoffMultiple <= 0 {
		d.retry.BackoffMultiple = DefaultRetryConfig.BackoffMultiple
	}
	for _, p := range providers {
		d.providers[p.Name()] = p
	}
	for provider, list := range keys {
		for i, k := range list {
			d.credentials[provider] = append(d.credentials[provider], Credential{Provider: provider, Key: k, Ordinal: i + 1})
		}
	}
	return d
}

// WithLimiter makes every call wait on w first.
func (d *Dispatcher) WithLimiter(w Waiter) *Dispatcher {
	d.limiter = w
	return d
}

// WithSleep replaces the backoff sleep, for tests.
func (d *Dispatcher) WithSleep(fn func(ctx context.Context, delay time.Duration) error) *Dispatcher {
	d.sleep = fn
	return d
}

// Models returns the configured waterfall.
func (d *Dispatcher) Models() []ModelSpec {
	return append([]ModelSpec(nil), d.models...)
}

// Dispatch runs req through the waterfall. observe, when set, is called
// before every provider call.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, reqCtx *common.RequestContext, observe func(Attempt)) (*Result, error) {
	var last error
	calls := 0

	for _, model := range d.models {
		provider, ok := d.providers[model.Provider]
		if !ok {
			reqCtx.LogWarning("No adapter for provider %q, skipping %s", model.Provider, model.Label)
			continue
		}

	nextCredential:
		for _, cred := range d.credentials[model.Provider] {
			for try := 1; try <= d.retry.MaxAttempts; try++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if d.limiter != nil {
					if err := d.limiter.Wait(ctx); err != nil {
						return nil, err
					}
				}
				if observe != nil {
					observe(Attempt{Model: model, Credential: cred, Try: try})
				}

				calls++
				reqCtx.CountCall()
				out, err := provider.Invoke(ctx, cred.Key, model.Name, req)
				if err == nil {
					if try > 1 {
						reqCtx.LogInfo("✅ Retry succeeded on attempt %d (%s, key #%d)", try, model.Label, cred.Ordinal)
					}
					return &Result{Text: out.Text, Usage: out.Usage, Model: model, Credential: cred, Calls: calls}, nil
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}

				pErr := Classify(model.Provider, model.Name, err)
				last = pErr

				switch pErr.Kind {
				case KindFatal:
					reqCtx.LogError("%s key #%d: non-retryable error, aborting: %s", model.Label, cred.Ordinal, pErr.Error())
					return nil, pErr
				case KindQuota:
					reqCtx.LogWarning("%s key #%d: quota exhausted, trying next key", model.Label, cred.Ordinal)
					continue nextCredential
				}

				reqCtx.LogError("%s key #%d: call failed (attempt %d/%d): %s",
					model.Label, cred.Ordinal, try, d.retry.MaxAttempts, pErr.Error())
				if try >= d.retry.MaxAttempts {
					break
				}
				delay := calculateBackoff(try, d.retry)
				reqCtx.LogInfo("Waiting %v before retry", delay)
				if err := d.sleep(ctx, delay); err != nil {
					return nil, err
				}
			}
		}
	}

	if calls == 0 {
		last = ErrNoCredentials
	}
	reqCtx.LogError("❌ All models exhausted after %d call(s)", calls)
	return nil, &AllResourcesExhaustedError{Calls: calls, Last: last}
}

// calculateBackoff computes exponential backoff delay
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt-1))

	// Cap at max delay
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
