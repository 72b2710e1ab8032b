// internal/ingest/resilient.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

// RetryPolicy bounds how hard a backend is retried before giving up.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		AttemptTimeout:  5 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// ErrorObserver is notified of every operation that finally failed.
type ErrorObserver interface {
	IngestError(operation string)
}

// Resilient wraps a backend with bounded exponential-backoff retries behind a
// circuit breaker. Failures surface as ErrIngestionUnavailable, never as a hang.
type Resilient struct {
	source   Source
	fetcher  WindowFetcher
	policy   RetryPolicy
	breaker  *gobreaker.CircuitBreaker
	observer ErrorObserver
	logger   *zap.Logger
}

// NewResilient wraps source and fetcher. Either may be nil; observer may be nil.
func NewResilient(source Source, fetcher WindowFetcher, policy RetryPolicy, observer ErrorObserver, logger *zap.Logger) *Resilient {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = DefaultRetryPolicy().AttemptTimeout
	}
	name := "ingest"
	if source != nil {
		name = source.Name()
	}

	r := &Resilient{
		source:   source,
		fetcher:  fetcher,
		policy:   policy,
		observer: observer,
		logger:   logger,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     policy.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return policy.BreakerFailures > 0 && counts.ConsecutiveFailures >= policy.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Ingest circuit breaker state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return r
}

func (r *Resilient) Name() string {
	if r.source == nil {
		return "unavailable"
	}
	return r.source.Name()
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (r *Resilient) BreakerState() string {
	return r.breaker.State().String()
}

func (r *Resilient) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	b.MaxElapsedTime = 0 // bounded by attempts instead
	return backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxAttempts-1), ctx)
}

// retry runs attempt through the breaker until it succeeds or the policy is exhausted.
func (r *Resilient) retry(ctx context.Context, operation string, attempt func() error) error {
	tries := 0
	err := backoff.Retry(func() error {
		tries++
		_, err := r.breaker.Execute(func() (interface{}, error) {
			return nil, attempt()
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if err != nil {
			r.logger.Debug("Ingest attempt failed",
				zap.String("operation", operation),
				zap.Int("attempt", tries),
				zap.Error(err),
			)
		}
		return err
	}, r.newBackOff(ctx))
	if err == nil {
		return nil
	}

	if r.observer != nil {
		r.observer.IngestError(operation)
	}
	r.logger.Error("Ingest backend unavailable",
		zap.String("backend", r.Name()),
		zap.String("operation", operation),
		zap.Int("attempts", tries),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s %s: %v", ErrIngestionUnavailable, r.Name(), operation, err)
}

// FetchWindow returns an empty, non-nil slice together with the error when the
// backend cannot be reached.
func (r *Resilient) FetchWindow(ctx context.Context, from, to time.Time) ([]data.Reading, error) {
	if r.fetcher == nil {
		return []data.Reading{}, fmt.Errorf("%w: no history backend configured", ErrIngestionUnavailable)
	}

	var readings []data.Reading
	err := r.retry(ctx, "fetch_window", func() error {
		actx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
		defer cancel()
		rs, err := r.fetcher.FetchWindow(actx, from, to)
		if err != nil {
			return err
		}
		readings = rs
		return nil
	})
	if err != nil {
		return []data.Reading{}, err
	}
	if readings == nil {
		readings = []data.Reading{}
	}
	return readings, nil
}

type subscribeResult struct {
	unsub Unsubscribe
	err   error
}

// Subscribe establishes the subscription. Each attempt is bounded by the attempt
// timeout; the subscription itself lives as long as ctx.
func (r *Resilient) Subscribe(ctx context.Context, onInsert func(data.Reading)) (Unsubscribe, error) {
	if r.source == nil {
		return nil, fmt.Errorf("%w: no live source configured", ErrIngestionUnavailable)
	}

	var unsub Unsubscribe
	err := r.retry(ctx, "subscribe", func() error {
		u, err := r.subscribeOnce(ctx, onInsert)
		if err != nil {
			return err
		}
		unsub = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unsub, nil
}

func (r *Resilient) subscribeOnce(ctx context.Context, onInsert func(data.Reading)) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	result := make(chan subscribeResult, 1)
	go func() {
		u, err := r.source.Subscribe(subCtx, onInsert)
		result <- subscribeResult{unsub: u, err: err}
	}()

	timer := time.NewTimer(r.policy.AttemptTimeout)
	defer timer.Stop()

	select {
	case res := <-result:
		if res.err != nil {
			cancel()
			return nil, res.err
		}
		var once sync.Once
		return func() {
			once.Do(func() {
				res.unsub()
				cancel()
			})
		}, nil
	case <-timer.C:
		cancel()
		go func() {
			// release a subscription that completed after we stopped waiting
			if res := <-result; res.err == nil && res.unsub != nil {
				res.unsub()
			}
		}()
		return nil, fmt.Errorf("subscribe timed out after %s", r.policy.AttemptTimeout)
	}
}
