package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/vietddude/notefetch/internal/advisor"
	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/metrics"
)

// ErrSkipped marks a task abandoned on advisor recommendation. The caller
// records it as skipped rather than failed.
var ErrSkipped = errors.New("task skipped on advisor recommendation")

// Budget bounds the retry behavior of one logical operation.
type Budget struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	JitterFraction float64
}

// DefaultBudget matches the shipped configuration defaults.
var DefaultBudget = Budget{
	MaxAttempts:    5,
	BaseBackoff:    time.Second,
	JitterFraction: 0.2,
}

// Decision is the policy's verdict on a classified failure.
type Decision int

const (
	DecisionAbort Decision = iota
	DecisionRetryNow
	DecisionRetryAfter
	DecisionRefreshAndRetry
	DecisionEscalate
)

func (d Decision) String() string {
	switch d {
	case DecisionAbort:
		return "abort"
	case DecisionRetryNow:
		return "retry_now"
	case DecisionRetryAfter:
		return "retry_after"
	case DecisionRefreshAndRetry:
		return "refresh_and_retry"
	case DecisionEscalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// Outcome pairs a Decision with the delay to wait before acting on it.
type Outcome struct {
	Decision Decision
	Delay    time.Duration
}

// RefreshFunc forces a credential refresh. Wired to the token manager.
type RefreshFunc func(ctx context.Context) error

// Policy turns classified failures into recovery decisions and executes
// them. Safe for concurrent use by multiple workers.
type Policy struct {
	budget  Budget
	advisor advisor.Advisor
	refresh RefreshFunc
	log     *slog.Logger

	// sleep is swapped out in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
	// jitter returns a multiplier in [1-f, 1+f].
	jitter func(fraction float64) float64
}

// New creates a Policy. A nil adv falls back to advisor.Noop; a nil refresh
// makes every auth expiry terminal.
func New(budget Budget, adv advisor.Advisor, refresh RefreshFunc) *Policy {
	if budget.MaxAttempts <= 0 {
		budget.MaxAttempts = DefaultBudget.MaxAttempts
	}
	if budget.BaseBackoff <= 0 {
		budget.BaseBackoff = DefaultBudget.BaseBackoff
	}
	if adv == nil {
		adv = advisor.Noop{}
	}
	return &Policy{
		budget:  budget,
		advisor: adv,
		refresh: refresh,
		log:     slog.Default().With("component", "retry"),
		sleep:   sleepCtx,
		jitter: func(fraction float64) float64 {
			if fraction <= 0 {
				return 1
			}
			return 1 + fraction*(2*rand.Float64()-1)
		},
	}
}

// Decide applies the policy rules, strictly in order, to the accumulated
// record of one operation. It never blocks and never touches the network.
func (p *Policy) Decide(rec *domain.ErrorRecord, hint time.Duration) Outcome {
	switch rec.Kind {
	case domain.ErrorKindFatal:
		return Outcome{Decision: DecisionAbort}

	case domain.ErrorKindAuthExpired:
		if rec.RefreshAttempted || p.refresh == nil {
			return Outcome{Decision: DecisionAbort}
		}
		return Outcome{Decision: DecisionRefreshAndRetry}

	case domain.ErrorKindRateLimited:
		if rec.RetryCount >= p.budget.MaxAttempts {
			return Outcome{Decision: DecisionEscalate}
		}
		delay := hint
		if delay <= 0 {
			delay = p.backoff(rec.RetryCount)
		}
		return Outcome{Decision: DecisionRetryAfter, Delay: delay}

	case domain.ErrorKindTransient:
		if rec.RetryCount >= p.budget.MaxAttempts {
			return Outcome{Decision: DecisionEscalate}
		}
		return Outcome{Decision: DecisionRetryAfter, Delay: p.backoff(rec.RetryCount)}

	default:
		return Outcome{Decision: DecisionEscalate}
	}
}

// backoff computes the exponential delay for retry attempt n (0-based),
// with jitter applied.
func (p *Policy) backoff(n int) time.Duration {
	d := float64(p.budget.BaseBackoff) * math.Pow(2, float64(n))
	d *= p.jitter(p.budget.JitterFraction)
	const ceiling = 2 * time.Minute
	if d > float64(ceiling) {
		return ceiling
	}
	return time.Duration(d)
}

// Do runs fn under the full recovery loop: classify, decide, wait, retry,
// refresh, or escalate. Escalated retries are hard-capped at twice the
// attempt budget no matter what the advisor says; an advisor failure is
// treated as Abort.
func (p *Policy) Do(ctx context.Context, operation, resource string, fn func(ctx context.Context) error) error {
	rec := &domain.ErrorRecord{Operation: operation, Resource: resource}

	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind := Classify(err)
		rec.Observe(kind, HTTPStatus(err), err)
		metrics.RequestErrorsTotal.WithLabelValues(operation, string(kind)).Inc()
		out := p.Decide(rec, RetryAfterHint(err))

		p.log.Debug("Recovery decision",
			"operation", operation,
			"kind", kind,
			"decision", out.Decision.String(),
			"retries", rec.RetryCount)

		switch out.Decision {
		case DecisionAbort:
			return err

		case DecisionRefreshAndRetry:
			rec.RefreshAttempted = true
			metrics.RetriesTotal.WithLabelValues(string(kind)).Inc()
			if rerr := p.refresh(ctx); rerr != nil {
				return fmt.Errorf("%s: %w", operation, rerr)
			}

		case DecisionRetryNow:
			rec.RetryCount++
			metrics.RetriesTotal.WithLabelValues(string(kind)).Inc()

		case DecisionRetryAfter:
			rec.RetryCount++
			metrics.RetriesTotal.WithLabelValues(string(kind)).Inc()
			if serr := p.sleep(ctx, out.Delay); serr != nil {
				return serr
			}

		case DecisionEscalate:
			if rec.RetryCount >= 2*p.budget.MaxAttempts {
				p.log.Warn("Escalated retry ceiling reached",
					"operation", operation, "retries", rec.RetryCount)
				return err
			}
			metrics.EscalationsTotal.Inc()
			advice, aerr := p.advisor.Advise(ctx, rec)
			if aerr != nil {
				p.log.Warn("Advisor unavailable, aborting operation",
					"operation", operation, "error", aerr)
				return err
			}
			switch advice.Action {
			case advisor.ActionRetry:
				rec.RetryCount++
				metrics.RetriesTotal.WithLabelValues(string(rec.Kind)).Inc()
				if serr := p.sleep(ctx, p.backoff(rec.RetryCount)); serr != nil {
					return serr
				}
			case advisor.ActionSkip:
				p.log.Info("Skipping on advisor recommendation",
					"operation", operation, "rationale", advice.Rationale)
				return fmt.Errorf("%s: %w", operation, ErrSkipped)
			default:
				return err
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
