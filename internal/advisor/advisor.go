// Package advisor is the diagnostic escalation hook: when deterministic
// retry rules are exhausted, an unresolved error can be handed to an external
// advisory service. Advice is strictly advisory and the whole interface is
// optional; the Noop implementation keeps the pipeline correct without it.
package advisor

import (
	"context"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// Action is the advisor's recommended handling of an unresolved error.
type Action string

const (
	ActionRetry Action = "retry"
	ActionSkip  Action = "skip"
	ActionAbort Action = "abort"
)

// Advice is the advisor's response. Rationale is free text for the run log,
// never parsed for control flow.
type Advice struct {
	Action    Action
	Rationale string
}

// Advisor analyzes an unresolved error and recommends an action. Any failure
// or timeout of the advisor itself must be treated by the caller as Abort.
type Advisor interface {
	Advise(ctx context.Context, rec *domain.ErrorRecord) (Advice, error)
}

// Noop is the deterministic fallback advisor: it always recommends Abort.
type Noop struct{}

// Advise implements Advisor.
func (Noop) Advise(_ context.Context, _ *domain.ErrorRecord) (Advice, error) {
	return Advice{Action: ActionAbort, Rationale: "no advisor configured"}, nil
}
