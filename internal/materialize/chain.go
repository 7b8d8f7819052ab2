package materialize

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotApplicable marks a step that declined to run or produced nothing
// useful; the chain moves on without treating it as a failure.
var ErrNotApplicable = errors.New("step not applicable")

// ErrExhausted is returned when no step of a chain succeeded.
var ErrExhausted = errors.New("all strategies exhausted")

// Outcome is the typed result of one strategy attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkip
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkip:
		return "skip"
	default:
		return "error"
	}
}

// Step is one strategy in an ordered fallback chain.
type Step[I, O any] struct {
	Name string
	Run  func(ctx context.Context, in I) (O, error)
}

// Attempt records how a step went.
type Attempt struct {
	Step    string
	Outcome Outcome
	Err     error
}

func (a Attempt) String() string {
	if a.Err == nil {
		return fmt.Sprintf("%s: %s", a.Step, a.Outcome)
	}
	return fmt.Sprintf("%s: %s (%v)", a.Step, a.Outcome, a.Err)
}

// RunChain tries steps in order and returns the first success. Cancellation
// aborts the chain immediately.
func RunChain[I, O any](ctx context.Context, in I, steps []Step[I, O]) (O, []Attempt, error) {
	var zero O
	attempts := make([]Attempt, 0, len(steps))
	var lastErr error

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return zero, attempts, err
		}

		out, err := step.Run(ctx, in)
		switch {
		case err == nil:
			attempts = append(attempts, Attempt{Step: step.Name, Outcome: OutcomeSuccess})
			return out, attempts, nil
		case ctx.Err() != nil:
			attempts = append(attempts, Attempt{Step: step.Name, Outcome: OutcomeError, Err: err})
			return zero, attempts, err
		case errors.Is(err, ErrNotApplicable):
			attempts = append(attempts, Attempt{Step: step.Name, Outcome: OutcomeSkip, Err: err})
		default:
			attempts = append(attempts, Attempt{Step: step.Name, Outcome: OutcomeError, Err: err})
			lastErr = err
		}
	}

	if lastErr != nil {
		return zero, attempts, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
	}
	return zero, attempts, ErrExhausted
}
