// Package consensus decides whether a reviewer's alternative grade replaces
// the primary grader's result.
package consensus

import (
	"errors"
	"fmt"

	"GradePipeline/internal/domain"
	"GradePipeline/internal/rubric"
)

// DefaultThreshold is the minimum reviewer confidence needed to substitute.
const DefaultThreshold = 0.7

// ErrIllegalTransition is returned when a case is driven out of order.
var ErrIllegalTransition = errors.New("illegal consensus transition")

// State is the position of a case in its lifecycle.
type State int

const (
	StatePending State = iota
	StateReviewed
	StateKept
	StateSubstituted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReviewed:
		return "reviewed"
	case StateKept:
		return "kept"
	case StateSubstituted:
		return "substituted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Policy holds the tunables of a substitution decision.
type Policy struct {
	Threshold float64
}

// DefaultPolicy uses DefaultThreshold.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold}
}

// Decision is the settled outcome for one submitter.
type Decision struct {
	State            State
	Final            domain.GradingResult
	Score            int
	Verdict          domain.ReviewVerdict
	LowConfidence    bool
	OriginalScore    *int
	OriginalFeedback string
}

// Substituted reports whether the reviewer's grade became final.
func (d Decision) Substituted() bool {
	return d.State == StateSubstituted
}

// Case walks Pending -> Reviewed -> Kept|Substituted for a single submitter.
type Case struct {
	state   State
	primary domain.GradingResult
	verdict domain.ReviewVerdict
}

// NewCase opens a pending case around an already reconciled primary result.
func NewCase(primary domain.GradingResult) *Case {
	return &Case{state: StatePending, primary: primary}
}

// State returns the current lifecycle position.
func (c *Case) State() State {
	return c.state
}

// Record attaches the reviewer's verdict.
func (c *Case) Record(verdict domain.ReviewVerdict) error {
	if c.state != StatePending {
		return fmt.Errorf("%w: record verdict in state %s", ErrIllegalTransition, c.state)
	}
	c.verdict = verdict.Normalize()
	c.state = StateReviewed
	return nil
}

// Settle applies the policy and moves the case into a terminal state.
func (c *Case) Settle(policy Policy, r domain.Rubric) (Decision, error) {
	if c.state != StateReviewed {
		return Decision{}, fmt.Errorf("%w: settle in state %s", ErrIllegalTransition, c.state)
	}

	primary := rubric.Reconcile(c.primary, r)
	v := c.verdict

	if v.Fair {
		c.state = StateKept
		return Decision{State: StateKept, Final: primary, Score: rubric.Total(primary), Verdict: v}, nil
	}

	if v.Confidence >= policy.Threshold && v.Alternative != nil {
		c.state = StateSubstituted
		final := rubric.Reconcile(*v.Alternative, r)
		original := rubric.Total(primary)
		return Decision{
			State:            StateSubstituted,
			Final:            final,
			Score:            rubric.Total(final),
			Verdict:          v,
			OriginalScore:    &original,
			OriginalFeedback: primary.OverallFeedback,
		}, nil
	}

	c.state = StateKept
	return Decision{
		State:         StateKept,
		Final:         primary,
		Score:         rubric.Total(primary),
		Verdict:       v,
		LowConfidence: true,
	}, nil
}

// Resolver settles cases with a fixed policy.
type Resolver struct {
	policy Policy
}

// NewResolver falls back to DefaultThreshold for thresholds outside (0,1].
func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Resolver{policy: Policy{Threshold: threshold}}
}

// Threshold exposes the configured substitution threshold.
func (r *Resolver) Threshold() float64 {
	return r.policy.Threshold
}

// Resolve drives a fresh case through its whole lifecycle.
func (r *Resolver) Resolve(primary domain.GradingResult, verdict domain.ReviewVerdict, rb domain.Rubric) Decision {
	c := NewCase(primary)
	// A fresh case always accepts Record then Settle.
	_ = c.Record(verdict)
	d, _ := c.Settle(r.policy, rb)
	return d
}
