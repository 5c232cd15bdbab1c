package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer bounds the number of steps a single Run call may take.
//
// A graph with repeatable sources never runs dry, and a loop whose exit
// condition never fails never completes; the bound is what guarantees that
// Run returns.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates an enforcer allowing maxSteps steps.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one more step and fails once the count passes the limit.
func (q *QuotaEnforcer) Check(graph string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Graph: graph,
			Steps: q.current - 1,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the number of steps counted so far.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError reports a run that reached its step bound without
// completing. It is a diagnostic for drivers; Run itself reports the bound
// through Outcome.LimitReached.
type StepsExceededError struct {
	Graph   string
	Steps   int
	Limit   int
	Pending int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("graph %s did not complete within %d steps (%d tokens pending)",
		e.Graph, e.Limit, e.Pending)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
