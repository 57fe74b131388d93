package model

import "fmt"

// ErrInvalidTransition is returned when a subscription state change is not in
// the allowed transition table. The attempted transition is rejected before
// any state mutation.
type ErrInvalidTransition struct {
	From SubscriptionStatus
	To   SubscriptionStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid subscription transition: %s -> %s", e.From, e.To)
}

// allowedTransitions is the closed transition table for tenant subscriptions.
// expired and cancelled are terminal; cancellation is reachable from every
// non-terminal state.
var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	StatusTrial:     {StatusActive, StatusExpired, StatusCancelled},
	StatusActive:    {StatusSuspended, StatusCancelled},
	StatusSuspended: {StatusActive, StatusCancelled},
	StatusExpired:   {},
	StatusCancelled: {},
}

// ValidStatus reports whether s is a known subscription status.
func ValidStatus(s SubscriptionStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether moving from one subscription status to
// another is allowed.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies a subscription state change to the tenant, rejecting
// anything outside the transition table. Every interface (REST, CLI, admin)
// funnels through this one function so the allowed set is defined exactly once.
func (t *Tenant) Transition(to SubscriptionStatus) error {
	if !ValidStatus(to) {
		return fmt.Errorf("unknown subscription status %q", to)
	}
	if !CanTransition(t.SubscriptionStatus, to) {
		return &ErrInvalidTransition{From: t.SubscriptionStatus, To: to}
	}
	t.SubscriptionStatus = to
	return nil
}
