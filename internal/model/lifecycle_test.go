package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to SubscriptionStatus
		ok       bool
	}{
		{StatusTrial, StatusActive, true},
		{StatusTrial, StatusExpired, true},
		{StatusTrial, StatusCancelled, true},
		{StatusTrial, StatusSuspended, false},
		{StatusActive, StatusSuspended, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusTrial, false},
		{StatusActive, StatusExpired, false},
		{StatusSuspended, StatusActive, true},
		{StatusSuspended, StatusCancelled, true},
		{StatusSuspended, StatusExpired, false},
		{StatusExpired, StatusActive, false},
		{StatusExpired, StatusTrial, false},
		{StatusCancelled, StatusActive, false},
		{StatusCancelled, StatusTrial, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTransition_SelfIsRejected(t *testing.T) {
	for _, s := range []SubscriptionStatus{StatusTrial, StatusActive, StatusSuspended, StatusCancelled, StatusExpired} {
		assert.False(t, CanTransition(s, s), "%s -> %s", s, s)
	}
}

func TestTenantTransition(t *testing.T) {
	tenant := &Tenant{SubscriptionStatus: StatusTrial}

	require.NoError(t, tenant.Transition(StatusActive))
	assert.Equal(t, StatusActive, tenant.SubscriptionStatus)

	require.NoError(t, tenant.Transition(StatusSuspended))
	require.NoError(t, tenant.Transition(StatusActive))
	require.NoError(t, tenant.Transition(StatusCancelled))

	// Cancelled is terminal; the state must not change on a rejected move.
	err := tenant.Transition(StatusActive)
	require.Error(t, err)
	assert.Equal(t, StatusCancelled, tenant.SubscriptionStatus)

	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusCancelled, invalid.From)
	assert.Equal(t, StatusActive, invalid.To)
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusTrial))
	assert.True(t, ValidStatus(StatusExpired))
	assert.False(t, ValidStatus("paused"))
	assert.False(t, ValidStatus(""))
}

func TestTrialDaysRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	end := now.AddDate(0, 0, 10)
	tenant := &Tenant{SubscriptionStatus: StatusTrial, SubscriptionEndDate: &end}
	assert.Equal(t, 10, tenant.TrialDaysRemaining(now))

	// Past the end date the countdown floors at zero.
	past := now.AddDate(0, 0, -3)
	tenant.SubscriptionEndDate = &past
	assert.Equal(t, 0, tenant.TrialDaysRemaining(now))

	// No end date recorded: full default window.
	tenant.SubscriptionEndDate = nil
	assert.Equal(t, DefaultTrialDays, tenant.TrialDaysRemaining(now))

	// Non-trial tenants have no trial countdown.
	tenant.SubscriptionStatus = StatusActive
	tenant.SubscriptionEndDate = &end
	assert.Equal(t, 0, tenant.TrialDaysRemaining(now))
}
