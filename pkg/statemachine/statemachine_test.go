package statemachine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/communitykit/pkg/statemachine"
)

type status string

type event string

const (
	statusPending  status = "pending"
	statusActive   status = "active"
	statusPastDue  status = "past_due"
	statusCanceled status = "canceled"

	eventPaid     event = "paid"
	eventFailed   event = "failed"
	eventCanceled event = "canceled"
)

func newTestMachine() *statemachine.Machine[status, event] {
	return statemachine.New[status, event]().
		Permit(statusPending, eventPaid, statusActive).
		Permit(statusActive, eventFailed, statusPastDue).
		Permit(statusActive, eventPaid, statusActive).
		Permit(statusPastDue, eventPaid, statusActive).
		Permit(statusPending, eventCanceled, statusCanceled).
		Permit(statusActive, eventCanceled, statusCanceled).
		Permit(statusPastDue, eventCanceled, statusCanceled).
		Terminal(statusCanceled)
}

func TestMachine_Next(t *testing.T) {
	t.Parallel()

	m := newTestMachine()

	tests := []struct {
		name    string
		from    status
		on      event
		want    status
		wantErr bool
	}{
		{name: "pending paid", from: statusPending, on: eventPaid, want: statusActive},
		{name: "active failed", from: statusActive, on: eventFailed, want: statusPastDue},
		{name: "self transition", from: statusActive, on: eventPaid, want: statusActive},
		{name: "recovery", from: statusPastDue, on: eventPaid, want: statusActive},
		{name: "undeclared pair", from: statusPending, on: eventFailed, wantErr: true},
		{name: "unknown state", from: status("bogus"), on: eventPaid, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := m.Next(tt.from, tt.on)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, statemachine.IsNoTransitionError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMachine_Terminal(t *testing.T) {
	t.Parallel()

	m := newTestMachine()

	require.True(t, m.IsTerminal(statusCanceled))
	require.False(t, m.IsTerminal(statusActive))

	// No event moves an entity out of a terminal state.
	for _, ev := range []event{eventPaid, eventFailed, eventCanceled} {
		_, err := m.Next(statusCanceled, ev)
		assert.ErrorIs(t, err, statemachine.ErrTerminalState)
		assert.False(t, m.Can(statusCanceled, ev))
	}
}

func TestMachine_Can(t *testing.T) {
	t.Parallel()

	m := newTestMachine()

	assert.True(t, m.Can(statusPending, eventPaid))
	assert.False(t, m.Can(statusPending, eventFailed))
}

func TestMachine_PanicsOnConflictingTable(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		statemachine.New[status, event]().
			Terminal(statusCanceled).
			Permit(statusCanceled, eventPaid, statusActive)
	})

	assert.Panics(t, func() {
		statemachine.New[status, event]().
			Permit(statusCanceled, eventPaid, statusActive).
			Terminal(statusCanceled)
	})
}
