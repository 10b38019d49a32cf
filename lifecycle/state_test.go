package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/hubflow/types"
)

func TestTransition_LegalEdges(t *testing.T) {
	legal := []struct {
		from, to ComponentState
	}{
		{StateCreated, StateInitializing},
		{StateInitializing, StateReady},
		{StateInitializing, StateError},
		{StateReady, StateShuttingDown},
		{StateReady, StateError},
		{StateShuttingDown, StateTerminated},
		{StateShuttingDown, StateError},
	}

	for _, tc := range legal {
		next, err := Transition(tc.from, tc.to)
		require.NoError(t, err, "%s -> %s must be legal", tc.from, tc.to)
		assert.Equal(t, tc.to, next)
	}
}

func TestTransition_IllegalEdges(t *testing.T) {
	illegal := []struct {
		from, to ComponentState
	}{
		{StateCreated, StateReady},         // must pass through Initializing
		{StateCreated, StateTerminated},    // no skipping
		{StateCreated, StateError},         // Error unreachable before init begins
		{StateInitializing, StateCreated},  // no going back
		{StateReady, StateTerminated},      // must pass through ShuttingDown
		{StateReady, StateCreated},         // no going back
		{StateTerminated, StateReady},      // absorbing
		{StateTerminated, StateCreated},    // absorbing
		{StateError, StateReady},           // no auto-recovery
		{StateError, StateInitializing},    // no auto-recovery
		{StateShuttingDown, StateReady},    // shutdown is one-way
		{StateInitializing, StateShuttingDown},
	}

	for _, tc := range illegal {
		next, err := Transition(tc.from, tc.to)
		require.Error(t, err, "%s -> %s must be rejected", tc.from, tc.to)
		assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
		// Rejected transitions leave the state untouched.
		assert.Equal(t, tc.from, next)
	}
}

func TestTransition_UnknownState(t *testing.T) {
	_, err := Transition(ComponentState("bogus"), StateReady)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}
