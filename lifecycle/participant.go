package lifecycle

import "context"

// Participant is any long-lived component managed through the
// Created -> Initializing -> Ready -> ShuttingDown -> Terminated state machine.
//
// A participant never mutates its own lifecycle state; the Manager that
// registered it is the sole owner of the state record.
type Participant interface {
	// Initialize acquires the participant's resources. Called exactly once,
	// by the owning Manager, while the participant is in Initializing state.
	Initialize(ctx context.Context) error

	// Cleanup releases the participant's resources. Called exactly once,
	// during unregistration or shutdown, in ShuttingDown state.
	Cleanup(ctx context.Context) error
}

// ParticipantFunc adapts a pair of functions to the Participant interface.
// Either function may be nil, in which case the phase is a no-op.
type ParticipantFunc struct {
	InitFunc    func(ctx context.Context) error
	CleanupFunc func(ctx context.Context) error
}

func (p *ParticipantFunc) Initialize(ctx context.Context) error {
	if p.InitFunc == nil {
		return nil
	}
	return p.InitFunc(ctx)
}

func (p *ParticipantFunc) Cleanup(ctx context.Context) error {
	if p.CleanupFunc == nil {
		return nil
	}
	return p.CleanupFunc(ctx)
}
