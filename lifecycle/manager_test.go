package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/hubflow/types"
)

// recordingParticipant appends its name to a shared log on init and cleanup.
type recordingParticipant struct {
	name       string
	log        *[]string
	initErr    error
	cleanupErr error
}

func (p *recordingParticipant) Initialize(ctx context.Context) error {
	if p.initErr != nil {
		return p.initErr
	}
	*p.log = append(*p.log, "init:"+p.name)
	return nil
}

func (p *recordingParticipant) Cleanup(ctx context.Context) error {
	if p.cleanupErr != nil {
		return p.cleanupErr
	}
	*p.log = append(*p.log, "cleanup:"+p.name)
	return nil
}

func TestManager_RegisterAndGet(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	p := &recordingParticipant{name: "db", log: &log}
	require.NoError(t, m.Register(ctx, "db", p))

	got, ok := m.Get("db")
	require.True(t, ok)
	assert.Same(t, p, got)

	state, ok := m.State("db")
	require.True(t, ok)
	assert.Equal(t, StateReady, state)
	assert.Equal(t, []string{"init:db"}, log)
}

func TestManager_GetNotFound(t *testing.T) {
	m := NewManager(zap.NewNop())
	_, ok := m.Get("missing")
	assert.False(t, ok)
}

func TestManager_DuplicateName(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log}))

	err := m.Register(ctx, "db", &recordingParticipant{name: "db2", log: &log})
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateName, types.GetErrorCode(err))

	// The original registration is untouched.
	state, _ := m.State("db")
	assert.Equal(t, StateReady, state)
	assert.Equal(t, []string{"init:db"}, log)
}

func TestManager_InitFailure(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log, initErr: boom})
	require.Error(t, err)
	assert.Equal(t, types.ErrInitFailed, types.GetErrorCode(err))
	assert.ErrorIs(t, err, boom)

	// Recorded state is Error, never Ready, and the captured cause is kept.
	state, ok := m.State("db")
	require.True(t, ok)
	assert.Equal(t, StateError, state)
	assert.ErrorIs(t, m.Err("db"), boom)

	// A failed component is not part of the shutdown order.
	assert.Empty(t, m.Names())
}

func TestManager_RegisterAfterErrorReusesName(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	_ = m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log, initErr: errors.New("boom")})

	// The name held by an Error record may be registered again.
	require.NoError(t, m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log}))
	state, _ := m.State("db")
	assert.Equal(t, StateReady, state)
}

func TestManager_Unregister(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log}))
	require.NoError(t, m.Unregister(ctx, "db"))

	_, ok := m.Get("db")
	assert.False(t, ok)
	assert.Equal(t, []string{"init:db", "cleanup:db"}, log)

	// The name is immediately reusable.
	require.NoError(t, m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log}))
}

func TestManager_UnregisterNotFound(t *testing.T) {
	m := NewManager(zap.NewNop())
	err := m.Unregister(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestManager_UnregisterCleanupFailure(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "db",
		&recordingParticipant{name: "db", log: &log, cleanupErr: errors.New("stuck")}))

	err := m.Unregister(ctx, "db")
	require.Error(t, err)
	assert.Equal(t, types.ErrCleanupFailed, types.GetErrorCode(err))

	// Despite the failure the name is removed from the active set and reusable.
	_, ok := m.Get("db")
	assert.False(t, ok)
	require.NoError(t, m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log}))
}

func TestManager_ShutdownAllReverseOrder(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log}))
	require.NoError(t, m.Register(ctx, "cache", &recordingParticipant{name: "cache", log: &log}))
	require.NoError(t, m.Register(ctx, "server", &recordingParticipant{name: "server", log: &log}))

	report := m.ShutdownAll(ctx)
	require.NoError(t, report.Err())

	assert.Equal(t, []string{
		"init:db", "init:cache", "init:server",
		"cleanup:server", "cleanup:cache", "cleanup:db",
	}, log)

	names := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"server", "cache", "db"}, names)
	assert.Empty(t, m.Names())
}

func TestManager_ShutdownAllContinuesPastFailures(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log}))
	require.NoError(t, m.Register(ctx, "cache",
		&recordingParticipant{name: "cache", log: &log, cleanupErr: errors.New("stuck")}))
	require.NoError(t, m.Register(ctx, "server", &recordingParticipant{name: "server", log: &log}))

	report := m.ShutdownAll(ctx)

	// The failing component does not block teardown of the rest.
	assert.Equal(t, []string{
		"init:db", "init:cache", "init:server",
		"cleanup:server", "cleanup:db",
	}, log)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "cache", failed[0].Name)
	assert.Equal(t, StateError, failed[0].State)
	require.Error(t, report.Err())
	assert.Equal(t, types.ErrCleanupFailed, types.GetErrorCode(failed[0].Err))
}

func TestManager_ShutdownAllDropsFailedInitRecords(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "db", &recordingParticipant{name: "db", log: &log}))
	_ = m.Register(ctx, "bad", &recordingParticipant{name: "bad", log: &log, initErr: errors.New("boom")})

	report := m.ShutdownAll(ctx)
	require.NoError(t, report.Err())

	// The failed-init record never started, so it gets no cleanup result,
	// but the sweep still empties the registry.
	require.Len(t, report.Results, 1)
	assert.Equal(t, "db", report.Results[0].Name)
	assert.Empty(t, m.States())

	// The name is reusable after the sweep.
	require.NoError(t, m.Register(ctx, "bad", &recordingParticipant{name: "bad", log: &log}))
}

func TestManager_StatesSnapshot(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "a", &recordingParticipant{name: "a", log: &log}))
	_ = m.Register(ctx, "b", &recordingParticipant{name: "b", log: &log, initErr: errors.New("boom")})

	states := m.States()
	assert.Equal(t, StateReady, states["a"])
	assert.Equal(t, StateError, states["b"])
}
