package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sketchpilot-dev/sketchpilot/pkg/action"
)

func testActions() []action.AgentAction {
	return []action.AgentAction{
		{ID: "c1", Name: action.NameCreateShape, Params: action.CreateShapeParams{
			ID: "n1", Type: "note", X: 10, Y: 20,
		}},
	}
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("sess-1", 0, testActions(), false, []string{"req-9"})
	require.NoError(t, err)

	require.Equal(t, Version, env.V)
	require.Equal(t, "sess-1", env.SessionID)
	require.Equal(t, uint64(0), env.Seq)
	require.False(t, env.Partial)
	require.Equal(t, []string{"req-9"}, env.Correlation)
	require.NotZero(t, env.Hash)
	require.NotZero(t, env.TS)
}

func TestEnvelope_HashStableAcrossTime(t *testing.T) {
	a, err := NewEnvelope("sess-1", 3, testActions(), false, nil)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	b, err := NewEnvelope("sess-1", 3, testActions(), false, nil)
	require.NoError(t, err)

	// A retry re-derives the same hash even though the timestamp moved.
	require.Equal(t, a.Hash, b.Hash)
}

func TestEnvelope_HashVariesByContent(t *testing.T) {
	base, err := NewEnvelope("sess-1", 0, testActions(), false, nil)
	require.NoError(t, err)

	otherSeq, err := NewEnvelope("sess-1", 1, testActions(), false, nil)
	require.NoError(t, err)
	require.NotEqual(t, base.Hash, otherSeq.Hash)

	otherSession, err := NewEnvelope("sess-2", 0, testActions(), false, nil)
	require.NoError(t, err)
	require.NotEqual(t, base.Hash, otherSession.Hash)

	moved := testActions()
	moved[0].Params = action.CreateShapeParams{ID: "n1", Type: "note", X: 99, Y: 20}
	otherActions, err := NewEnvelope("sess-1", 0, moved, false, nil)
	require.NoError(t, err)
	require.NotEqual(t, base.Hash, otherActions.Hash)
}

func TestEnvelope_EmptyBatch(t *testing.T) {
	env, err := NewEnvelope("sess-1", 7, nil, false, nil)
	require.NoError(t, err)
	require.NotZero(t, env.Hash)
}
