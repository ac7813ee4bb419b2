package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSession_NextSeq(t *testing.T) {
	s := New("room-1")

	// Strictly increasing from zero with no gaps.
	require.Equal(t, uint64(0), s.NextSeq())
	require.Equal(t, uint64(1), s.NextSeq())
	require.Equal(t, uint64(2), s.NextSeq())
}

func TestSession_FirstAck(t *testing.T) {
	s := New("room-1")
	require.True(t, s.FirstAck())
	require.False(t, s.FirstAck())
	require.False(t, s.FirstAck())
}

func TestSession_CreatedIDs(t *testing.T) {
	s := New("room-1")
	s.RegisterCreated([]string{"n1", "n2"})
	s.RegisterCreated([]string{"n2", "n3"})

	ids := s.CreatedIDs()
	require.Len(t, ids, 3)
	_, ok := ids["n2"]
	require.True(t, ok)
}

func TestSession_IdentityAndStart(t *testing.T) {
	a := New("room-1")
	b := New("room-1")
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, "room-1", a.RoomID)
	require.False(t, a.StartedAt.IsZero())
}
