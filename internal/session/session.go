package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the per-run state of one user-triggered pipeline execution. It is
// owned by a single goroutine and discarded when the run completes; the only
// state that survives it lives in the durable follow-up store.
type Session struct {
	ID        string
	RoomID    string
	StartedAt time.Time

	seq     uint64
	seqUsed bool

	// created is the idempotency registry: every entity id minted by a
	// dispatched batch, consulted by the sanitizer's dedup pass.
	created map[string]struct{}

	// Aggregate counters reported at session end.
	ActionCount  int
	DropCount    int
	RetryCount   int
	TimeoutCount int
	Turns        int

	firstAckSeen bool
}

func New(roomID string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		StartedAt: time.Now(),
		created:   make(map[string]struct{}),
	}
}

// NextSeq returns the next envelope sequence number, starting at zero and
// strictly increasing with no gaps.
func (s *Session) NextSeq() uint64 {
	if !s.seqUsed {
		s.seqUsed = true
		return 0
	}
	s.seq++
	return s.seq
}

// RegisterCreated records ids minted by a dispatched batch.
func (s *Session) RegisterCreated(ids []string) {
	for _, id := range ids {
		s.created[id] = struct{}{}
	}
}

// CreatedIDs exposes the idempotency registry for the sanitizer's refs.
func (s *Session) CreatedIDs() map[string]struct{} {
	return s.created
}

// FirstAck reports true exactly once, on the first acknowledged envelope.
func (s *Session) FirstAck() bool {
	if s.firstAckSeen {
		return false
	}
	s.firstAckSeen = true
	return true
}
