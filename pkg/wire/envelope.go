package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sketchpilot-dev/sketchpilot/pkg/action"
)

// Version is the envelope wire version. Bump only on incompatible changes to
// the envelope shape.
const Version = 1

// ActionEnvelope is the unit of delivery: a sequenced, versioned container
// for one batch of actions. Seq is strictly increasing per session with no
// gaps; Partial marks an in-progress streaming batch.
type ActionEnvelope struct {
	V           int                  `json:"v"`
	SessionID   string               `json:"sessionId"`
	Seq         uint64               `json:"seq"`
	Actions     []action.AgentAction `json:"actions"`
	Partial     bool                 `json:"partial"`
	TS          int64                `json:"ts"`
	Correlation []string             `json:"correlation,omitempty"`

	// Hash is the content hash of (sessionId, seq, actions). A resend with
	// the same hash is byte-identical delivery-wise; receivers use it to
	// detect duplicate application and senders to key acknowledgment waits.
	Hash uint64 `json:"hash"`
}

// NewEnvelope builds an envelope for a batch and derives its content hash.
func NewEnvelope(sessionID string, seq uint64, actions []action.AgentAction, partial bool, correlation []string) (*ActionEnvelope, error) {
	env := &ActionEnvelope{
		V:           Version,
		SessionID:   sessionID,
		Seq:         seq,
		Actions:     actions,
		Partial:     partial,
		TS:          time.Now().UnixMilli(),
		Correlation: correlation,
	}
	h, err := contentHash(sessionID, seq, actions)
	if err != nil {
		return nil, fmt.Errorf("hash envelope: %w", err)
	}
	env.Hash = h
	return env, nil
}

// contentHash digests the delivery-relevant fields. The timestamp is
// deliberately excluded so a retry hashes identically to the original send.
func contentHash(sessionID string, seq uint64, actions []action.AgentAction) (uint64, error) {
	body, err := json.Marshal(actions)
	if err != nil {
		return 0, err
	}
	d := xxhash.New()
	fmt.Fprintf(d, "%s\x00%d\x00", sessionID, seq)
	d.Write(body)
	return d.Sum64(), nil
}
