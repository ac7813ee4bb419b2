package canvas

import "context"

// ShapeInfo is the per-shape entry of a canvas snapshot summary.
type ShapeInfo struct {
	ID    string            `json:"id"`
	Type  string            `json:"type"`
	Box   Box               `json:"box"`
	Props map[string]string `json:"props,omitempty"`
}

// ShapeSummary is a read-only view of the shapes currently on a canvas,
// produced by the document's authoritative store.
type ShapeSummary struct {
	Shapes     []ShapeInfo `json:"shapes"`
	DocVersion int64       `json:"doc_version"`
}

// IDSet returns the set of shape ids present in the summary.
func (s ShapeSummary) IDSet() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Shapes))
	for _, sh := range s.Shapes {
		ids[sh.ID] = struct{}{}
	}
	return ids
}

// SnapshotSource provides consistent shape summaries for a room. It is an
// external collaborator; consistency under concurrent writers is its concern.
type SnapshotSource interface {
	ShapeSummary(ctx context.Context, roomID string) (*ShapeSummary, error)
}
