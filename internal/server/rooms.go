package server

import (
	"context"
	"sync"

	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
)

// RoomRegistry holds the last shape summary each room's document store pushed
// to us. It is the daemon's SnapshotSource; rooms that never reported are
// treated as empty canvases.
type RoomRegistry struct {
	mu        sync.RWMutex
	summaries map[string]*canvas.ShapeSummary
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{summaries: make(map[string]*canvas.ShapeSummary)}
}

// Update replaces a room's shape summary. Stale versions are ignored so
// out-of-order pushes cannot roll the view backwards.
func (r *RoomRegistry) Update(roomID string, sum *canvas.ShapeSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.summaries[roomID]; ok && prev.DocVersion > sum.DocVersion {
		return
	}
	r.summaries[roomID] = sum
}

func (r *RoomRegistry) ShapeSummary(ctx context.Context, roomID string) (*canvas.ShapeSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sum, ok := r.summaries[roomID]; ok {
		return sum, nil
	}
	return &canvas.ShapeSummary{}, nil
}
