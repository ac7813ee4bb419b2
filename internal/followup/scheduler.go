package followup

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/sketchpilot-dev/sketchpilot/pkg/errors"
)

// Reasons a follow-up gets scheduled.
const (
	ReasonAddDetail = "add_detail"
	ReasonLowAction = "low_action"
	ReasonSeeded    = "seeded"
)

// Task is one continuation request for a session.
type Task struct {
	Message         string    `json:"message"`
	OriginalMessage string    `json:"original_message"`
	Depth           int       `json:"depth"`
	Hint            string    `json:"hint,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Strict          bool      `json:"strict,omitempty"`
	TargetIDs       []string  `json:"target_ids,omitempty"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

// Queue is the session's view of follow-up scheduling. Dequeue returns tasks
// in FIFO order.
type Queue interface {
	Enqueue(t Task) error
	Dequeue() (Task, bool)
	Len() int
}

// queueCapacity bounds how many tasks a single session can hold at once.
const queueCapacity = 16

// Scheduler is the in-memory bounded follow-up queue. Depth beyond the
// configured maximum is rejected, never silently truncated.
type Scheduler struct {
	mu       sync.Mutex
	maxDepth int
	tasks    []Task
}

func NewScheduler(maxDepth int) *Scheduler {
	return &Scheduler{maxDepth: maxDepth}
}

// Enqueue accepts a task whose depth is within the bound.
func (s *Scheduler) Enqueue(t Task) error {
	if t.Depth > s.maxDepth {
		return apperrors.New(apperrors.ErrCodeFollowupRejected,
			fmt.Sprintf("depth %d exceeds maximum %d", t.Depth, s.maxDepth), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) >= queueCapacity {
		return apperrors.New(apperrors.ErrCodeFollowupRejected, "queue full", nil)
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	s.tasks = append(s.tasks, t)
	return nil
}

// Dequeue pops the oldest task.
func (s *Scheduler) Dequeue() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return Task{}, false
	}
	t := s.tasks[0]
	s.tasks = s.tasks[1:]
	return t, true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Backoff computes the delay enforced before running the iteration-th
// follow-up of a session: monotonically increasing, capped at max.
func Backoff(iteration int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < iteration; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
