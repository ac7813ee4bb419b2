package followup

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-logr/logr"
	"gorm.io/gorm"

	apperrors "github.com/sketchpilot-dev/sketchpilot/pkg/errors"
)

// taskRecord is the durable form of a follow-up task.
type taskRecord struct {
	ID              uint   `gorm:"primaryKey"`
	SessionID       string `gorm:"index"`
	Message         string
	OriginalMessage string
	Depth           int
	Hint            string
	Reason          string
	Strict          bool
	TargetIDs       string // JSON-encoded []string
	EnqueuedAt      time.Time
	ConsumedAt      *time.Time
}

// TodoRecord persists a todo action emitted by the model.
type TodoRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index"`
	Text      string
	CreatedAt time.Time
}

// Store persists follow-up tasks and todo records in sqlite.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (and migrates) the sqlite store at path.
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStoreFailed, "open followup store", err)
	}
	if err := db.AutoMigrate(&taskRecord{}, &TodoRecord{}); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStoreFailed, "migrate followup store", err)
	}
	return &Store{db: db}, nil
}

// Enqueue persists a task for a session.
func (s *Store) Enqueue(sessionID string, t Task) error {
	ids, err := json.Marshal(t.TargetIDs)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeStoreFailed, "encode target ids", err)
	}
	rec := taskRecord{
		SessionID:       sessionID,
		Message:         t.Message,
		OriginalMessage: t.OriginalMessage,
		Depth:           t.Depth,
		Hint:            t.Hint,
		Reason:          t.Reason,
		Strict:          t.Strict,
		TargetIDs:       string(ids),
		EnqueuedAt:      t.EnqueuedAt,
	}
	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = time.Now()
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeStoreFailed, "persist followup", err)
	}
	return nil
}

// Dequeue returns the oldest unconsumed task for a session and marks it
// consumed.
func (s *Store) Dequeue(sessionID string) (Task, bool, error) {
	var rec taskRecord
	err := s.db.Where("session_id = ? AND consumed_at IS NULL", sessionID).
		Order("id").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, apperrors.New(apperrors.ErrCodeStoreFailed, "load followup", err)
	}

	now := time.Now()
	if err := s.db.Model(&rec).Update("consumed_at", &now).Error; err != nil {
		return Task{}, false, apperrors.New(apperrors.ErrCodeStoreFailed, "consume followup", err)
	}

	var ids []string
	if rec.TargetIDs != "" {
		_ = json.Unmarshal([]byte(rec.TargetIDs), &ids)
	}
	return Task{
		Message:         rec.Message,
		OriginalMessage: rec.OriginalMessage,
		Depth:           rec.Depth,
		Hint:            rec.Hint,
		Reason:          rec.Reason,
		Strict:          rec.Strict,
		TargetIDs:       ids,
		EnqueuedAt:      rec.EnqueuedAt,
	}, true, nil
}

// Pending counts unconsumed tasks for a session.
func (s *Store) Pending(sessionID string) (int64, error) {
	var n int64
	err := s.db.Model(&taskRecord{}).
		Where("session_id = ? AND consumed_at IS NULL", sessionID).Count(&n).Error
	return n, err
}

// SaveTodo persists a todo record.
func (s *Store) SaveTodo(sessionID, text string) error {
	rec := TodoRecord{SessionID: sessionID, Text: text, CreatedAt: time.Now()}
	if err := s.db.Create(&rec).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeStoreFailed, "persist todo", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DurableQueue adapts the store to the Queue interface for one session,
// falling back to an in-memory scheduler when the store misbehaves. The
// fallback is transparent: the session keeps running either way.
type DurableQueue struct {
	sessionID string
	store     *Store
	fallback  *Scheduler
	maxDepth  int
	log       logr.Logger

	degraded bool
}

func NewDurableQueue(sessionID string, store *Store, maxDepth int, log logr.Logger) *DurableQueue {
	return &DurableQueue{
		sessionID: sessionID,
		store:     store,
		fallback:  NewScheduler(maxDepth),
		maxDepth:  maxDepth,
		log:       log.WithName("followup-store"),
	}
}

func (q *DurableQueue) Enqueue(t Task) error {
	if t.Depth > q.maxDepth {
		return apperrors.New(apperrors.ErrCodeFollowupRejected, "depth exceeds maximum", nil)
	}
	if q.degraded {
		return q.fallback.Enqueue(t)
	}
	if err := q.store.Enqueue(q.sessionID, t); err != nil {
		q.degrade(err)
		return q.fallback.Enqueue(t)
	}
	return nil
}

func (q *DurableQueue) Dequeue() (Task, bool) {
	if q.degraded {
		return q.fallback.Dequeue()
	}
	t, ok, err := q.store.Dequeue(q.sessionID)
	if err != nil {
		q.degrade(err)
		return q.fallback.Dequeue()
	}
	return t, ok
}

func (q *DurableQueue) Len() int {
	if q.degraded {
		return q.fallback.Len()
	}
	n, err := q.store.Pending(q.sessionID)
	if err != nil {
		q.degrade(err)
		return q.fallback.Len()
	}
	return int(n)
}

func (q *DurableQueue) degrade(err error) {
	if !q.degraded {
		q.log.Error(err, "followup store unavailable, falling back to in-memory queue")
		q.degraded = true
	}
}
