package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PresenceRecorder persists a user's online flag and last-seen time. It is
// owned by the storage layer; the engine only ever writes through it.
type PresenceRecorder interface {
	UpdatePresence(ctx context.Context, userID uuid.UUID, online bool, seenAt time.Time) error
}

// Recorders fans one presence write out to several recorders. Every recorder
// is attempted; failures are joined.
func Recorders(rs ...PresenceRecorder) PresenceRecorder {
	return multiRecorder(rs)
}

type multiRecorder []PresenceRecorder

func (m multiRecorder) UpdatePresence(ctx context.Context, userID uuid.UUID, online bool, seenAt time.Time) error {
	var errs []error
	for _, r := range m {
		if err := r.UpdatePresence(ctx, userID, online, seenAt); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("collab.Recorders: %w", errors.Join(errs...))
	}
	return nil
}

type presenceRecord struct {
	userID uuid.UUID
	online bool
	at     time.Time
}

// LastSeenWriter applies presence records in order on a background
// goroutine. Record never blocks: when the queue is full the record is
// dropped and a warning is logged.
type LastSeenWriter struct {
	recorder PresenceRecorder
	queue    chan presenceRecord
	timeout  time.Duration
	closed   bool
}

// NewLastSeenWriter creates a writer with the given queue size and per-write
// timeout. recorder may be nil, in which case records are discarded.
func NewLastSeenWriter(recorder PresenceRecorder, size int, timeout time.Duration) *LastSeenWriter {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LastSeenWriter{
		recorder: recorder,
		queue:    make(chan presenceRecord, size),
		timeout:  timeout,
	}
}

// Record queues a presence write. Must be called from a single goroutine
// (the engine loop), and not after Close.
func (w *LastSeenWriter) Record(userID uuid.UUID, online bool, at time.Time) {
	if w.recorder == nil || w.closed {
		return
	}
	select {
	case w.queue <- presenceRecord{userID: userID, online: online, at: at}:
	default:
		log.Warn().Str("user_id", userID.String()).Bool("online", online).Msg("collab: last-seen queue full, dropping write")
	}
}

// Close stops accepting records. Run returns once the queue is drained.
func (w *LastSeenWriter) Close() {
	if w.closed {
		return
	}
	w.closed = true
	close(w.queue)
}

// Run drains the queue until Close is called.
func (w *LastSeenWriter) Run() {
	for rec := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.recorder.UpdatePresence(ctx, rec.userID, rec.online, rec.at)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("user_id", rec.userID.String()).Bool("online", rec.online).Msg("collab: last-seen write failed")
		}
	}
}
