package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chapterly/pkg/domain"
	"chapterly/pkg/playback"
)

// saveEvery throttles position writes between status changes.
const saveEvery = 5000 // ms

// Tracker turns session snapshots into throttled progress writes.
type Tracker struct {
	store Store
}

// NewTracker wraps a progress store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Observer returns a session observer that persists resume points for the
// given user. Writes happen on every status or chapter change, and at most
// once per 5 seconds of position movement in between. Failures are logged
// and never surface to transport controls.
func (t *Tracker) Observer(userID string) func(playback.Snapshot) {
	var mu sync.Mutex
	var last playback.Snapshot
	return func(snap playback.Snapshot) {
		if snap.Identity != domain.KindAuthenticated || snap.BookID == "" {
			return
		}
		mu.Lock()
		shouldSave := snap.Status != last.Status ||
			snap.BookID != last.BookID ||
			snap.ChapterIndex != last.ChapterIndex ||
			snap.PositionMs-last.PositionMs >= saveEvery ||
			snap.PositionMs < last.PositionMs
		if shouldSave {
			last = snap
		}
		mu.Unlock()
		if !shouldSave {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := t.store.Save(ctx, userID, Position{
			BookID:       snap.BookID,
			ChapterIndex: snap.ChapterIndex,
			PositionMs:   snap.PositionMs,
			UpdatedAt:    time.Now().UTC(),
		})
		if err != nil {
			slog.Warn("failed to persist listening progress", "user_id", userID, "book_id", snap.BookID, "err", err)
		}
	}
}
