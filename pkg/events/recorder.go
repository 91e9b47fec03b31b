package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chapterly/pkg/domain"
	"chapterly/pkg/playback"
)

// Event types emitted by the recorder.
const (
	TypeLoaded         = "session.loaded"
	TypePlayed         = "playback.played"
	TypePaused         = "playback.paused"
	TypeChapterChanged = "playback.chapter_changed"
	TypeEnded          = "playback.chapter_ended"
	TypeSleepFired     = "sleep_timer.fired"
)

// Recorder diffs consecutive session snapshots into listening events.
type Recorder struct {
	publisher Publisher
}

// NewRecorder wraps a publisher.
func NewRecorder(publisher Publisher) *Recorder {
	return &Recorder{publisher: publisher}
}

// Observer returns a session observer emitting events for the given
// session key.
func (r *Recorder) Observer(sessionKey string) func(playback.Snapshot) {
	var mu sync.Mutex
	var prev playback.Snapshot
	return func(snap playback.Snapshot) {
		mu.Lock()
		evType := transition(prev, snap)
		prev = snap
		mu.Unlock()
		if evType == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := r.publisher.Publish(ctx, Event{
			Type:         evType,
			SessionKey:   sessionKey,
			BookID:       snap.BookID,
			ChapterIndex: snap.ChapterIndex,
			PositionMs:   snap.PositionMs,
		})
		if err != nil {
			slog.Warn("failed to publish listening event", "type", evType, "book_id", snap.BookID, "err", err)
		}
	}
}

func transition(prev, snap playback.Snapshot) string {
	switch {
	case snap.BookID != prev.BookID:
		return TypeLoaded
	case snap.ChapterIndex != prev.ChapterIndex:
		return TypeChapterChanged
	case snap.Status == prev.Status:
		return ""
	case snap.Status == domain.StatusPlaying:
		return TypePlayed
	case snap.Status == domain.StatusEnded:
		return TypeEnded
	case snap.Status == domain.StatusPaused && prev.Status == domain.StatusPlaying:
		// A pause that consumed the pending deadline came from the timer.
		if !prev.SleepDeadline.IsZero() && snap.SleepDeadline.IsZero() {
			return TypeSleepFired
		}
		return TypePaused
	default:
		return ""
	}
}
