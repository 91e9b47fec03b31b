// Package app wires the catalog, playback registry, progress tracking and
// event publishing into one service facade the HTTP layer calls into.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chapterly/internal/ratelimit"
	"chapterly/pkg/catalog"
	"chapterly/pkg/domain"
	"chapterly/pkg/events"
	"chapterly/pkg/playback"
	"chapterly/pkg/progress"
	"chapterly/pkg/storage"
)

// Deps holds the backing services the app composes. Publisher, Limiter and
// Audio may be nil; the corresponding features degrade gracefully.
type Deps struct {
	Catalog      catalog.Store
	Progress     progress.Store
	Audio        storage.AudioStore
	Publisher    events.Publisher
	Limiter      *ratelimit.FixedWindowLimiter
	TickInterval time.Duration
	StreamURLTTL time.Duration
}

// App is the playback service facade.
type App struct {
	catalog      catalog.Store
	progress     progress.Store
	audio        storage.AudioStore
	limiter      *ratelimit.FixedWindowLimiter
	registry     *playback.Registry
	streamURLTTL time.Duration
}

// New composes an app. The registry's onCreate hook attaches the progress
// tracker and event recorder to every new session.
func New(ctx context.Context, deps Deps) *App {
	if deps.TickInterval <= 0 {
		deps.TickInterval = playback.DefaultTickInterval
	}
	if deps.StreamURLTTL <= 0 {
		deps.StreamURLTTL = time.Hour
	}
	a := &App{
		catalog:      deps.Catalog,
		progress:     deps.Progress,
		audio:        deps.Audio,
		limiter:      deps.Limiter,
		streamURLTTL: deps.StreamURLTTL,
	}

	var tracker *progress.Tracker
	if deps.Progress != nil {
		tracker = progress.NewTracker(deps.Progress)
	}
	var recorder *events.Recorder
	if deps.Publisher != nil {
		recorder = events.NewRecorder(deps.Publisher)
	}
	onCreate := func(key string, s *playback.Session) {
		if recorder != nil {
			s.Subscribe(recorder.Observer(key))
		}
		if tracker != nil {
			if userID, ok := userIDFromKey(key); ok {
				s.Subscribe(tracker.Observer(userID))
			}
		}
	}

	a.registry = playback.NewRegistry(ctx, deps.Catalog, deps.TickInterval, onCreate)
	return a
}

// SessionKey derives the registry key for a caller. Signed-in listeners
// share one session across devices; guests are keyed per client.
func SessionKey(id domain.Identity, clientKey string) string {
	if id.Kind == domain.KindAuthenticated {
		return "user:" + id.UserID
	}
	return "guest:" + clientKey
}

func userIDFromKey(key string) (string, bool) {
	const prefix = "user:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):], true
	}
	return "", false
}

// Session returns the caller's playback session, creating it on first use.
func (a *App) Session(id domain.Identity, clientKey string) *playback.Session {
	return a.registry.Get(SessionKey(id, clientKey), id.Kind)
}

// LoadBook loads a book into the caller's session. When a signed-in
// listener loads a book from the beginning, their saved resume point is
// restored.
func (a *App) LoadBook(ctx context.Context, s *playback.Session, id domain.Identity, bookID string, chapterIndex int) {
	s.Load(bookID, chapterIndex)
	if id.Kind != domain.KindAuthenticated || chapterIndex != 0 || a.progress == nil {
		return
	}
	pos, ok, err := a.progress.Load(ctx, id.UserID, bookID)
	if err != nil {
		slog.Warn("failed to load resume point", "user_id", id.UserID, "book_id", bookID, "err", err)
		return
	}
	if !ok {
		return
	}
	if pos.ChapterIndex > 0 {
		s.SetChapter(pos.ChapterIndex)
	}
	if pos.PositionMs > 0 {
		s.Seek(pos.PositionMs)
	}
}

// ListBooks returns the catalog.
func (a *App) ListBooks() ([]domain.Book, error) {
	return a.catalog.ListBooks()
}

// GetBook returns one book.
func (a *App) GetBook(id string) (domain.Book, bool, error) {
	return a.catalog.GetBook(id)
}

// StreamURL resolves a pre-signed audio URL for one chapter, enforcing the
// guest chapter lock and the per-client rate limit.
func (a *App) StreamURL(ctx context.Context, id domain.Identity, clientKey, bookID string, chapterIndex int) (string, error) {
	chapters, ok := a.catalog.Chapters(bookID)
	if !ok {
		return "", domain.ErrNotFound
	}
	if chapterIndex < 0 || chapterIndex >= len(chapters) {
		return "", domain.ErrNotFound
	}
	if id.Kind == domain.KindGuest && chapterIndex > 0 {
		return "", domain.ErrChapterLocked
	}
	if a.limiter != nil && !a.limiter.Allow(SessionKey(id, clientKey)) {
		return "", domain.ErrRateLimited
	}
	if a.audio == nil {
		return "", fmt.Errorf("audio storage not configured")
	}
	return a.audio.StreamURL(ctx, bookID, chapterIndex, a.streamURLTTL)
}

// Sessions reports how many sessions are live.
func (a *App) Sessions() int {
	return a.registry.Len()
}
