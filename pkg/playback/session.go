// Package playback owns the live playback session: the single record of what
// is playing, at what position, at what rate, and with what scheduled stop.
// Every presentation surface reads snapshots and dispatches operations here;
// none of them mutate state directly, so the mini player, full player, and
// car mode can never drift apart.
package playback

import (
	"sync"
	"time"

	"chapterly/pkg/domain"
	"chapterly/pkg/policy"
)

// Catalog is the external, pre-fetched book catalog the engine reads
// synchronously. Implementations must return chapters ordered by index.
type Catalog interface {
	Chapters(bookID string) ([]domain.Chapter, bool)
}

// Snapshot is an immutable copy of session state handed to observers.
type Snapshot struct {
	BookID        string              `json:"bookId,omitempty"`
	ChapterIndex  int                 `json:"chapterIndex"`
	ChapterCount  int                 `json:"chapterCount"`
	Status        domain.PlayStatus   `json:"status"`
	PositionMs    int64               `json:"positionMs"`
	DurationMs    int64               `json:"durationMs"`
	Rate          float64             `json:"playbackRate"`
	Identity      domain.IdentityKind `json:"identity"`
	SleepDeadline time.Time           `json:"sleepDeadline,omitzero"`
}

// SleepTimerActive reports whether a sleep deadline is pending at now.
func (s Snapshot) SleepTimerActive(now time.Time) bool {
	return !s.SleepDeadline.IsZero() && now.Before(s.SleepDeadline)
}

// Session holds playback state for one listener. All mutation funnels
// through its methods; invalid targets and policy denials are silent no-ops
// or clamps, never errors, so transport controls cannot fail a screen
// mid-playback.
type Session struct {
	mu      sync.Mutex
	catalog Catalog
	now     func() time.Time

	identity      domain.IdentityKind
	bookID        string
	chapterIndex  int
	chapterCount  int
	status        domain.PlayStatus
	positionMs    int64
	durationMs    int64
	rate          float64
	sleepDeadline time.Time
	lastTick      time.Time

	observers map[int]func(Snapshot)
	nextObsID int
}

// NewSession creates an idle session for the given identity kind.
func NewSession(catalog Catalog, kind domain.IdentityKind) *Session {
	return &Session{
		catalog:   catalog,
		now:       time.Now,
		identity:  kind,
		status:    domain.StatusIdle,
		rate:      1,
		observers: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers an observer called after every state change and tick.
// The returned function cancels the subscription.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		BookID:        s.bookID,
		ChapterIndex:  s.chapterIndex,
		ChapterCount:  s.chapterCount,
		Status:        s.status,
		PositionMs:    s.positionMs,
		DurationMs:    s.durationMs,
		Rate:          s.rate,
		Identity:      s.identity,
		SleepDeadline: s.sleepDeadline,
	}
}

func (s *Session) publishLocked() (Snapshot, []func(Snapshot)) {
	snap := s.snapshotLocked()
	obs := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		obs = append(obs, fn)
	}
	return snap, obs
}

func dispatch(snap Snapshot, obs []func(Snapshot)) {
	for _, fn := range obs {
		fn(snap)
	}
}

// Load activates a book at the given chapter, resetting position to 0 and
// pausing. Unknown books and out-of-range chapters are no-ops; a guest
// asking for a locked chapter is clamped to chapter 0. Switching to a
// different book clears any pending sleep timer so a timer armed for one
// listening session cannot silently stop an unrelated book.
func (s *Session) Load(bookID string, chapterIndex int) {
	s.mu.Lock()
	chapters, ok := s.catalog.Chapters(bookID)
	if !ok || len(chapters) == 0 || chapterIndex < 0 || chapterIndex >= len(chapters) {
		s.mu.Unlock()
		return
	}
	if dec := policy.CanAccess(s.identity, chapterIndex, 0); !dec.Allowed {
		chapterIndex = 0
	}
	if s.bookID != "" && s.bookID != bookID {
		s.sleepDeadline = time.Time{}
	}
	s.bookID = bookID
	s.chapterIndex = chapterIndex
	s.chapterCount = len(chapters)
	s.positionMs = 0
	s.durationMs = chapters[chapterIndex].DurationMs
	s.status = domain.StatusPaused
	s.lastTick = s.now()
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// Play resumes playback. No-op without an active book, at chapter end, or
// when the guest preview ceiling has been reached.
func (s *Session) Play() {
	s.mu.Lock()
	if s.bookID == "" || s.status == domain.StatusPlaying || s.status == domain.StatusEnded {
		s.mu.Unlock()
		return
	}
	if dec := policy.CanAccess(s.identity, s.chapterIndex, s.positionMs); !dec.Allowed ||
		(dec.MaxPositionMs > 0 && s.positionMs >= dec.MaxPositionMs) {
		s.mu.Unlock()
		return
	}
	s.status = domain.StatusPlaying
	s.lastTick = s.now()
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// Pause halts playback. No-op unless currently playing.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.bookID == "" || s.status != domain.StatusPlaying {
		s.mu.Unlock()
		return
	}
	s.status = domain.StatusPaused
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// Seek moves the position, clamped to [0, duration] and to the guest
// ceiling. Seeking back from a finished chapter returns it to paused.
func (s *Session) Seek(targetMs int64) {
	s.mu.Lock()
	if s.bookID == "" {
		s.mu.Unlock()
		return
	}
	s.seekLocked(targetMs)
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

func (s *Session) seekLocked(targetMs int64) {
	if targetMs < 0 {
		targetMs = 0
	}
	if targetMs > s.durationMs {
		targetMs = s.durationMs
	}
	if dec := policy.CanAccess(s.identity, s.chapterIndex, targetMs); !dec.Allowed {
		if dec.MaxPositionMs == 0 {
			return
		}
		targetMs = dec.MaxPositionMs
	}
	s.positionMs = targetMs
	if s.status == domain.StatusEnded && s.positionMs < s.durationMs {
		s.status = domain.StatusPaused
	}
}

// Skip seeks relative to the current position. Deltas are caller-chosen
// (the full player uses ±15s, car mode ±30s).
func (s *Session) Skip(deltaMs int64) {
	s.mu.Lock()
	if s.bookID == "" {
		s.mu.Unlock()
		return
	}
	s.seekLocked(s.positionMs + deltaMs)
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// SetChapter jumps to another chapter of the active book, resetting position
// and preserving play/pause state. Out-of-range targets and chapters the
// guest policy denies are no-ops.
func (s *Session) SetChapter(index int) {
	s.mu.Lock()
	if !s.setChapterLocked(index) {
		s.mu.Unlock()
		return
	}
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

func (s *Session) setChapterLocked(index int) bool {
	if s.bookID == "" || index < 0 || index >= s.chapterCount {
		return false
	}
	if dec := policy.CanAccess(s.identity, index, 0); !dec.Allowed {
		return false
	}
	chapters, ok := s.catalog.Chapters(s.bookID)
	if !ok || index >= len(chapters) {
		return false
	}
	s.chapterIndex = index
	s.positionMs = 0
	s.durationMs = chapters[index].DurationMs
	if s.status == domain.StatusEnded {
		s.status = domain.StatusPaused
	}
	s.lastTick = s.now()
	return true
}

// NextChapter advances one chapter; no-op at the last chapter.
func (s *Session) NextChapter() {
	s.mu.Lock()
	if !s.setChapterLocked(s.chapterIndex + 1) {
		s.mu.Unlock()
		return
	}
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// PreviousChapter steps back one chapter; no-op at the first chapter.
func (s *Session) PreviousChapter() {
	s.mu.Lock()
	if !s.setChapterLocked(s.chapterIndex - 1) {
		s.mu.Unlock()
		return
	}
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// SetPlaybackRate overwrites the rate. Values outside the enumerated set
// are rejected silently and the prior rate is retained.
func (s *Session) SetPlaybackRate(rate float64) {
	s.mu.Lock()
	if !domain.RateAllowed(rate) || rate == s.rate {
		s.mu.Unlock()
		return
	}
	s.rate = rate
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// SetIdentity updates the identity the access policy evaluates against.
// A guest signing in mid-session has the preview clamp lifted immediately;
// history is not re-checked.
func (s *Session) SetIdentity(kind domain.IdentityKind) {
	s.mu.Lock()
	if kind == s.identity {
		s.mu.Unlock()
		return
	}
	s.identity = kind
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// StartSleepTimer schedules an auto-pause after the given number of minutes,
// replacing any pending deadline atomically. Non-positive input is a no-op.
func (s *Session) StartSleepTimer(minutes int) {
	if minutes <= 0 {
		return
	}
	s.mu.Lock()
	s.sleepDeadline = s.now().Add(time.Duration(minutes) * time.Minute)
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// CancelSleepTimer clears any pending deadline.
func (s *Session) CancelSleepTimer() {
	s.mu.Lock()
	if s.sleepDeadline.IsZero() {
		s.mu.Unlock()
		return
	}
	s.sleepDeadline = time.Time{}
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

// SleepTimerActive reports whether an auto-pause is pending.
func (s *Session) SleepTimerActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.sleepDeadline.IsZero() && s.now().Before(s.sleepDeadline)
}
