package playback

import (
	"context"
	"time"

	"chapterly/pkg/domain"
	"chapterly/pkg/policy"
)

// DefaultTickInterval drives position advance and sleep-timer checks.
const DefaultTickInterval = 250 * time.Millisecond

// Run drives the session clock until ctx is cancelled. A single periodic
// tick advances the position and checks the sleep timer, so the two can
// never be evaluated out of order. The deadline is compared against wall
// time on every tick, so a process resumed after suspension fires an
// overdue auto-pause on its first tick instead of missing it.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}

// Tick advances the session to now. Exposed so the run loop and tests share
// the exact transition logic.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	changed := s.tickLocked(now)
	if !changed {
		s.mu.Unlock()
		return
	}
	snap, obs := s.publishLocked()
	s.mu.Unlock()
	dispatch(snap, obs)
}

func (s *Session) tickLocked(now time.Time) bool {
	changed := false
	endedThisTick := false

	if s.status == domain.StatusPlaying && !s.lastTick.IsZero() && now.After(s.lastTick) {
		elapsed := now.Sub(s.lastTick)
		newPos := s.positionMs + int64(float64(elapsed.Milliseconds())*s.rate)
		if newPos >= s.durationMs {
			newPos = s.durationMs
			endedThisTick = true
		}
		dec := policy.CanAccess(s.identity, s.chapterIndex, newPos)
		switch {
		case dec.Allowed:
			if dec.MaxPositionMs > 0 && newPos >= dec.MaxPositionMs {
				// Guest reached the preview ceiling exactly: stop there.
				newPos = dec.MaxPositionMs
				s.status = domain.StatusPaused
				endedThisTick = false
			} else if endedThisTick {
				s.status = domain.StatusEnded
			}
		case dec.MaxPositionMs > 0:
			// Guest ran into the preview ceiling: clamp and stop there.
			if newPos > dec.MaxPositionMs {
				newPos = dec.MaxPositionMs
			}
			s.status = domain.StatusPaused
			endedThisTick = false
		default:
			// Chapter itself is off limits (identity changed mid-play).
			s.status = domain.StatusPaused
			newPos = s.positionMs
			endedThisTick = false
		}
		if newPos != s.positionMs || s.status != domain.StatusPlaying {
			changed = true
		}
		s.positionMs = newPos
	}
	s.lastTick = now

	// Sleep timer is checked in the same tick as the position clock.
	// A chapter that ends at the instant the timer fires is left paused,
	// not ended, so the UI never auto-advances past a requested stop.
	if !s.sleepDeadline.IsZero() && !now.Before(s.sleepDeadline) {
		if s.status == domain.StatusPlaying || endedThisTick {
			s.status = domain.StatusPaused
		}
		s.sleepDeadline = time.Time{}
		changed = true
	}
	return changed
}
