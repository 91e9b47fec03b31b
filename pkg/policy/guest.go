// Package policy is the single place the guest preview rule lives. UI
// surfaces and the playback engine consult it; none of them re-implement it.
package policy

import "chapterly/pkg/domain"

// GuestPreviewLimitMs caps how far into the first chapter a guest may listen.
const GuestPreviewLimitMs int64 = 5 * 60 * 1000

// Decision is the outcome of an access check. When Allowed is false,
// MaxPositionMs carries the furthest permitted position, or 0 when the
// chapter itself is off limits.
type Decision struct {
	Allowed       bool
	MaxPositionMs int64
}

// CanAccess decides whether an identity may listen at the given chapter and
// position. Authenticated listeners are never restricted. Guests are
// restricted to chapter 0 and to the preview window within it.
func CanAccess(kind domain.IdentityKind, chapterIndex int, positionMs int64) Decision {
	if kind == domain.KindAuthenticated {
		return Decision{Allowed: true}
	}
	if chapterIndex > 0 {
		return Decision{Allowed: false}
	}
	if positionMs > GuestPreviewLimitMs {
		return Decision{Allowed: false, MaxPositionMs: GuestPreviewLimitMs}
	}
	return Decision{Allowed: true, MaxPositionMs: GuestPreviewLimitMs}
}
