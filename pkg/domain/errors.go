package domain

import "errors"

// Sentinel errors for the few operations that can refuse outright.
// Playback controls themselves never error; invalid input is ignored or
// clamped by the engine.
var (
	ErrNotFound      = errors.New("not found")
	ErrChapterLocked = errors.New("chapter locked for guests")
	ErrRateLimited   = errors.New("rate limited")
)
