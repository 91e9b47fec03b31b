package domain

type PlayStatus string

const (
	StatusIdle    PlayStatus = "idle"
	StatusPlaying PlayStatus = "playing"
	StatusPaused  PlayStatus = "paused"
	StatusEnded   PlayStatus = "ended"
)

type IdentityKind string

const (
	KindGuest         IdentityKind = "guest"
	KindAuthenticated IdentityKind = "authenticated"
)

// Identity is resolved per request by the auth boundary. The engine reads
// Kind only; UserID keys progress persistence for signed-in listeners.
type Identity struct {
	Kind   IdentityKind `json:"kind"`
	UserID string       `json:"userId,omitempty"`
}

// AllowedRates is the fixed set of playback rate multipliers.
var AllowedRates = []float64{0.75, 1, 1.25, 1.5, 1.75, 2}

// RateAllowed reports whether rate is in the enumerated set.
func RateAllowed(rate float64) bool {
	for _, r := range AllowedRates {
		if r == rate {
			return true
		}
	}
	return false
}

type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	CoverURL   string    `json:"coverUrl,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Chapters   []Chapter `json:"chapters"`
	DurationMs int64     `json:"durationMs"`
}

// Chapter is the smallest independently seekable unit of a book.
// The chapter list for a book is ordered by Index and immutable per session.
type Chapter struct {
	Index      int    `json:"index"`
	Title      string `json:"title"`
	DurationMs int64  `json:"durationMs"`
}
