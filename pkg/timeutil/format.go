// Package timeutil holds the display helpers shared by every presentation
// surface, so the mini player, full player, and car mode always render the
// same labels for the same session state.
package timeutil

import "fmt"

// FormatDuration renders a total length as "XhYm", or "Ym" under an hour.
// Zero or negative input renders as "0m".
func FormatDuration(totalSeconds int64) string {
	if totalSeconds <= 0 {
		return "0m"
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatTime renders an elapsed position as "M:SS". Minutes are unpadded
// and keep counting past 60 (e.g. "125:47").
func FormatTime(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// ProgressPercentage returns position/duration as a percentage in [0,100].
// A non-positive duration yields 0; results are clamped to 100 so clock
// rounding past the chapter end never overshoots the progress bar.
func ProgressPercentage(position, duration int64) float64 {
	if duration <= 0 {
		return 0
	}
	pct := float64(position) / float64(duration) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
