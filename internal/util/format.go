// Package util holds small formatting helpers shared by logging and
// notification payloads.
package util

import (
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count as a human-readable size (e.g. "1.2 GB").
func FormatBytes(n int64) string {
	if n < 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}

// FormatDuration renders a duration as a human-readable approximation
// (e.g. "3 minutes"). Zero and negative durations render as "0s";
// positive sub-second durations render as RelTime's "now".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return humanize.RelTime(time.Now().Add(-d), time.Now(), "", "")
}

// FormatRatio renders a compression ratio as a percentage saved, e.g. a
// ratio of 2.5 (input 2.5x output) renders as "60.0% smaller".
func FormatRatio(ratio float64) string {
	if ratio <= 0 {
		return "n/a"
	}
	pctSaved := (1 - 1/ratio) * 100
	return humanize.FormatFloat("#,###.#", pctSaved) + "% smaller"
}
