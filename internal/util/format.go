package util

import (
	"fmt"
	"strconv"
	"time"
)

// FormatCount returns a human-readable count string.
func FormatCount(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1_000_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
}

// FormatSeconds renders d as fractional seconds with millisecond
// resolution and no trailing zeros, e.g. "1.25s" or "0.3s".
func FormatSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64) + "s"
}
