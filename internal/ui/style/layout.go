package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Layout sizes the progress view within the terminal dimensions.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a layout for the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// BoxWidth returns the inner width of the progress box.
func (l Layout) BoxWidth() int {
	w := l.Width - 4 // border + padding
	if w < 20 {
		w = 20
	}
	if w > 100 {
		w = 100
	}
	return w
}

// PathWidth returns the room left for a path after a fixed-width label
// such as "  Current: ".
func (l Layout) PathWidth(labelWidth int) int {
	w := l.BoxWidth() - labelWidth
	if w < 8 {
		w = 8
	}
	return w
}

// RecentLines returns how many recent deletions fit under the counters.
func (l Layout) RecentLines() int {
	n := l.Height - 12 // title, counters, current path, help, borders
	if n < 0 {
		return 0
	}
	if n > 8 {
		n = 8
	}
	return n
}

// FullWidth pads a string with spaces to reach exactly the target visual width.
// If the string is already wider, it is returned as-is (no truncation).
func FullWidth(s string, width int) string {
	visLen := lipgloss.Width(s)
	if visLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visLen)
}
