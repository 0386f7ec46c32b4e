package cleaner

import "time"

// Progress reports cleanup progress.
type Progress struct {
	// CurrentPath is the directory most recently listed.
	CurrentPath string
	// Recent holds the latest deleted (or matched) paths, oldest first.
	Recent []string
	// DirsListed is the number of directories listed so far.
	DirsListed int64
	// Deleted is the number of entries removed (or matched, in a dry run).
	Deleted int64
	// Warnings is the number of warnings emitted so far.
	Warnings int64
	// Done indicates the traversal has finished.
	Done bool
	// StartTime is when the run began.
	StartTime time.Time
	// Duration is elapsed time.
	Duration time.Duration
}

// DirsPerSecond returns the listing rate.
func (p Progress) DirsPerSecond() float64 {
	if p.Duration.Seconds() == 0 {
		return 0
	}
	return float64(p.DirsListed) / p.Duration.Seconds()
}
