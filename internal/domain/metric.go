package domain

import "time"

const (
	// RetentionDays bounds how long articles and snapshots are kept.
	RetentionDays = 31

	// DateLayout is the layout snapshot dates are rendered with.
	DateLayout = "2006-01-02"
)

// Windows are the fixed trailing periods, in days, metrics are computed over.
var Windows = []int{1, 7, 30}

// IsWindow reports whether days is one of the fixed windows.
func IsWindow(days int) bool {
	for _, w := range Windows {
		if w == days {
			return true
		}
	}
	return false
}

// WindowMetrics are the raw aggregates for one tag over one window.
type WindowMetrics struct {
	Articles int
	LikesSum int64
}

// Metric is a stored snapshot for one (date, window, tag).
type Metric struct {
	Date     time.Time `db:"snapshot_date"`
	Days     int       `db:"days"`
	Slug     string    `db:"slug"`
	Articles int       `db:"articles"`
	LikesSum int64     `db:"likes_sum"`
	Score    float64   `db:"score"`
}

// RankedMetric is a snapshot joined with its tag's display name.
type RankedMetric struct {
	Metric
	Name string `db:"name"`
}

// DateOf truncates t to its calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
