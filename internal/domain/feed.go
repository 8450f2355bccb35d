package domain

import "time"

// Listing is one page of the remote "latest" feed.
type Listing struct {
	Refs    []ArticleRef
	HasNext bool
}

// WalkParams bounds one walk of the feed.
type WalkParams struct {
	MaxPages int
	PageSize int
	Boundary time.Time
}

// FeedPage is what the walker yields per page: the articles accepted from it.
type FeedPage struct {
	Number   int
	Listed   int
	Articles []ExtractedArticle
	Cutoff   bool
}

// DaysBefore returns t minus the given number of whole days.
func DaysBefore(t time.Time, days int) time.Time {
	return t.Add(-time.Duration(days) * 24 * time.Hour)
}
