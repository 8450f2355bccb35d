package domain

// ArticleSummary is an article as shown in rankings.
type ArticleSummary struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Likes       int    `json:"likes"`
	PublishedAt string `json:"published_at"`
}

// TagSummary is one entry of a ranking.
type TagSummary struct {
	Slug        string           `json:"slug"`
	Name        string           `json:"name"`
	Articles    int              `json:"articles"`
	LikesSum    int64            `json:"likes_sum"`
	Score       float64          `json:"score"`
	TopArticles []ArticleSummary `json:"articles_top5"`
}

// MetricSummary is the latest snapshot shown on a tag detail page.
type MetricSummary struct {
	Date     *string `json:"date"`
	Articles int     `json:"articles"`
	LikesSum int64   `json:"likes_sum"`
	Score    float64 `json:"score"`
}

// ToolDetail is the detail view for one tag.
type ToolDetail struct {
	Tool        Tag              `json:"tool"`
	Metric      MetricSummary    `json:"metric"`
	TopArticles []ArticleSummary `json:"articles_top"`
}

// Stats reports when a window was last recomputed.
type Stats struct {
	LastUpdated *string `json:"last_updated"`
}
