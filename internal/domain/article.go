package domain

import "time"

// Tag is a topic an article is classified under.
type Tag struct {
	Slug string `db:"slug" json:"slug"`
	Name string `db:"name" json:"name"`
}

// Article is a stored article row. It is immutable once inserted.
type Article struct {
	ID          int64     `db:"id" json:"-"`
	Slug        string    `db:"slug" json:"-"`
	Title       string    `db:"title" json:"title"`
	URL         string    `db:"url" json:"url"`
	Likes       int       `db:"likes" json:"likes"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
}

// ArticleRef is a listing entry from the remote "latest" feed. Its metadata
// is approximate and only used as a fallback for the detail page.
type ArticleRef struct {
	URL    string
	Title  string
	Likes  int
	TagIDs []string
}

// ExtractedArticle is a fully resolved article ready for persistence.
type ExtractedArticle struct {
	URL         string
	Title       string
	Likes       int
	PublishedAt time.Time
	Tags        []string
}

type RunState struct {
	ID            int64     `db:"id"`
	Name          string    `db:"name"`
	LastRunAt     time.Time `db:"last_run_at"`
	LastInserted  int64     `db:"last_inserted"`
	TotalInserted int64     `db:"total_inserted"`
}
