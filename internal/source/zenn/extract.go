package zenn

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tag_trends/internal/domain"
)

var (
	likesRe   = regexp.MustCompile(`(?i)"liked_count"\s*:\s*(\d+)`)
	topicHref = regexp.MustCompile(`(?i)^/topics/([a-z0-9\-_]+)$`)
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// DetailFetcher returns the raw markup of an article page.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, url string) (string, error)
}

// Detail holds the fields recovered from an article page. Zero values mean
// the field was not found.
type Detail struct {
	Title       string
	PublishedAt time.Time
	Likes       int
	Tags        []string
}

// Extractor resolves listing entries into normalized articles.
type Extractor struct {
	fetcher DetailFetcher
	loc     *time.Location
	logger  *slog.Logger
}

func NewExtractor(fetcher DetailFetcher, loc *time.Location, logger *slog.Logger) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		loc:     loc,
		logger:  logger.With("component", "extractor"),
	}
}

// Resolve fetches the article page for ref and merges it with the listing
// metadata. It reports false when the article cannot be used.
func (e *Extractor) Resolve(ctx context.Context, ref domain.ArticleRef) (*domain.ExtractedArticle, bool) {
	raw, err := e.fetcher.FetchDetail(ctx, ref.URL)
	if err != nil {
		e.logger.Debug("detail fetch failed", "url", ref.URL, "error", err)
		return nil, false
	}

	article, ok := Merge(ref, ParseDetail(raw, e.loc))
	if !ok {
		e.logger.Debug("article rejected", "url", ref.URL)
	}
	return article, ok
}

// ParseDetail runs every field extractor over raw. A field that cannot be
// matched is left at its zero value.
func ParseDetail(raw string, loc *time.Location) Detail {
	var d Detail

	if likes, ok := LikesOf(raw); ok {
		d.Likes = likes
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return d
	}

	if title, ok := TitleOf(doc); ok {
		d.Title = title
	}
	if published, ok := PublishedAtOf(doc, loc); ok {
		d.PublishedAt = published
	}
	d.Tags = TagsOf(doc)

	return d
}

// Merge applies the precedence rules: publish time only from the detail
// page, title and tags from the detail page falling back to the listing,
// likes from the detail page unless it reads zero.
func Merge(ref domain.ArticleRef, d Detail) (*domain.ExtractedArticle, bool) {
	if d.PublishedAt.IsZero() {
		return nil, false
	}

	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = strings.TrimSpace(ref.Title)
	}

	likes := d.Likes
	if likes == 0 {
		likes = ref.Likes
	}

	tags := d.Tags
	if len(tags) == 0 {
		tags = NormalizeSlugs(ref.TagIDs)
	}

	if title == "" || len(tags) == 0 {
		return nil, false
	}

	return &domain.ExtractedArticle{
		URL:         ref.URL,
		Title:       title,
		Likes:       likes,
		PublishedAt: d.PublishedAt,
		Tags:        tags,
	}, true
}

// TitleOf returns the text of the first h1.
func TitleOf(doc *goquery.Document) (string, bool) {
	h1 := doc.Find("h1").First()
	if h1.Length() == 0 {
		return "", false
	}
	title := strings.TrimSpace(h1.Text())
	return title, title != ""
}

// PublishedAtOf returns the first time[datetime] value converted to loc.
func PublishedAtOf(doc *goquery.Document, loc *time.Location) (time.Time, bool) {
	value, ok := doc.Find("time[datetime]").First().Attr("datetime")
	if !ok {
		return time.Time{}, false
	}
	return ParseTimestamp(value, loc)
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without an offset
// are read in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// LikesOf returns the first "liked_count" embedded in the page's JSON.
func LikesOf(raw string) (int, bool) {
	m := likesRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	likes, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return likes, true
}

// TagsOf returns the slugs of every topic link, lowercased and unique in
// document order.
func TagsOf(doc *goquery.Document) []string {
	var slugs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := topicHref.FindStringSubmatch(href)
		if m == nil {
			return
		}
		slugs = append(slugs, m[1])
	})
	return NormalizeSlugs(slugs)
}

// NormalizeSlugs lowercases and trims slugs, dropping blanks and repeats.
func NormalizeSlugs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, s := range raw {
		slug := strings.ToLower(strings.TrimSpace(s))
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}
