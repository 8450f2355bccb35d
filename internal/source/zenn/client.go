package zenn

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tag_trends/internal/domain"
)

const (
	SourceID   = "zenn"
	SourceName = "Zenn"
)

// Config holds remote feed configuration.
type Config struct {
	BaseURL        string
	SiteURL        string
	Timeout        time.Duration
	UserAgent      string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client fetches the "latest" listing and individual article pages.
type Client struct {
	http           *resty.Client
	baseURL        string
	siteURL        string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new feed client.
func New(cfg Config, logger *slog.Logger) *Client {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)

	return &Client{
		http:           httpClient,
		baseURL:        cfg.BaseURL,
		siteURL:        strings.TrimRight(cfg.SiteURL, "/"),
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (c *Client) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (c *Client) Name() string {
	return SourceName
}

// FetchPage fetches one page of the listing, newest first. A pageSize of
// zero leaves the page size to the remote default.
func (c *Client) FetchPage(ctx context.Context, page, pageSize int) (*domain.Listing, error) {
	var resp *APIResponse
	var err error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err = c.doListRequest(ctx, page, pageSize)
		if err == nil {
			return c.toListing(resp), nil
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"page", page,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

func (c *Client) doListRequest(ctx context.Context, page, pageSize int) (*APIResponse, error) {
	params := map[string]string{
		"order": "latest",
		"page":  strconv.Itoa(page),
	}
	if pageSize > 0 {
		params["count"] = strconv.Itoa(pageSize)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		SetResult(&APIResponse{}).
		ForceContentType("application/json").
		Get(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode())
	}

	apiResp, ok := resp.Result().(*APIResponse)
	if !ok || apiResp == nil {
		return nil, fmt.Errorf("decode response: unexpected body")
	}

	return apiResp, nil
}

// FetchDetail returns the raw markup of an article page.
func (c *Client) FetchDetail(ctx context.Context, url string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode())
	}

	return resp.String(), nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Client) toListing(resp *APIResponse) *domain.Listing {
	listing := &domain.Listing{
		Refs:    make([]domain.ArticleRef, 0, len(resp.Articles)),
		HasNext: resp.HasNext(),
	}

	for _, item := range resp.Articles {
		if !strings.HasPrefix(item.Path, "/") {
			c.logger.Debug("skipping item without path", "id", item.ID)
			continue
		}

		ref := domain.ArticleRef{
			URL:   c.siteURL + item.Path,
			Title: item.Title,
			Likes: item.LikedCount,
		}
		for _, t := range item.Topics {
			id := t.Name
			if id == "" {
				id = string(t.ID)
			}
			if id != "" {
				ref.TagIDs = append(ref.TagIDs, id)
			}
		}

		listing.Refs = append(listing.Refs, ref)
	}

	return listing
}
