package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tag_trends/internal/domain"
	"tag_trends/internal/service"
)

const (
	defaultDays         = 30
	defaultRankingLimit = 100
)

type Reader interface {
	Rankings(ctx context.Context, days, limit int) ([]domain.TagSummary, error)
	ToolDetail(ctx context.Context, slug string, days int) (*domain.ToolDetail, error)
	Stats(ctx context.Context, days int) (*domain.Stats, error)
}

type Aggregator interface {
	RunAggregation(ctx context.Context, cfg service.PassConfig) (*domain.PassStats, error)
}

type Handler struct {
	reader     Reader
	aggregator Aggregator
	pass       service.PassConfig
	timeout    time.Duration
	logger     *slog.Logger
}

// NewHandler builds the handlers. pass supplies the defaults of an on-demand
// aggregation and timeout bounds it; aggregator may be nil to disable it.
func NewHandler(reader Reader, aggregator Aggregator, pass service.PassConfig, timeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		reader:     reader,
		aggregator: aggregator,
		pass:       pass,
		timeout:    timeout,
		logger:     logger.With("component", "api"),
	}
}

type windowQuery struct {
	Days *int `form:"days" binding:"omitempty,min=1,max=3650"`
}

func (q windowQuery) days() int {
	if q.Days == nil {
		return defaultDays
	}
	return *q.Days
}

type rankingsQuery struct {
	windowQuery
	Limit *int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

type aggregateQuery struct {
	windowQuery
	MaxPages *int `form:"max_pages" binding:"omitempty,min=1,max=1000"`
}

func (h *Handler) Rankings(c *gin.Context) {
	var q rankingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	limit := defaultRankingLimit
	if q.Limit != nil {
		limit = *q.Limit
	}

	rankings, err := h.reader.Rankings(c.Request.Context(), q.days(), limit)
	if err != nil {
		h.internalError(c, "rankings", err)
		return
	}
	c.JSON(http.StatusOK, rankings)
}

// ToolDetail answers an unknown tag with an empty object.
func (h *Handler) ToolDetail(c *gin.Context) {
	var q windowQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	detail, err := h.reader.ToolDetail(c.Request.Context(), c.Param("slug"), q.days())
	if err != nil {
		h.internalError(c, "tool detail", err)
		return
	}
	if detail == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) Stats(c *gin.Context) {
	var q windowQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	stats, err := h.reader.Stats(c.Request.Context(), q.days())
	if err != nil {
		h.internalError(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Aggregate runs a pass synchronously. The pass outlives a client that
// disconnects. An unreachable feed still reports the pass statistics, with 502.
func (h *Handler) Aggregate(c *gin.Context) {
	if h.aggregator == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "aggregation disabled"})
		return
	}

	var q aggregateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	pass := h.pass
	pass.WindowDays = q.days()
	if q.MaxPages != nil {
		pass.MaxPages = *q.MaxPages
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	stats, err := h.aggregator.RunAggregation(ctx, pass)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true, "stats": stats})
	case errors.Is(err, domain.ErrPassInProgress):
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, domain.ErrFeedUnreachable):
		h.logger.Warn("on-demand pass could not reach feed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error(), "stats": stats})
	default:
		h.internalError(c, "aggregate", err)
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error("request failed", "op", op, "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
