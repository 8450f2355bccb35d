// Package export renders the read surface as static JSON files.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"tag_trends/internal/domain"
)

var unsafeSlugChars = regexp.MustCompile(`[^a-z0-9\-_]`)

// Reader is the read surface being exported.
type Reader interface {
	Rankings(ctx context.Context, days, limit int) ([]domain.TagSummary, error)
	ToolDetail(ctx context.Context, slug string, days int) (*domain.ToolDetail, error)
	Stats(ctx context.Context, days int) (*domain.Stats, error)
}

type Config struct {
	OutDir            string
	RankingLimit      int
	DetailSourceLimit int
}

// Result counts the files written by one export.
type Result struct {
	Files   int
	Details int
}

type Exporter struct {
	reader Reader
	cfg    Config
	logger *slog.Logger
}

func New(reader Reader, cfg Config, logger *slog.Logger) *Exporter {
	return &Exporter{
		reader: reader,
		cfg:    cfg,
		logger: logger.With("component", "export"),
	}
}

// Export writes, for every window d:
//
//	rankings_{d}.json
//	stats_{d}.json
//	tools/{slug}-{d}.json for the top DetailSourceLimit tags of the window
func (e *Exporter) Export(ctx context.Context) (*Result, error) {
	res := &Result{}

	for _, days := range domain.Windows {
		rankings, err := e.reader.Rankings(ctx, days, e.cfg.RankingLimit)
		if err != nil {
			return res, fmt.Errorf("rankings %d: %w", days, err)
		}
		if err := e.write(fmt.Sprintf("rankings_%d.json", days), rankings); err != nil {
			return res, err
		}
		res.Files++

		stats, err := e.reader.Stats(ctx, days)
		if err != nil {
			return res, fmt.Errorf("stats %d: %w", days, err)
		}
		if err := e.write(fmt.Sprintf("stats_%d.json", days), stats); err != nil {
			return res, err
		}
		res.Files++
	}

	for _, days := range domain.Windows {
		top, err := e.reader.Rankings(ctx, days, e.cfg.DetailSourceLimit)
		if err != nil {
			return res, fmt.Errorf("detail sources %d: %w", days, err)
		}

		for _, tag := range top {
			name := SanitizeSlug(tag.Slug)
			if name == "" {
				continue
			}

			detail, err := e.reader.ToolDetail(ctx, tag.Slug, days)
			if err != nil {
				return res, fmt.Errorf("tool detail %s/%d: %w", tag.Slug, days, err)
			}

			var body any = detail
			if detail == nil {
				body = struct{}{}
			}
			if err := e.write(filepath.Join("tools", fmt.Sprintf("%s-%d.json", name, days)), body); err != nil {
				return res, err
			}
			res.Files++
			res.Details++
		}
	}

	e.logger.Info("export completed", "out_dir", e.cfg.OutDir, "files", res.Files, "details", res.Details)
	return res, nil
}

// write replaces rel under OutDir with the indented JSON of v.
func (e *Exporter) write(rel string, v any) error {
	path := filepath.Join(e.cfg.OutDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", rel, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", rel, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", rel, err)
	}
	return nil
}

// SanitizeSlug lowercases s and replaces anything outside [a-z0-9_-] with a
// hyphen so it is safe as a file name.
func SanitizeSlug(s string) string {
	return unsafeSlugChars.ReplaceAllString(strings.ToLower(s), "-")
}
