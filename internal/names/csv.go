// Package names loads the optional tag display-name table.
package names

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// CSVSource reads a "name,slug" CSV with a header row. Column order is taken
// from the header.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Names returns slug to display name. A missing file is an empty mapping.
func (s *CSVSource) Names(_ context.Context) (map[string]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open names csv: %w", err)
	}
	defer f.Close()

	names, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse names csv %s: %w", s.path, err)
	}
	return names, nil
}

// Parse reads the mapping from r. Rows missing either column are skipped;
// slugs are lowercased.
func Parse(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	nameCol, slugCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "name":
			nameCol = i
		case "slug":
			slugCol = i
		}
	}
	if nameCol < 0 || slugCol < 0 {
		return nil, fmt.Errorf("header must contain name and slug, got %v", header)
	}

	names := make(map[string]string)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if nameCol >= len(record) || slugCol >= len(record) {
			continue
		}

		name := strings.TrimSpace(record[nameCol])
		slug := strings.ToLower(strings.TrimSpace(record[slugCol]))
		if name == "" || slug == "" {
			continue
		}
		names[slug] = name
	}
	return names, nil
}
