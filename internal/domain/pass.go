package domain

import (
	"errors"
	"time"
)

var (
	ErrFeedUnreachable = errors.New("feed unreachable")
	ErrPassInProgress  = errors.New("aggregation pass already in progress")
	ErrNotFound        = errors.New("not found")
)

// PassState is the orchestrator's position within a pass.
type PassState int32

const (
	StateIdle PassState = iota
	StateWalking
	StatePersisting
	StatePruning
	StateRecomputing
)

func (s PassState) String() string {
	switch s {
	case StateWalking:
		return "walking"
	case StatePersisting:
		return "persisting"
	case StatePruning:
		return "pruning"
	case StateRecomputing:
		return "recomputing"
	default:
		return "idle"
	}
}

// PassStats holds statistics about one aggregation pass.
type PassStats struct {
	Date            string        `json:"date"`
	Pages           int           `json:"pages"`
	Accepted        int           `json:"accepted"`
	Inserted        int           `json:"inserted"`
	Duplicates      int           `json:"duplicates"`
	Tags            int           `json:"tags"`
	PrunedArticles  int64         `json:"pruned_articles"`
	PrunedSnapshots int64         `json:"pruned_snapshots"`
	Snapshots       int           `json:"snapshots"`
	Duration        time.Duration `json:"duration"`
}
