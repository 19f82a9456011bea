package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CaptureRecord is one stored quick capture with its resolved categorization.
type CaptureRecord struct {
	ID          string
	Text        string
	ContentType string
	Pillar      string
	Area        string
	Project     string
	Confidence  float64
	CreatedAt   time.Time
}

// PillarRecord, AreaRecord, and ProjectRecord mirror the taxonomy tables.
// Position preserves declaration order, which scoring tie-breaks rely on.
type PillarRecord struct {
	ID       string
	Name     string
	Position int
}

// AreaRecord is a sub-domain row under a pillar.
type AreaRecord struct {
	ID       string
	PillarID string
	Name     string
	Position int
}

// ProjectRecord is a concrete initiative row under an area.
type ProjectRecord struct {
	ID       string
	AreaID   string
	Name     string
	Active   bool
	Position int
}

// Job is a queued background task (bulk capture import).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
