package batch

import (
	"sync"
	"time"
)

const percentMultiplier = 100

// Progress tracks how far a partitioned run has advanced. It is safe for
// concurrent use so a status endpoint can read it while a run advances it.
type Progress struct {
	// mu protects concurrent access to progress fields.
	mu sync.RWMutex

	// totalRecords is the number of measurements in the run's snapshot.
	totalRecords int

	// processedRecords is the number of measurements accepted so far.
	processedRecords int

	// totalParts is the number of parts the snapshot was split into.
	totalParts int

	// processedParts is the number of parts accepted so far.
	processedParts int

	// startedAt is when the run started.
	startedAt time.Time

	// updatedAt is when progress was last recorded.
	updatedAt time.Time
}

// NewProgress creates a tracker for totalRecords split into totalParts.
func NewProgress(totalRecords, totalParts int) *Progress {
	now := time.Now()
	return &Progress{
		totalRecords: totalRecords,
		totalParts:   totalParts,
		startedAt:    now,
		updatedAt:    now,
	}
}

// AddPart records one finished part of n records.
func (p *Progress) AddPart(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processedRecords += n
	p.processedParts++
	p.updatedAt = time.Now()
}

// PercentComplete returns the completion percentage (0-100) by records.
func (p *Progress) PercentComplete() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.percentUnsafe()
}

func (p *Progress) percentUnsafe() float64 {
	if p.totalRecords == 0 {
		return 0
	}
	return float64(p.processedRecords) / float64(p.totalRecords) * percentMultiplier
}

// IsComplete reports whether every part has been processed.
func (p *Progress) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processedParts >= p.totalParts
}

// EstimatedTimeRemaining extrapolates from the average time per record.
// Returns 0 until the first part finishes.
func (p *Progress) EstimatedTimeRemaining() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.processedRecords == 0 {
		return 0
	}
	perRecord := p.updatedAt.Sub(p.startedAt) / time.Duration(p.processedRecords)
	return perRecord * time.Duration(p.totalRecords-p.processedRecords)
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		TotalRecords:     p.totalRecords,
		ProcessedRecords: p.processedRecords,
		TotalParts:       p.totalParts,
		ProcessedParts:   p.processedParts,
		StartedAt:        p.startedAt,
		UpdatedAt:        p.updatedAt,
		PercentComplete:  p.percentUnsafe(),
	}
}

// ProgressSnapshot is an immutable view of Progress.
type ProgressSnapshot struct {
	TotalRecords     int       `json:"total_records"`
	ProcessedRecords int       `json:"processed_records"`
	TotalParts       int       `json:"total_parts"`
	ProcessedParts   int       `json:"processed_parts"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	PercentComplete  float64   `json:"percent_complete"`
}
