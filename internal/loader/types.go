// Package loader writes parsed, validated batches into the relational
// schema. Each record kind has its own loader; all of them share the
// chunked-transaction discipline in chunks.go and report through the
// same progress and result types.
package loader

import (
	"time"
)

// LoadPhase indicates the current stage of load processing.
type LoadPhase string

const (
	PhaseStarting   LoadPhase = "starting"
	PhaseDetecting  LoadPhase = "detecting"
	PhaseParsing    LoadPhase = "parsing"
	PhaseValidating LoadPhase = "validating"
	PhaseLoading    LoadPhase = "loading"
	PhaseComplete   LoadPhase = "complete"
	PhaseFailed     LoadPhase = "failed"
	PhaseCancelled  LoadPhase = "cancelled"
)

// LoadProgress represents the current state of a load operation.
type LoadProgress struct {
	LoadID     string
	Kind       string
	Phase      LoadPhase
	FileName   string
	TotalRows  int
	CurrentRow int
	Loaded     int
	Skipped    int
	Failed     int
	Error      string // Non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100).
func (p LoadProgress) Percent() int {
	if p.TotalRows > 0 {
		return (p.CurrentRow * 100) / p.TotalRows
	}
	return 0
}

// FailedRow records a row that could not be loaded, with enough context
// to trace it back to the source file.
type FailedRow struct {
	FileName   string
	LineNumber int
	Reason     string
	Data       []string
}

// SkippedRow records a row the loader intentionally passed over, such as
// an unresolved foreign key or a missing update target. Skips are not
// failures; they surface separately in the summary.
type SkippedRow struct {
	FileName   string
	LineNumber int
	Reason     string
}

// Summary is the aggregate outcome of a single load operation. Counts
// are split by intent so a mixed ADD/MODIFY/DELETE file reports each
// stream separately.
type Summary struct {
	LoadID      string
	Kind        string
	FileName    string
	BatchID     string
	TotalRows   int
	Added       int
	Modified    int
	Deleted     int
	Skipped     int
	FutureDated int
	FailedRows  []FailedRow
	SkippedRows []SkippedRow
	Warnings    []string
	Duration    time.Duration
	Error       string // Non-empty if the load failed
}

// Loaded returns the total number of rows written in any intent stream.
func (s *Summary) Loaded() int {
	return s.Added + s.Modified + s.Deleted
}

// chunkResult carries one chunk's counts back from a worker. Index is
// the chunk's position in the batch so results can be merged in file
// order regardless of completion order.
type chunkResult struct {
	Index       int
	Added       int
	Modified    int
	Deleted     int
	Skipped     int
	FutureDated int
	FailedRows  []FailedRow
	SkippedRows []SkippedRow
}

func (s *Summary) merge(r chunkResult) {
	s.Added += r.Added
	s.Modified += r.Modified
	s.Deleted += r.Deleted
	s.Skipped += r.Skipped
	s.FutureDated += r.FutureDated
	s.FailedRows = append(s.FailedRows, r.FailedRows...)
	s.SkippedRows = append(s.SkippedRows, r.SkippedRows...)
}

func (r *chunkResult) skip(line int, reason string) {
	r.Skipped++
	r.SkippedRows = append(r.SkippedRows, SkippedRow{LineNumber: line, Reason: reason})
}

// ProgressCallback is called periodically during load processing.
type ProgressCallback func(LoadProgress)
