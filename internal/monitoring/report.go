// Package monitoring tracks what a pipeline run processed, skipped, and
// flagged, and exports it for the node-exporter textfile collector.
package monitoring

import (
	"sort"
	"sync"
	"time"
)

// Stage names the pipeline step a file counter belongs to.
type Stage string

// Pipeline stages.
const (
	StageClip      Stage = "clip"
	StageSummarize Stage = "summarize"
)

type skipKey struct {
	stage Stage
	kind  string
}

// Report accumulates run counters. It is safe for concurrent use.
type Report struct {
	mu sync.Mutex

	runID     string
	startedAt time.Time

	seen         map[Stage]int
	processed    map[Stage]int
	skipped      map[skipKey]int
	years        map[int]struct{}
	parcels      int
	unknownCodes int
	districts    int
	rows         int
	mismatches   int
	maxDiff      float64
}

// NewReport starts a report for the given run.
func NewReport(runID string) *Report {
	return &Report{
		runID:     runID,
		startedAt: time.Now().UTC(),
		seen:      make(map[Stage]int),
		processed: make(map[Stage]int),
		skipped:   make(map[skipKey]int),
		years:     make(map[int]struct{}),
	}
}

// RunID returns the run identifier.
func (r *Report) RunID() string { return r.runID }

// FileSeen counts a discovered input file.
func (r *Report) FileSeen(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[stage]++
}

// FileProcessed counts an input file of the given survey year that made it
// through its stage.
func (r *Report) FileProcessed(stage Stage, year int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[stage]++
	r.years[year] = struct{}{}
}

// FileSkipped counts a file skipped for the given reason kind.
func (r *Report) FileSkipped(stage Stage, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped[skipKey{stage, kind}]++
}

// AddParcels counts clipped parcels.
func (r *Report) AddParcels(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parcels += n
}

// AddUnknownCodes counts codes that resolved to the unknown category.
func (r *Report) AddUnknownCodes(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unknownCodes += n
}

// SetValidation records the outcome of the final table check.
func (r *Report) SetValidation(districts, rows, mismatches int, maxDiff float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.districts = districts
	r.rows = rows
	r.mismatches = mismatches
	r.maxDiff = maxDiff
}

// FileCount is the per-stage file tally.
type FileCount struct {
	Stage     Stage `json:"stage"`
	Seen      int   `json:"seen"`
	Processed int   `json:"processed"`
}

// SkipCount is the number of files one stage skipped for one reason.
type SkipCount struct {
	Stage Stage  `json:"stage"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// Snapshot is a point-in-time copy of a Report.
type Snapshot struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Files        []FileCount   `json:"files"`
	Skipped      []SkipCount   `json:"skipped"`
	Years        []int         `json:"years"`
	Parcels      int           `json:"parcels"`
	UnknownCodes int           `json:"unknown_codes"`
	Districts    int           `json:"districts"`
	Rows         int           `json:"rows"`
	Mismatches   int           `json:"mismatches"`
	MaxDiff      float64       `json:"max_diff"`
}

// Processed returns how many files a stage processed.
func (s Snapshot) Processed(stage Stage) int {
	for _, f := range s.Files {
		if f.Stage == stage {
			return f.Processed
		}
	}
	return 0
}

// SkippedTotal sums skips over all stages and kinds.
func (s Snapshot) SkippedTotal() int {
	var n int
	for _, c := range s.Skipped {
		n += c.Count
	}
	return n
}

// Snapshot copies the current counters in a stable order.
func (r *Report) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		RunID:        r.runID,
		StartedAt:    r.startedAt,
		Duration:     time.Since(r.startedAt),
		Parcels:      r.parcels,
		UnknownCodes: r.unknownCodes,
		Districts:    r.districts,
		Rows:         r.rows,
		Mismatches:   r.mismatches,
		MaxDiff:      r.maxDiff,
	}

	stages := make(map[Stage]struct{})
	for st := range r.seen {
		stages[st] = struct{}{}
	}
	for st := range r.processed {
		stages[st] = struct{}{}
	}
	for st := range stages {
		s.Files = append(s.Files, FileCount{Stage: st, Seen: r.seen[st], Processed: r.processed[st]})
	}
	sort.Slice(s.Files, func(a, b int) bool { return s.Files[a].Stage < s.Files[b].Stage })

	for k, n := range r.skipped {
		s.Skipped = append(s.Skipped, SkipCount{Stage: k.stage, Kind: k.kind, Count: n})
	}
	sort.Slice(s.Skipped, func(a, b int) bool {
		if s.Skipped[a].Stage != s.Skipped[b].Stage {
			return s.Skipped[a].Stage < s.Skipped[b].Stage
		}
		return s.Skipped[a].Kind < s.Skipped[b].Kind
	})

	for y := range r.years {
		s.Years = append(s.Years, y)
	}
	sort.Ints(s.Years)
	return s
}
