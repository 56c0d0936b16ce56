package analysis

import (
	"time"

	"github.com/turtacn/SafeScan/pkg/errors"
)

// Stage is a step of the analysis pipeline.
type Stage int

const (
	StageCacheLookup Stage = iota
	StageExtraction
	StageMatching
	StageEnrichment
	StageMerge
	StageValidation
	StageScoring
	StagePersist
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageCacheLookup: "cache_lookup",
	StageExtraction:  "extraction",
	StageMatching:    "matching",
	StageEnrichment:  "enrichment",
	StageMerge:       "merge",
	StageValidation:  "validation",
	StageScoring:     "scoring",
	StagePersist:     "persist",
	StageDone:        "done",
	StageFailed:      "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Next is the only legal successor of s. Terminal stages return themselves.
func (s Stage) Next() Stage {
	if s.IsTerminal() {
		return s
	}
	return s + 1
}

// IsTerminal reports whether s is Done or Failed.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// CanTransition reports whether from → to is legal: the successor, Failed
// from any live stage, or CacheLookup straight to Done on a cache hit.
func CanTransition(from, to Stage) bool {
	if from.IsTerminal() {
		return false
	}
	switch {
	case to == from.Next():
		return true
	case to == StageFailed:
		return true
	case from == StageCacheLookup && to == StageDone:
		return true
	default:
		return false
	}
}

// StageTracker walks one request through the pipeline and times each stage.
type StageTracker struct {
	current Stage
	visited []Stage
	entered time.Time
	now     func() time.Time
	observe func(Stage, time.Duration)
}

// NewStageTracker starts at CacheLookup. observe may be nil.
func NewStageTracker(now func() time.Time, observe func(Stage, time.Duration)) *StageTracker {
	if now == nil {
		now = time.Now
	}
	return &StageTracker{
		current: StageCacheLookup,
		visited: []Stage{StageCacheLookup},
		entered: now(),
		now:     now,
		observe: observe,
	}
}

// Current is the stage being executed.
func (t *StageTracker) Current() Stage { return t.current }

// Advance moves to the given stage or returns ErrCodeStageOutOfOrder.
func (t *StageTracker) Advance(to Stage) error {
	if !CanTransition(t.current, to) {
		return errors.New(errors.ErrCodeStageOutOfOrder, "illegal stage transition").
			WithDetail(t.current.String() + " -> " + to.String())
	}
	now := t.now()
	if t.observe != nil {
		t.observe(t.current, now.Sub(t.entered))
	}
	t.current = to
	t.entered = now
	t.visited = append(t.visited, to)
	return nil
}

// Fail moves to Failed unless already terminal.
func (t *StageTracker) Fail() {
	if !t.current.IsTerminal() {
		_ = t.Advance(StageFailed)
	}
}

// Visited lists stage names in the order entered.
func (t *StageTracker) Visited() []string {
	out := make([]string, len(t.visited))
	for i, s := range t.visited {
		out[i] = s.String()
	}
	return out
}
