package pipeline

import (
	"context"
	"time"

	"github.com/jgard/framesheet/internal/compose"
)

// State is a job's position in its lifecycle. Complete, Cancelled and
// Failed are terminal.
type State int

const (
	StateQueued State = iota
	StateLoading
	StateExtracting
	StateSelecting
	StateComposing
	StateComplete
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateLoading:
		return "loading"
	case StateExtracting:
		return "extracting"
	case StateSelecting:
		return "selecting"
	case StateComposing:
		return "composing"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled || s == StateFailed
}

// Progress weighting per phase. Extraction and selection collapse to their
// upper bound on a cache hit.
const (
	progressLoaded    = 0.10
	progressExtracted = 0.50
	progressSelected  = 0.80
)

// Job is one video pipeline run. Owned exclusively by the Scheduler and
// mutated only through its update API.
type Job struct {
	id         string
	sourcePath string
	grid       compose.GridConfig
	state      State
	progress   float64
	status     string
	outputPath string
	err        error
	duration   time.Duration
	cancel     context.CancelFunc
}

// Snapshot is an immutable view of a job handed to progress consumers.
type Snapshot struct {
	ID         string
	SourcePath string
	State      State
	Progress   float64
	Status     string
	OutputPath string
	Err        error
}

func (j *Job) snapshot() Snapshot {
	return Snapshot{
		ID:         j.id,
		SourcePath: j.sourcePath,
		State:      j.state,
		Progress:   j.progress,
		Status:     j.status,
		OutputPath: j.outputPath,
		Err:        j.err,
	}
}

// Result aggregates a run's terminal states. The run itself never fails as
// a whole.
type Result struct {
	Complete  int
	Failed    int
	Cancelled int
}
