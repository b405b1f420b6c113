package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/jgard/framesheet/internal/analyze"
	"github.com/jgard/framesheet/internal/cache"
	"github.com/jgard/framesheet/internal/compose"
	"github.com/jgard/framesheet/internal/extract"
	"github.com/jgard/framesheet/internal/video"
)

const maxConcurrencyBound = 10

// ProgressFunc receives a job snapshot whenever its progress or state
// changes. Called from job goroutines; implementations must be fast.
type ProgressFunc func(Snapshot)

// Options configures a scheduler.
type Options struct {
	MaxConcurrent    int
	OversampleFactor float64
	MaxDecodeSize    int
	JPEGQuality      int
	OutputDir        string
}

// Scheduler runs one pipeline per video job with a bounded number of jobs
// in flight. The job table is mutated only under the scheduler's lock.
type Scheduler struct {
	logger   zerolog.Logger
	asset    video.Asset
	frames   *cache.Cache
	sampler  *extract.Sampler
	selector *analyze.Selector
	composer *compose.Composer

	gate      *semaphore.Weighted
	outputDir string

	mu         sync.Mutex
	jobs       map[string]*Job
	order      []string
	onProgress ProgressFunc
}

// NewScheduler creates a scheduler. frameCache may be nil to disable
// caching entirely.
func NewScheduler(logger zerolog.Logger, asset video.Asset, frameCache *cache.Cache, opts Options) *Scheduler {
	workers := opts.MaxConcurrent
	if workers < 1 {
		workers = 2
	}
	if workers > maxConcurrencyBound {
		workers = maxConcurrencyBound
	}

	return &Scheduler{
		logger:    logger.With().Str("component", "scheduler").Logger(),
		asset:     asset,
		frames:    frameCache,
		sampler:   extract.NewSampler(logger, asset, opts.OversampleFactor, opts.MaxDecodeSize),
		selector:  analyze.NewSelector(logger),
		composer:  compose.NewComposer(logger, asset, opts.JPEGQuality),
		gate:      semaphore.NewWeighted(int64(workers)),
		outputDir: opts.OutputDir,
		jobs:      make(map[string]*Job),
	}
}

// OnProgress registers the progress consumer. Must be set before Run.
func (s *Scheduler) OnProgress(fn ProgressFunc) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

// Enqueue registers a video job and returns its id.
func (s *Scheduler) Enqueue(sourcePath string, grid compose.GridConfig) string {
	job := &Job{
		id:         uuid.NewString(),
		sourcePath: sourcePath,
		grid:       grid,
		state:      StateQueued,
		status:     "queued",
	}

	s.mu.Lock()
	s.jobs[job.id] = job
	s.order = append(s.order, job.id)
	s.mu.Unlock()

	s.logger.Debug().Str("job", job.id).Str("video", sourcePath).Msg("job enqueued")
	return job.id
}

// Jobs returns snapshots of all jobs in enqueue order.
func (s *Scheduler) Jobs() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].snapshot())
	}
	return out
}

// Cancel requests cooperative cancellation of one job. A job Run has not
// picked up yet is cancelled in place.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	if job.cancel != nil {
		cancel := job.cancel
		s.mu.Unlock()
		cancel()
		return
	}

	if job.state != StateQueued {
		s.mu.Unlock()
		return
	}
	job.state = StateCancelled
	job.status = "cancelled"
	snap := job.snapshot()
	fn := s.onProgress
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// Clear drops all jobs. Only valid between runs.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.jobs = make(map[string]*Job)
	s.order = nil
	s.mu.Unlock()
}

// Run processes every queued job, at most MaxConcurrent mid-flight at once.
// Cancelling ctx cancels all outstanding jobs; Run always drains and never
// returns an error for individual job failures.
func (s *Scheduler) Run(ctx context.Context) Result {
	type pending struct {
		job *Job
		ctx context.Context
	}

	s.mu.Lock()
	queue := make([]pending, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id]
		if job.state == StateQueued {
			jobCtx, cancel := context.WithCancel(ctx)
			job.cancel = cancel
			queue = append(queue, pending{job: job, ctx: jobCtx})
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range queue {
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			s.runJob(p.ctx, p.job)
		}(p)
	}
	wg.Wait()

	result := Result{}
	s.mu.Lock()
	for _, id := range s.order {
		switch s.jobs[id].state {
		case StateComplete:
			result.Complete++
		case StateCancelled:
			result.Cancelled++
		case StateFailed:
			result.Failed++
		}
	}
	s.mu.Unlock()

	s.logger.Info().
		Int("complete", result.Complete).
		Int("failed", result.Failed).
		Int("cancelled", result.Cancelled).
		Msg("run finished")

	return result
}

// runJob drives one job through its phases. Cancellation is checked at
// every phase boundary; the admission slot is released on all paths.
func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	// Admission gate: the pipeline proper may not start until a slot is
	// held. A cancelled wait never reaches Loading.
	if err := s.gate.Acquire(ctx, 1); err != nil {
		s.finish(job, StateCancelled, "", nil)
		return
	}
	defer s.gate.Release(1)

	if err := s.ctxOrFail(ctx, job); err != nil {
		return
	}

	outputPath, err := s.execute(ctx, job)
	switch {
	case err == nil:
		s.finish(job, StateComplete, outputPath, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.finish(job, StateCancelled, "", nil)
	default:
		s.finish(job, StateFailed, "", err)
	}
}

// execute runs the load → extract → select → compose sequence.
func (s *Scheduler) execute(ctx context.Context, job *Job) (string, error) {
	requested := job.grid.Rows * job.grid.Cols

	s.transition(job, StateLoading, "loading video", 0)
	duration, err := s.asset.Duration(ctx, job.sourcePath)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", job.sourcePath, err)
	}
	s.setDuration(job, duration)
	s.setProgress(job, progressLoaded)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var selected []extract.Frame
	if s.frames != nil {
		if cached, ok := s.frames.Lookup(job.sourcePath, requested); ok {
			selected = cached
			s.transition(job, StateSelecting, "loaded from cache", progressSelected)
		}
	}

	if selected == nil {
		s.transition(job, StateExtracting, "extracting frames", progressLoaded)
		candidates, err := s.sampler.Extract(ctx, job.sourcePath, duration, requested, func(f float64) {
			s.setProgress(job, progressLoaded+(progressExtracted-progressLoaded)*f)
		})
		if err != nil {
			return "", err
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}

		s.transition(job, StateSelecting, "selecting frames", progressExtracted)
		selected, err = s.selector.Select(ctx, candidates, requested, func(f float64) {
			s.setProgress(job, progressExtracted+(progressSelected-progressExtracted)*f)
		})
		if err != nil {
			return "", err
		}

		if s.frames != nil {
			s.frames.Store(job.sourcePath, requested, selected)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.transition(job, StateComposing, "composing grid", progressSelected)
	outputPath, err := s.composer.Compose(ctx, selected, job.sourcePath, job.duration, job.grid, s.outputDir)
	if err != nil {
		return "", err
	}

	return outputPath, nil
}

func (s *Scheduler) ctxOrFail(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		s.finish(job, StateCancelled, "", nil)
		return err
	}
	return nil
}

// transition moves a job to a new state under the scheduler's lock and
// notifies the progress consumer.
func (s *Scheduler) transition(job *Job, state State, status string, progress float64) {
	s.mu.Lock()
	job.state = state
	job.status = status
	if progress > job.progress {
		job.progress = progress
	}
	snap := job.snapshot()
	fn := s.onProgress
	s.mu.Unlock()

	s.logger.Debug().
		Str("job", job.id).
		Str("state", state.String()).
		Float64("progress", snap.Progress).
		Msg("state transition")

	if fn != nil {
		fn(snap)
	}
}

// setProgress raises a job's progress fraction. Progress never decreases.
func (s *Scheduler) setProgress(job *Job, progress float64) {
	s.mu.Lock()
	if progress <= job.progress {
		s.mu.Unlock()
		return
	}
	job.progress = progress
	snap := job.snapshot()
	fn := s.onProgress
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

func (s *Scheduler) setDuration(job *Job, d time.Duration) {
	s.mu.Lock()
	job.duration = d
	s.mu.Unlock()
}

// finish records a terminal state exactly once.
func (s *Scheduler) finish(job *Job, state State, outputPath string, err error) {
	s.mu.Lock()
	if job.state.Terminal() {
		s.mu.Unlock()
		return
	}
	job.state = state
	job.outputPath = outputPath
	job.err = err
	switch state {
	case StateComplete:
		job.progress = 1.0
		job.status = "complete"
	case StateCancelled:
		job.status = "cancelled"
	case StateFailed:
		job.status = fmt.Sprintf("failed: %v", err)
	}
	snap := job.snapshot()
	fn := s.onProgress
	s.mu.Unlock()

	if state == StateFailed {
		s.logger.Warn().Str("job", job.id).Err(err).Msg("job failed")
	}

	if fn != nil {
		fn(snap)
	}
}
