package analyze

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/jgard/framesheet/internal/extract"
)

const (
	// fastPathMax is the largest grid for which distinctness scoring is
	// skipped in favor of evenly spaced indices.
	fastPathMax = 12

	// Quality filter bounds: frames outside them are fades or blanks.
	brightnessFloor = 0.15
	brightnessCeil  = 0.85
	varianceFloor   = 0.008

	// maxComparisons caps the partner set scored against each candidate.
	maxComparisons = 5

	// scoreYieldBatch is how many candidates are scored between
	// cooperative yields.
	scoreYieldBatch = 10
)

// Weights for the composite distinctness score.
type Weights struct {
	Brightness    float64
	ColorVariance float64
}

// Selector picks the most visually distinct subset of candidate frames.
type Selector struct {
	logger  zerolog.Logger
	weights Weights
}

// NewSelector creates a selector with the default score weights.
func NewSelector(logger zerolog.Logger) *Selector {
	return &Selector{
		logger: logger.With().Str("component", "selector").Logger(),
		weights: Weights{
			Brightness:    0.6,
			ColorVariance: 0.4,
		},
	}
}

// Select returns min(requested, len(candidates)) frames in chronological
// order. Small requests and undersized pools take the evenly-spaced fast
// path; everything else goes through metric scoring. onProgress, if non-nil,
// receives a fraction of selection work done.
func (s *Selector) Select(ctx context.Context, candidates []extract.Frame, requested int, onProgress func(float64)) ([]extract.Frame, error) {
	if requested <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	if requested <= fastPathMax || len(candidates) <= requested {
		s.logger.Debug().
			Int("candidates", len(candidates)).
			Int("requested", requested).
			Msg("fast path selection")
		report(onProgress, 1.0)
		return evenlySpaced(candidates, requested), nil
	}

	// Metrics for every candidate; unrasterizable frames drop out here.
	scored := make([]*FrameMetrics, 0, len(candidates))
	for i, frame := range candidates {
		if i%scoreYieldBatch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if m, ok := ComputeMetrics(frame.Image, i); ok {
			scored = append(scored, m)
		}
	}
	report(onProgress, 0.3)

	if len(scored) <= requested {
		// Too few usable candidates to discriminate between.
		frames := make([]extract.Frame, 0, len(scored))
		for _, m := range scored {
			frames = append(frames, candidates[m.Index])
		}
		report(onProgress, 1.0)
		return frames, nil
	}

	// Quality filter, abandoned entirely if it would make the request
	// infeasible.
	filtered := make([]*FrameMetrics, 0, len(scored))
	for _, m := range scored {
		if m.Brightness > brightnessFloor && m.Brightness < brightnessCeil && m.ColorVariance >= varianceFloor {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) < requested {
		s.logger.Debug().
			Int("filtered", len(filtered)).
			Int("requested", requested).
			Msg("quality filter too aggressive, scoring unfiltered set")
		filtered = scored
	}
	report(onProgress, 0.4)

	type rankedFrame struct {
		metrics *FrameMetrics
		score   float64
	}

	ranked := make([]rankedFrame, 0, len(filtered))
	for i, m := range filtered {
		if i%scoreYieldBatch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		ranked = append(ranked, rankedFrame{
			metrics: m,
			score:   s.distinctness(filtered, i),
		})

		report(onProgress, 0.4+0.5*float64(i+1)/float64(len(filtered)))
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})
	top := ranked[:requested]

	// Output is always time-ordered regardless of score order.
	sort.Slice(top, func(a, b int) bool {
		return top[a].metrics.Index < top[b].metrics.Index
	})

	frames := make([]extract.Frame, 0, requested)
	for _, r := range top {
		frames = append(frames, candidates[r.metrics.Index])
	}

	s.logger.Debug().
		Int("candidates", len(candidates)).
		Int("selected", len(frames)).
		Msg("distinctness selection complete")

	report(onProgress, 1.0)
	return frames, nil
}

// distinctness scores candidate i against a bounded partner set: its time
// neighbors plus anchors at the quarter points of the pool. Bounding the
// comparisons is what keeps selection near-linear.
func (s *Selector) distinctness(pool []*FrameMetrics, i int) float64 {
	partners := comparisonPartners(len(pool), i)
	if len(partners) == 0 {
		return 0
	}

	var sum float64
	for _, j := range partners {
		dBrightness := abs(pool[i].Brightness - pool[j].Brightness)
		dVariance := abs(pool[i].ColorVariance - pool[j].ColorVariance)
		sum += s.weights.Brightness*dBrightness + s.weights.ColorVariance*dVariance
	}
	return sum / float64(len(partners))
}

// comparisonPartners returns up to maxComparisons distinct pool indices for
// candidate i: immediate neighbors first, then quarter/half/three-quarter
// anchors. Self-comparison is skipped.
func comparisonPartners(n, i int) []int {
	candidates := []int{
		i - 1,
		i + 1,
		n / 4,
		n / 2,
		3 * n / 4,
	}

	partners := make([]int, 0, maxComparisons)
	seen := map[int]bool{i: true}
	for _, j := range candidates {
		if j < 0 || j >= n || seen[j] {
			continue
		}
		seen[j] = true
		partners = append(partners, j)
		if len(partners) == maxComparisons {
			break
		}
	}
	return partners
}

// evenlySpaced picks frames at floor(i*len/requested) indices, preserving
// order. When the pool is not larger than the request it returns the pool.
func evenlySpaced(candidates []extract.Frame, requested int) []extract.Frame {
	if len(candidates) <= requested {
		out := make([]extract.Frame, len(candidates))
		copy(out, candidates)
		return out
	}

	out := make([]extract.Frame, 0, requested)
	for i := 0; i < requested; i++ {
		out = append(out, candidates[i*len(candidates)/requested])
	}
	return out
}

func report(onProgress func(float64), fraction float64) {
	if onProgress != nil {
		onProgress(fraction)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
