package analyze

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgard/framesheet/internal/extract"
	"github.com/jgard/framesheet/internal/logging"
)

// frameWithLevel builds a candidate frame filled with one gray level.
func frameWithLevel(level uint8, ts time.Duration) extract.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 32, 18))
	for y := 0; y < 18; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: level, G: level, B: level, A: 255})
		}
	}
	return extract.Frame{Image: img, Timestamp: ts}
}

// candidatePool builds n frames with varied mid-range brightness and a
// left/right split that gives each one enough color variance to survive the
// quality filter.
func candidatePool(n int) []extract.Frame {
	frames := make([]extract.Frame, 0, n)
	for i := 0; i < n; i++ {
		level := uint8(60 + (i*9)%100)
		img := image.NewRGBA(image.Rect(0, 0, 32, 18))
		for y := 0; y < 18; y++ {
			for x := 0; x < 32; x++ {
				l := level
				if x >= 16 {
					l += 60
				}
				img.SetRGBA(x, y, color.RGBA{R: l, G: l, B: l, A: 255})
			}
		}
		frames = append(frames, extract.Frame{Image: img, Timestamp: time.Duration(i+1) * time.Second})
	}
	return frames
}

func TestFastPathUsesEvenlySpacedIndices(t *testing.T) {
	s := NewSelector(logging.Nop())
	candidates := candidatePool(24)

	// requested <= 12 must bypass scoring entirely: output equals the
	// floor(i*len/requested) rule no matter what the pixels contain.
	selected, err := s.Select(context.Background(), candidates, 8, nil)
	require.NoError(t, err)
	require.Len(t, selected, 8)

	for i, frame := range selected {
		want := candidates[i*24/8]
		assert.Equal(t, want.Timestamp, frame.Timestamp, "index %d", i)
	}
}

func TestFewerCandidatesThanRequestedReturnsAll(t *testing.T) {
	s := NewSelector(logging.Nop())
	candidates := candidatePool(10)

	selected, err := s.Select(context.Background(), candidates, 16, nil)
	require.NoError(t, err)
	require.Len(t, selected, 10)

	for i := range candidates {
		assert.Equal(t, candidates[i].Timestamp, selected[i].Timestamp)
	}
}

func TestScoringPathReturnsExactCountInChronologicalOrder(t *testing.T) {
	s := NewSelector(logging.Nop())

	// 16 > 12 activates the scoring path; 24 candidates leave room to
	// discriminate.
	candidates := candidatePool(24)
	selected, err := s.Select(context.Background(), candidates, 16, nil)
	require.NoError(t, err)
	require.Len(t, selected, 16)

	for i := 1; i < len(selected); i++ {
		assert.Greater(t, selected[i].Timestamp, selected[i-1].Timestamp,
			"selection must be time-ordered regardless of score order")
	}
}

func TestQualityFilterNeverMakesRequestInfeasible(t *testing.T) {
	s := NewSelector(logging.Nop())

	// Every candidate is nearly black: the fade filter would reject the
	// whole pool, so it must be discarded.
	candidates := make([]extract.Frame, 0, 20)
	for i := 0; i < 20; i++ {
		candidates = append(candidates, frameWithLevel(uint8(i%8), time.Duration(i+1)*time.Second))
	}

	selected, err := s.Select(context.Background(), candidates, 13, nil)
	require.NoError(t, err)
	assert.Len(t, selected, 13)
}

func TestSelectReportsProgressMilestones(t *testing.T) {
	s := NewSelector(logging.Nop())
	candidates := candidatePool(24)

	var reported []float64
	_, err := s.Select(context.Background(), candidates, 16, func(f float64) {
		reported = append(reported, f)
	})
	require.NoError(t, err)

	require.NotEmpty(t, reported)
	assert.InDelta(t, 1.0, reported[len(reported)-1], 1e-9)
	for i := 1; i < len(reported); i++ {
		assert.GreaterOrEqual(t, reported[i], reported[i-1])
	}
}

func TestSelectHonorsCancellation(t *testing.T) {
	s := NewSelector(logging.Nop())
	candidates := candidatePool(24)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The metrics pass must observe cancellation before doing any work, so
	// not even the first progress milestone may be reported.
	var reported []float64
	_, err := s.Select(ctx, candidates, 16, func(f float64) {
		reported = append(reported, f)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reported, "a cancelled selection must bail before computing metrics")
}

func TestComparisonPartnersBoundedAndSelfFree(t *testing.T) {
	for _, i := range []int{0, 1, 11, 23} {
		partners := comparisonPartners(24, i)
		assert.LessOrEqual(t, len(partners), maxComparisons)
		assert.NotEmpty(t, partners)
		for _, j := range partners {
			assert.NotEqual(t, i, j, "self-comparison must be skipped")
			assert.GreaterOrEqual(t, j, 0)
			assert.Less(t, j, 24)
		}
	}
}

func TestSelectEmptyInput(t *testing.T) {
	s := NewSelector(logging.Nop())

	selected, err := s.Select(context.Background(), nil, 16, nil)
	require.NoError(t, err)
	assert.Empty(t, selected)
}
