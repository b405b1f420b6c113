package extract

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgard/framesheet/internal/logging"
)

// stubAsset serves synthetic frames and counts decode calls.
type stubAsset struct {
	duration   time.Duration
	decodes    atomic.Int64
	failDecode bool
}

func (a *stubAsset) Duration(ctx context.Context, path string) (time.Duration, error) {
	return a.duration, nil
}

func (a *stubAsset) DecodeFrame(ctx context.Context, path string, ts time.Duration, maxSize int) (image.Image, error) {
	a.decodes.Add(1)
	if a.failDecode {
		return nil, fmt.Errorf("decode failed at %v", ts)
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 18))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

func (a *stubAsset) NativeDisplaySize(ctx context.Context, path string) (int, int, bool) {
	return 0, 0, false
}

func newTestSampler(asset *stubAsset) *Sampler {
	return NewSampler(logging.Nop(), asset, 1.5, 480)
}

func TestTimestampsEvenlySpacedWithinUsableSpan(t *testing.T) {
	s := newTestSampler(&stubAsset{duration: 60 * time.Second})

	// 60s video, 16 requested, 1.5x oversample: 24 candidates strictly
	// between the 5% skip margins at 3s and 57s.
	timestamps, err := s.Timestamps(60*time.Second, 16)
	require.NoError(t, err)
	require.Len(t, timestamps, 24)

	for i, ts := range timestamps {
		assert.Greater(t, ts, 3*time.Second, "candidate %d inside leading skip", i)
		assert.Less(t, ts, 57*time.Second, "candidate %d inside trailing skip", i)
		if i > 0 {
			assert.Greater(t, ts, timestamps[i-1], "timestamps must ascend")
		}
	}
}

func TestTimestampsSpacingFormula(t *testing.T) {
	s := newTestSampler(&stubAsset{duration: 100 * time.Second})

	timestamps, err := s.Timestamps(100*time.Second, 4)
	require.NoError(t, err)
	require.Len(t, timestamps, 6)

	// skip = 5s, usable = 90s, step = 90/7s
	step := 90 * time.Second / 7
	for i, ts := range timestamps {
		assert.InDelta(t, float64(5*time.Second+step*time.Duration(i+1)), float64(ts), float64(time.Millisecond))
	}
}

func TestVideoTooShortBeforeAnyDecode(t *testing.T) {
	asset := &stubAsset{duration: 0}
	s := newTestSampler(asset)

	_, err := s.Extract(context.Background(), "clip.mp4", 0, 16, nil)
	require.ErrorIs(t, err, ErrVideoTooShort)
	assert.Zero(t, asset.decodes.Load(), "no decode may be attempted for a too-short video")
}

func TestExtractDecodesEveryCandidate(t *testing.T) {
	asset := &stubAsset{duration: 60 * time.Second}
	s := newTestSampler(asset)

	var reported []float64
	frames, err := s.Extract(context.Background(), "clip.mp4", 60*time.Second, 16, func(f float64) {
		reported = append(reported, f)
	})
	require.NoError(t, err)
	assert.Len(t, frames, 24)
	assert.EqualValues(t, 24, asset.decodes.Load())

	require.NotEmpty(t, reported)
	assert.InDelta(t, 1.0, reported[len(reported)-1], 1e-9)
	for i := 1; i < len(reported); i++ {
		assert.GreaterOrEqual(t, reported[i], reported[i-1])
	}
}

func TestExtractFailsFastOnDecodeError(t *testing.T) {
	asset := &stubAsset{duration: 60 * time.Second, failDecode: true}
	s := newTestSampler(asset)

	_, err := s.Extract(context.Background(), "clip.mp4", 60*time.Second, 16, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, asset.decodes.Load(), "a decode failure is fatal to the extraction")
}

func TestExtractHonorsCancellation(t *testing.T) {
	asset := &stubAsset{duration: 60 * time.Second}
	s := newTestSampler(asset)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Extract(ctx, "clip.mp4", 60*time.Second, 16, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, asset.decodes.Load())
}
