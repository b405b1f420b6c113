package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/jgard/framesheet/internal/video"
)

// ErrVideoTooShort indicates no usable duration remains after trimming the
// skip margins.
var ErrVideoTooShort = errors.New("video too short to sample frames")

// Frame is a decoded raster with its source timestamp. Frames are owned by
// the pipeline run that produced them and never mutated after creation.
type Frame struct {
	Image     image.Image
	Timestamp time.Duration
}

const (
	// skipFraction trims assumed intro/outro from each end of the video.
	skipFraction = 0.05

	// decodeYieldBatch is how many decodes run between cooperative yields.
	decodeYieldBatch = 5
)

// Sampler computes candidate timestamps and decodes frames for them.
type Sampler struct {
	logger        zerolog.Logger
	asset         video.Asset
	oversample    float64
	maxDecodeSize int
}

// NewSampler creates a frame sampler over the given video asset.
func NewSampler(logger zerolog.Logger, asset video.Asset, oversample float64, maxDecodeSize int) *Sampler {
	if oversample < 1.0 {
		oversample = 1.5
	}
	if maxDecodeSize <= 0 {
		maxDecodeSize = 480
	}
	return &Sampler{
		logger:        logger.With().Str("component", "sampler").Logger(),
		asset:         asset,
		oversample:    oversample,
		maxDecodeSize: maxDecodeSize,
	}
}

// Timestamps computes the oversampled candidate timestamps for a video of
// the given duration. Timestamps are evenly spaced within the span that
// remains after trimming skipFraction from each end.
func (s *Sampler) Timestamps(duration time.Duration, requested int) ([]time.Duration, error) {
	if requested <= 0 {
		return nil, fmt.Errorf("requested frame count must be positive, got %d", requested)
	}

	skip := time.Duration(float64(duration) * skipFraction)
	usable := duration - 2*skip
	if usable <= 0 {
		return nil, fmt.Errorf("%w: duration %v", ErrVideoTooShort, duration)
	}

	count := int(math.Ceil(float64(requested) * s.oversample))
	step := usable / time.Duration(count+1)

	timestamps := make([]time.Duration, 0, count)
	for i := 0; i < count; i++ {
		timestamps = append(timestamps, skip+step*time.Duration(i+1))
	}
	return timestamps, nil
}

// Extract decodes one candidate frame per sampled timestamp. A single decode
// failure aborts the whole extraction. onProgress, if non-nil, receives the
// fraction of candidates decoded so far.
func (s *Sampler) Extract(ctx context.Context, path string, duration time.Duration, requested int, onProgress func(float64)) ([]Frame, error) {
	timestamps, err := s.Timestamps(duration, requested)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("video", path).
		Int("candidates", len(timestamps)).
		Dur("duration", duration).
		Msg("sampling candidate frames")

	frames := make([]Frame, 0, len(timestamps))
	for i, ts := range timestamps {
		// Yield between decode batches so one video cannot monopolize
		// the scheduler; also the cancellation checkpoint.
		if i%decodeYieldBatch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		img, err := s.asset.DecodeFrame(ctx, path, ts, s.maxDecodeSize)
		if err != nil {
			return nil, fmt.Errorf("extracting frame %d/%d: %w", i+1, len(timestamps), err)
		}

		frames = append(frames, Frame{Image: img, Timestamp: ts})

		if onProgress != nil {
			onProgress(float64(i+1) / float64(len(timestamps)))
		}
	}

	s.logger.Debug().
		Str("video", path).
		Int("frames", len(frames)).
		Msg("candidate extraction complete")

	return frames, nil
}
