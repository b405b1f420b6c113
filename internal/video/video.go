package video

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrDecodeFailure indicates the backend could not produce a frame at a timestamp.
var ErrDecodeFailure = errors.New("frame decode failed")

// ErrUnsupportedContainer indicates the source file extension is not a supported container.
var ErrUnsupportedContainer = errors.New("unsupported video container")

// Asset provides duration and frame-at-timestamp decoding for a video file.
// The selection and composition pipeline consumes this interface; FFmpegAsset
// is the shipped implementation.
type Asset interface {
	// Duration returns the playable duration of the video at path.
	Duration(ctx context.Context, path string) (time.Duration, error)

	// DecodeFrame decodes a single raster frame at the given timestamp,
	// scaled down so neither dimension exceeds maxSize. The source aspect
	// ratio is preserved.
	DecodeFrame(ctx context.Context, path string, ts time.Duration, maxSize int) (image.Image, error)

	// NativeDisplaySize returns the display dimensions of the primary video
	// track, corrected for rotation metadata. ok is false when the track
	// dimensions are unavailable.
	NativeDisplaySize(ctx context.Context, path string) (width, height int, ok bool)
}
