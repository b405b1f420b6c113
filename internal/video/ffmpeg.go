package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// supportedExtensions lists the containers the pipeline accepts.
var supportedExtensions = map[string]bool{
	".mp4": true,
	".m4v": true,
	".mov": true,
}

// FFmpegAsset implements Asset by shelling out to ffmpeg/ffprobe.
type FFmpegAsset struct {
	logger zerolog.Logger
}

// NewFFmpegAsset creates an ffmpeg-backed video asset adapter.
func NewFFmpegAsset(logger zerolog.Logger) (*FFmpegAsset, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &FFmpegAsset{
		logger: logger.With().Str("component", "video-asset").Logger(),
	}, nil
}

// ValidateContainer rejects file extensions outside the supported set.
func ValidateContainer(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return fmt.Errorf("%w: %s", ErrUnsupportedContainer, ext)
	}
	return nil
}

// Duration probes the container for its playable duration.
func (a *FFmpegAsset) Duration(ctx context.Context, path string) (time.Duration, error) {
	info, err := a.probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, fmt.Errorf("invalid duration %v for %s", info.Duration, path)
	}
	return info.Duration, nil
}

// DecodeFrame extracts one frame at ts, bounded to maxSize on the long axis.
func (a *FFmpegAsset) DecodeFrame(ctx context.Context, path string, ts time.Duration, maxSize int) (image.Image, error) {
	buf := &bytes.Buffer{}

	cmd := ffmpeg.Input(path, ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", ts.Seconds())}).
		Output("pipe:", ffmpeg.KwArgs{
			"vframes": 1,
			"format":  "image2",
			"vcodec":  "mjpeg",
			"q:v":     2,
			"vf":      fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", maxSize, maxSize),
		}).
		WithOutput(buf).
		Silent(true).
		Compile()

	if err := runWithContext(ctx, cmd); err != nil {
		return nil, fmt.Errorf("%w: at %v: %v", ErrDecodeFailure, ts, err)
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: empty output at %v", ErrDecodeFailure, ts)
	}

	img, _, err := image.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable frame at %v: %v", ErrDecodeFailure, ts, err)
	}

	a.logger.Debug().
		Str("video", path).
		Dur("timestamp", ts).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("frame decoded")

	return img, nil
}

// NativeDisplaySize returns rotation-corrected track dimensions.
func (a *FFmpegAsset) NativeDisplaySize(ctx context.Context, path string) (int, int, bool) {
	info, err := a.probe(ctx, path)
	if err != nil || info.Width <= 0 || info.Height <= 0 {
		return 0, 0, false
	}

	w, h := info.Width, info.Height
	switch normalizeRotation(info.Rotation) {
	case 90, 270:
		w, h = h, w
	}
	return w, h, true
}

// runWithContext supervises a compiled ffmpeg command under ctx.
func runWithContext(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
