package video

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgard/framesheet/internal/logging"
)

func TestValidateContainer(t *testing.T) {
	assert.NoError(t, ValidateContainer("/videos/movie.mp4"))
	assert.NoError(t, ValidateContainer("/videos/clip.M4V"))
	assert.NoError(t, ValidateContainer("holiday.mov"))

	assert.ErrorIs(t, ValidateContainer("/videos/movie.avi"), ErrUnsupportedContainer)
	assert.ErrorIs(t, ValidateContainer("/videos/movie.mkv"), ErrUnsupportedContainer)
	assert.ErrorIs(t, ValidateContainer("noextension"), ErrUnsupportedContainer)
}

func TestNormalizeRotation(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 0},
		{90, 90},
		{-90, 270},
		{270, 270},
		{-270, 90},
		{360, 0},
		{450, 90},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeRotation(tt.in), "rotation %d", tt.in)
	}
}

// stubTool installs a fake executable named name on PATH for the test.
func stubTool(t *testing.T, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stubs require a POSIX shell")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestDurationKillsHungProbe(t *testing.T) {
	stubTool(t, "ffprobe", "sleep 5\n")

	a := &FFmpegAsset{logger: logging.Nop()}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Duration(ctx, "/videos/clip.mp4")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second, "probe must die with the context, not run to completion")
}

func TestDurationProbeParsesOutput(t *testing.T) {
	stubTool(t, "ffprobe", `echo '{"format":{"duration":"62.500000"},"streams":[{"codec_type":"video","width":1920,"height":1080}]}'`+"\n")

	a := &FFmpegAsset{logger: logging.Nop()}
	d, err := a.Duration(context.Background(), "/videos/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 62500*time.Millisecond, d)

	w, h, ok := a.NativeDisplaySize(context.Background(), "/videos/clip.mp4")
	require.True(t, ok)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}
