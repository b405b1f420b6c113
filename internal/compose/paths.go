package compose

import (
	"fmt"
	"path/filepath"

	"github.com/jgard/framesheet/pkg/util"
)

// resolveOutputPath picks the output file location. Directory preference:
// explicit folder, then the source video's directory if writable, then the
// user's Downloads directory. The filename encodes the grid shape and gets a
// numeric suffix on collision. Single-process race tolerance only.
func resolveOutputPath(sourcePath, outputDir string, rows, cols int) (string, error) {
	dir := outputDir
	if dir == "" {
		sourceDir := filepath.Dir(sourcePath)
		if util.IsDirWritable(sourceDir) {
			dir = sourceDir
		} else {
			dir = util.DownloadsDir()
		}
	}

	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("output directory unavailable: %w", err)
	}

	base := util.BaseName(sourcePath)
	name := fmt.Sprintf("%s_%dx%d.jpg", base, rows, cols)

	candidate := filepath.Join(dir, name)
	for suffix := 1; util.FileExists(candidate); suffix++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%dx%d_%d.jpg", base, rows, cols, suffix))
	}
	return candidate, nil
}
