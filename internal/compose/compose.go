package compose

import (
	"fmt"
	"image/color"
)

// AspectMode controls how each frame fills its grid cell.
type AspectMode int

const (
	// AspectFill crops the frame to cover the cell with no letterboxing.
	AspectFill AspectMode = iota
	// AspectFit scales the frame to fit a 16:9 cell, letterboxed.
	AspectFit
	// AspectSource sizes cells to the source video's true display aspect.
	AspectSource
)

// Theme selects the background and text palette.
type Theme int

const (
	ThemeBlack Theme = iota
	ThemeWhite
)

// GridConfig is the immutable per-job layout description.
type GridConfig struct {
	Rows           int
	Cols           int
	TargetWidth    int
	AspectMode     AspectMode
	Theme          Theme
	ShowTimestamps bool
}

// ParseAspectMode maps a config string to an AspectMode.
func ParseAspectMode(s string) (AspectMode, error) {
	switch s {
	case "fill":
		return AspectFill, nil
	case "fit":
		return AspectFit, nil
	case "source":
		return AspectSource, nil
	}
	return AspectFill, fmt.Errorf("unknown aspect mode %q", s)
}

// ParseTheme maps a config string to a Theme.
func ParseTheme(s string) (Theme, error) {
	switch s {
	case "black":
		return ThemeBlack, nil
	case "white":
		return ThemeWhite, nil
	}
	return ThemeBlack, fmt.Errorf("unknown theme %q", s)
}

// background returns the canvas fill color for the theme.
func (t Theme) background() color.Color {
	if t == ThemeWhite {
		return color.White
	}
	return color.Black
}

// text returns the primary text color for the theme.
func (t Theme) text() color.Color {
	if t == ThemeWhite {
		return color.Black
	}
	return color.White
}

// shadow returns the drop-shadow color for the theme.
func (t Theme) shadow() color.Color {
	if t == ThemeWhite {
		return color.White
	}
	return color.Black
}
