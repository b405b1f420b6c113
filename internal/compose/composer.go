package compose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/jgard/framesheet/internal/extract"
	"github.com/jgard/framesheet/internal/video"
	"github.com/jgard/framesheet/pkg/util"
)

// Fixed chrome geometry.
const (
	borderWidth   = 2
	cellPadding   = 4
	titleHeight   = 48
	bottomPadding = 12
)

// Composer lays selected frames out into a single contact-sheet image.
type Composer struct {
	logger      zerolog.Logger
	asset       video.Asset
	jpegQuality int
}

// NewComposer creates a grid composer. asset is only consulted in
// AspectSource mode and may be nil otherwise.
func NewComposer(logger zerolog.Logger, asset video.Asset, jpegQuality int) *Composer {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 90
	}
	return &Composer{
		logger:      logger.With().Str("component", "composer").Logger(),
		asset:       asset,
		jpegQuality: jpegQuality,
	}
}

// Compose renders frames into a grid image and writes it as a JPEG,
// returning the resolved output path.
func (c *Composer) Compose(ctx context.Context, frames []extract.Frame, sourcePath string, duration time.Duration, cfg GridConfig, outputDir string) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames to compose")
	}

	cellW, cellH := c.cellSize(ctx, sourcePath, frames, cfg)

	gridW := cfg.Cols*cellW + (cfg.Cols-1)*cellPadding + 2*borderWidth
	gridH := cfg.Rows*cellH + (cfg.Rows-1)*cellPadding + 2*borderWidth
	canvas := image.NewRGBA(image.Rect(0, 0, gridW, titleHeight+gridH+bottomPadding))

	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(cfg.Theme.background()), image.Point{}, draw.Src)

	c.drawTitle(canvas, sourcePath, duration, cfg)

	for i, frame := range frames {
		row := i / cfg.Cols
		col := i % cfg.Cols
		x := borderWidth + col*(cellW+cellPadding)
		y := titleHeight + borderWidth + row*(cellH+cellPadding)
		cell := image.Rect(x, y, x+cellW, y+cellH)

		c.drawFrame(canvas, cell, frame.Image, cfg)

		if cfg.ShowTimestamps {
			c.drawTimestamp(canvas, cell, frame.Timestamp, cfg.Theme)
		}
	}

	outPath, err := resolveOutputPath(sourcePath, outputDir, cfg.Rows, cfg.Cols)
	if err != nil {
		return "", err
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, canvas, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return "", fmt.Errorf("composition failed: %w", err)
	}
	if buf.Len() == 0 {
		return "", fmt.Errorf("composition produced no image data")
	}

	if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing contact sheet: %w", err)
	}

	c.logger.Info().
		Str("output", outPath).
		Int("frames", len(frames)).
		Int("width", gridW).
		Msg("contact sheet written")

	return outPath, nil
}

// cellSize derives thumbnail dimensions from the target width and the
// configured aspect mode. Source mode prefers the adapter's native display
// size, then the first frame's raster, then 16:9.
func (c *Composer) cellSize(ctx context.Context, sourcePath string, frames []extract.Frame, cfg GridConfig) (int, int) {
	cellW := (cfg.TargetWidth - 2*borderWidth - (cfg.Cols-1)*cellPadding) / cfg.Cols
	if cellW < 1 {
		cellW = 1
	}

	aspect := 16.0 / 9.0
	if cfg.AspectMode == AspectSource {
		if w, h, ok := c.nativeAspect(ctx, sourcePath); ok {
			aspect = float64(w) / float64(h)
		} else if b := frames[0].Image.Bounds(); b.Dy() > 0 {
			aspect = float64(b.Dx()) / float64(b.Dy())
		}
	}

	cellH := int(float64(cellW) / aspect)
	if cellH < 1 {
		cellH = 1
	}
	return cellW, cellH
}

func (c *Composer) nativeAspect(ctx context.Context, sourcePath string) (int, int, bool) {
	if c.asset == nil {
		return 0, 0, false
	}
	w, h, ok := c.asset.NativeDisplaySize(ctx, sourcePath)
	if !ok || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// drawFrame renders one thumbnail into its cell, cropping (fill) or
// letterboxing (fit/source) per the aspect mode.
func (c *Composer) drawFrame(canvas *image.RGBA, cell image.Rectangle, img image.Image, cfg GridConfig) {
	src := img.Bounds()
	if src.Dx() == 0 || src.Dy() == 0 {
		return
	}

	cellAspect := float64(cell.Dx()) / float64(cell.Dy())
	srcAspect := float64(src.Dx()) / float64(src.Dy())

	if cfg.AspectMode == AspectFill {
		// Crop the source to the cell's aspect, centered.
		crop := src
		if srcAspect > cellAspect {
			w := int(float64(src.Dy()) * cellAspect)
			crop.Min.X = src.Min.X + (src.Dx()-w)/2
			crop.Max.X = crop.Min.X + w
		} else {
			h := int(float64(src.Dx()) / cellAspect)
			crop.Min.Y = src.Min.Y + (src.Dy()-h)/2
			crop.Max.Y = crop.Min.Y + h
		}
		draw.CatmullRom.Scale(canvas, cell, img, crop, draw.Src, nil)
		return
	}

	// Contain: scale to fit inside the cell, centered, background showing on
	// the short axis.
	dst := cell
	if srcAspect > cellAspect {
		h := int(float64(cell.Dx()) / srcAspect)
		dst.Min.Y = cell.Min.Y + (cell.Dy()-h)/2
		dst.Max.Y = dst.Min.Y + h
	} else {
		w := int(float64(cell.Dy()) * srcAspect)
		dst.Min.X = cell.Min.X + (cell.Dx()-w)/2
		dst.Max.X = dst.Min.X + w
	}
	draw.CatmullRom.Scale(canvas, dst, img, src, draw.Src, nil)
}

// drawTitle renders the filename, grid dimensions and duration strip.
func (c *Composer) drawTitle(canvas *image.RGBA, sourcePath string, duration time.Duration, cfg GridConfig) {
	title := filepath.Base(sourcePath)
	detail := fmt.Sprintf("%dx%d grid | %s", cfg.Rows, cfg.Cols, util.FormatDuration(duration))

	c.drawText(canvas, borderWidth+4, 18, title, cfg.Theme)
	c.drawText(canvas, borderWidth+4, 36, detail, cfg.Theme)
}

// drawTimestamp renders the frame's timestamp in the cell's lower-left
// corner with a drop shadow for legibility.
func (c *Composer) drawTimestamp(canvas *image.RGBA, cell image.Rectangle, ts time.Duration, theme Theme) {
	label := util.FormatTimestamp(ts)
	x := cell.Min.X + 4
	y := cell.Max.Y - 6

	c.drawString(canvas, x+1, y+1, label, theme.shadow())
	c.drawString(canvas, x, y, label, theme.text())
}

func (c *Composer) drawText(canvas *image.RGBA, x, y int, s string, theme Theme) {
	c.drawString(canvas, x+1, y+1, s, theme.shadow())
	c.drawString(canvas, x, y, s, theme.text())
}

func (c *Composer) drawString(canvas *image.RGBA, x, y int, s string, col color.Color) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
