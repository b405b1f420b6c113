package analyze

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// metricGridSize is the side of the downsampled grid statistics run on.
// Lossy by intent; the metrics are discriminators, not quality measures.
const metricGridSize = 16

// histogramBins is the number of luma bins in the optional histogram.
const histogramBins = 16

// FrameMetrics summarizes one candidate frame for distinctness scoring.
type FrameMetrics struct {
	Index         int
	Brightness    float64
	ColorVariance float64
	EdgeDensity   float64
	Histogram     [histogramBins]float64
}

// ComputeMetrics derives summary statistics from a downsampled copy of img.
// Returns ok=false for frames that cannot be rasterized; callers must exclude
// those from scoring rather than treating them as zero.
func ComputeMetrics(img image.Image, index int) (*FrameMetrics, bool) {
	if img == nil {
		return nil, false
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, false
	}

	small := resize.Resize(metricGridSize, metricGridSize, img, resize.Bilinear)
	sb := small.Bounds()

	pixels := float64(sb.Dx() * sb.Dy())
	var rSum, gSum, bSum float64
	var rSqSum, gSqSum, bSqSum float64
	var lumSum float64

	luma := make([]float64, 0, sb.Dx()*sb.Dy())
	m := &FrameMetrics{Index: index}

	for y := sb.Min.Y; y < sb.Max.Y; y++ {
		for x := sb.Min.X; x < sb.Max.X; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			rf := float64(r>>8) / 255.0
			gf := float64(g>>8) / 255.0
			bf := float64(b>>8) / 255.0

			rSum += rf
			gSum += gf
			bSum += bf
			rSqSum += rf * rf
			gSqSum += gf * gf
			bSqSum += bf * bf

			// Relative luminance
			lum := 0.299*rf + 0.587*gf + 0.114*bf
			lumSum += lum
			luma = append(luma, lum)

			bin := int(lum * histogramBins)
			if bin >= histogramBins {
				bin = histogramBins - 1
			}
			m.Histogram[bin]++
		}
	}

	m.Brightness = lumSum / pixels

	rVar := rSqSum/pixels - (rSum/pixels)*(rSum/pixels)
	gVar := gSqSum/pixels - (gSum/pixels)*(gSum/pixels)
	bVar := bSqSum/pixels - (bSum/pixels)*(bSum/pixels)
	m.ColorVariance = (rVar + gVar + bVar) / 3.0

	m.EdgeDensity = edgeDensity(luma, sb.Dx(), sb.Dy())

	for i := range m.Histogram {
		m.Histogram[i] /= pixels
	}

	return m, true
}

// edgeDensity is the mean gradient magnitude over the luma plane.
func edgeDensity(luma []float64, w, h int) float64 {
	if w < 2 || h < 2 {
		return 0
	}

	var sum float64
	var count int
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			i := y*w + x
			dx := luma[i+1] - luma[i]
			dy := luma[i+w] - luma[i]
			sum += math.Sqrt(dx*dx + dy*dy)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	// sqrt(2) is the largest possible gradient magnitude
	return math.Min(1.0, sum/float64(count)/math.Sqrt2)
}
