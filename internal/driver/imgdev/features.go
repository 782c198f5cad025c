package imgdev

import (
	"math"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/fpimg"
)

// darkLevel is the standardized gray value below which a pixel counts as saturated
const darkLevel = 32

// Quality holds the measurements the retry decision is based on
type Quality struct {
	Coverage   float64
	Saturation float64
	Contrast   float64
	Height     int
}

// blockRange returns the pixel span of block i out of n over length
func blockRange(i, n, length int) (int, int) {
	return i * length / n, (i + 1) * length / n
}

// Measure computes scan quality. raw is the frame as captured, std its
// standardized copy.
func (c Config) Measure(raw, std *fpimg.Image) Quality {
	q := Quality{Height: raw.Height()}

	q.Contrast = stddev(raw.Data())

	data := std.Data()
	dark := 0
	for _, v := range data {
		if v < darkLevel {
			dark++
		}
	}
	if len(data) > 0 {
		q.Saturation = float64(dark) / float64(len(data))
	}

	q.Coverage = coverage(std, c.Grid, c.RidgeStdDev)
	return q
}

// coverage is the fraction of blocks whose deviation exceeds floor
func coverage(std *fpimg.Image, grid int, floor float64) float64 {
	w, h := std.Width(), std.Height()
	if w < grid || h < grid {
		return 0
	}

	ridged := 0
	block := make([]byte, 0, (w/grid+1)*(h/grid+1))
	for by := 0; by < grid; by++ {
		y0, y1 := blockRange(by, grid, h)
		for bx := 0; bx < grid; bx++ {
			x0, x1 := blockRange(bx, grid, w)
			block = block[:0]
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					block = append(block, std.Pixel(x, y))
				}
			}
			if stddev(block) > floor {
				ridged++
			}
		}
	}
	return float64(ridged) / float64(grid*grid)
}

// Judge turns measurements into a retry signal
func (c Config) Judge(q Quality, swipe bool) devicetypes.QualityResult {
	switch {
	case swipe && q.Height < c.MinSwipeHeight:
		return devicetypes.QualityRetryTooShort
	case q.Saturation > c.MaxSaturation:
		return devicetypes.QualityRetryRemoveFinger
	case q.Coverage < c.MinCoverage:
		return devicetypes.QualityRetryCenterFinger
	case q.Contrast < c.MinContrast:
		return devicetypes.QualityRetryGeneral
	default:
		return devicetypes.QualityOK
	}
}

// OrientationField returns, per block, the ridge orientation doubled-angle
// vector weighted by its coherence: (Gxx, Gxy) / sum(gx^2 + gy^2) with
// Gxx = sum(gx^2 - gy^2) and Gxy = sum(2 gx gy). Blocks without gradient
// energy are zero.
func OrientationField(img *fpimg.Image, grid int) []float32 {
	w, h := img.Width(), img.Height()
	field := make([]float32, 2*grid*grid)

	for by := 0; by < grid; by++ {
		y0, y1 := blockRange(by, grid, h)
		for bx := 0; bx < grid; bx++ {
			x0, x1 := blockRange(bx, grid, w)

			var gxx, gxy, energy float64
			for y := max(y0, 1); y < min(y1, h-1); y++ {
				for x := max(x0, 1); x < min(x1, w-1); x++ {
					gx := float64(img.Pixel(x+1, y)) - float64(img.Pixel(x-1, y))
					gy := float64(img.Pixel(x, y+1)) - float64(img.Pixel(x, y-1))
					gxx += gx*gx - gy*gy
					gxy += 2 * gx * gy
					energy += gx*gx + gy*gy
				}
			}

			if energy > 0 {
				i := 2 * (by*grid + bx)
				field[i] = float32(gxx / energy)
				field[i+1] = float32(gxy / energy)
			}
		}
	}
	return field
}

// Similarity is the cosine similarity of two orientation fields. Fields of
// different length or without energy score zero.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

func stddev(values []byte) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum, sq float64
	for _, v := range values {
		f := float64(v)
		sum += f
		sq += f * f
	}
	n := float64(len(values))
	mean := sum / n
	return math.Sqrt(max(sq/n-mean*mean, 0))
}
