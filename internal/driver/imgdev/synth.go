package imgdev

import (
	"image"
	"math"

	"fprint-service/pkg/fpimg"
)

// Pattern describes a synthetic ridge frame, used by the virtual sensor demo
// frames and by tests
type Pattern struct {
	Width, Height int

	// Angle of the ridge flow in degrees and ridge period in pixels
	Angle  float64
	Period float64

	// Mean and Amplitude of the ridge wave. Zero values give 128 and 127.
	Mean      float64
	Amplitude float64

	// Area limits the ridges to a rectangle. Empty means the whole frame.
	Area image.Rectangle

	// Background fills pixels outside Area
	Background byte
}

// Render draws the pattern
func (p Pattern) Render() *fpimg.Image {
	mean, amp := p.Mean, p.Amplitude
	if mean == 0 {
		mean = 128
	}
	if amp == 0 {
		amp = 127
	}
	period := p.Period
	if period <= 0 {
		period = 7
	}
	area := p.Area
	if area.Empty() {
		area = image.Rect(0, 0, p.Width, p.Height)
	}

	theta := p.Angle * math.Pi / 180
	nx, ny := math.Cos(theta), math.Sin(theta)

	data := make([]byte, p.Width*p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			if !image.Pt(x, y).In(area) {
				data[y*p.Width+x] = p.Background
				continue
			}
			// ridges run along the angle, so the wave travels across it
			phase := 2 * math.Pi * (-float64(x)*ny + float64(y)*nx) / period
			v := mean + amp*math.Sin(phase)
			data[y*p.Width+x] = byte(math.Round(math.Max(0, math.Min(255, v))))
		}
	}

	img, err := fpimg.New(p.Width, p.Height, data, 0)
	if err != nil {
		panic(err)
	}
	return img
}
