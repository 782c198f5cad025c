// Package fpimg holds raster images captured from fingerprint sensors.
package fpimg

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/spakin/netpbm"

	"fprint-service/pkg/devicetypes"
)

// Flags describe transformations that still have to be applied to the raw
// sensor raster before it is upright with dark ridges on a light background.
type Flags uint8

const (
	FlagVFlipped Flags = 1 << iota
	FlagHFlipped
	FlagColorsInverted
	FlagStandardized
)

var ErrInvalidDimensions = errors.New("image data does not match dimensions")

// Provenance records which device produced an image
type Provenance struct {
	Driver  string              `json:"driver"`
	DevType devicetypes.DevType `json:"devtype"`
}

// Image is a single channel 8-bit raster, row-major
type Image struct {
	width  int
	height int
	data   []byte
	flags  Flags

	Source Provenance
}

// New wraps data as a width x height raster. data is copied.
func New(width, height int, data []byte, flags Flags) (*Image, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidDimensions, width, height, len(data))
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	return &Image{
		width:  width,
		height: height,
		data:   buf,
		flags:  flags,
	}, nil
}

// FromImage converts any decoded image to gray
func FromImage(src image.Image) (*Image, error) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrInvalidDimensions, bounds)
	}

	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			data[y*w+x] = c.Y
		}
	}

	return &Image{width: w, height: h, data: data}, nil
}

func (i *Image) Width() int   { return i.width }
func (i *Image) Height() int  { return i.height }
func (i *Image) Flags() Flags { return i.flags }

// Data returns a copy of the raw pixels
func (i *Image) Data() []byte {
	buf := make([]byte, len(i.data))
	copy(buf, i.data)
	return buf
}

// Pixel returns the gray value at (x, y)
func (i *Image) Pixel(x, y int) byte {
	return i.data[y*i.width+x]
}

// Clone returns a deep copy
func (i *Image) Clone() *Image {
	c := *i
	c.data = i.Data()
	return &c
}

// Gray exposes the raster as a standard library image
func (i *Image) Gray() *image.Gray {
	return &image.Gray{
		Pix:    i.Data(),
		Stride: i.width,
		Rect:   image.Rect(0, 0, i.width, i.height),
	}
}

// Standardize applies pending flips and colour inversion, then stretches the
// contrast to the full 0..255 range. It never changes the dimensions and
// running it twice gives the same pixels as running it once.
func (i *Image) Standardize() {
	if i.flags&FlagVFlipped != 0 {
		i.vflip()
	}
	if i.flags&FlagHFlipped != 0 {
		i.hflip()
	}
	if i.flags&FlagColorsInverted != 0 {
		for k, v := range i.data {
			i.data[k] = 255 - v
		}
	}
	i.flags = FlagStandardized

	i.stretch()
}

func (i *Image) vflip() {
	row := make([]byte, i.width)
	for y := 0; y < i.height/2; y++ {
		top := i.data[y*i.width : (y+1)*i.width]
		bottom := i.data[(i.height-1-y)*i.width : (i.height-y)*i.width]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}

func (i *Image) hflip() {
	for y := 0; y < i.height; y++ {
		row := i.data[y*i.width : (y+1)*i.width]
		for l, r := 0, len(row)-1; l < r; l, r = l+1, r-1 {
			row[l], row[r] = row[r], row[l]
		}
	}
}

// stretch maps min to 0 and max to 255. Once applied min is 0 and max is
// 255, so a second pass is the identity.
func (i *Image) stretch() {
	lo, hi := byte(255), byte(0)
	for _, v := range i.data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	span := int(hi) - int(lo)
	if span == 0 || (lo == 0 && hi == 255) {
		return
	}

	for k, v := range i.data {
		i.data[k] = byte((int(v) - int(lo)) * 255 / span)
	}
}

// Encode writes the image as a binary PGM
func (i *Image) Encode(w io.Writer) error {
	return netpbm.Encode(w, i.Gray(), &netpbm.EncodeOptions{
		Format:   netpbm.PGM,
		MaxValue: 255,
		Comments: []string{fmt.Sprintf("driver=%s devtype=%s", i.Source.Driver, i.Source.DevType)},
	})
}

// SaveToFile writes the image to path in PGM format
func (i *Image) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := i.Encode(bw); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write image file: %w", err)
	}

	return f.Close()
}

// Decode reads a PGM, PPM, PBM, PNG or JPEG stream into a gray image
func Decode(r io.Reader) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img, err := FromImage(src)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s image: %w", format, err)
	}
	return img, nil
}

// LoadFile reads an image file from disk
func LoadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	return Decode(bufio.NewReader(f))
}
