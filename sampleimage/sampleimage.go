package sampleimage

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"row-major/skylight/ray"
	"row-major/skylight/vmath/vec3"
)

// ToneMode selects how accumulated radiance becomes 8-bit color.
type ToneMode int

const (
	// ModeAveraged divides each pixel's sum by its sample count, clamps each
	// channel to [0, 0.9999] and scales by 256.
	ModeAveraged ToneMode = iota

	// ModeRaw scales the single recorded sample by 255.99, with no averaging.
	ModeRaw
)

func (m ToneMode) String() string {
	switch m {
	case ModeAveraged:
		return "averaged"
	case ModeRaw:
		return "raw"
	}
	return fmt.Sprintf("ToneMode(%d)", int(m))
}

func ParseToneMode(s string) (ToneMode, error) {
	switch s {
	case "averaged":
		return ModeAveraged, nil
	case "raw":
		return ModeRaw, nil
	}
	return 0, fmt.Errorf("unknown render mode %q (want \"averaged\" or \"raw\")", s)
}

// SampleImage accumulates color samples per pixel.  Rows are stored top to
// bottom.
type SampleImage struct {
	RowSize, ColSize int

	// Mode the samples were collected for.  Raw images hold at most one
	// sample per pixel.
	Mode ToneMode

	// Three channel sums per pixel.
	ColorSums    []float64
	SampleCounts []uint32
}

type Sample struct {
	Sum   vec3.Color
	Count uint32
}

func New(rowSize, colSize int) *SampleImage {
	s := &SampleImage{}
	s.Resize(rowSize, colSize)
	return s
}

func (s *SampleImage) Resize(rowSize, colSize int) {
	s.RowSize = rowSize
	s.ColSize = colSize

	s.ColorSums = make([]float64, rowSize*colSize*3)
	s.SampleCounts = make([]uint32, rowSize*colSize)
}

// RecordSample adds one sample to a pixel.  Concurrent calls are safe as long
// as they touch different pixels.
func (s *SampleImage) RecordSample(r, c int, sample vec3.Color) {
	idx := r*s.ColSize + c
	s.ColorSums[3*idx+0] += sample[0]
	s.ColorSums[3*idx+1] += sample[1]
	s.ColorSums[3*idx+2] += sample[2]
	s.SampleCounts[idx]++
}

func (s *SampleImage) ReadSample(r, c int) Sample {
	idx := r*s.ColSize + c
	return Sample{
		Sum:   vec3.Color{s.ColorSums[3*idx+0], s.ColorSums[3*idx+1], s.ColorSums[3*idx+2]},
		Count: s.SampleCounts[idx],
	}
}

// Row returns views of one row's sums and counts.  Writing through them
// modifies the image.
func (s *SampleImage) Row(r int) ([]float64, []uint32) {
	lo := r * s.ColSize
	hi := lo + s.ColSize
	return s.ColorSums[3*lo : 3*hi], s.SampleCounts[lo:hi]
}

// PasteRow overwrites row r.
func (s *SampleImage) PasteRow(r int, sums []float64, counts []uint32) error {
	if len(sums) != 3*s.ColSize || len(counts) != s.ColSize {
		return fmt.Errorf("row has wrong size; got %d sums and %d counts, want %d and %d", len(sums), len(counts), 3*s.ColSize, s.ColSize)
	}
	dstSums, dstCounts := s.Row(r)
	copy(dstSums, sums)
	copy(dstCounts, counts)
	return nil
}

// Mean returns the average of a pixel's samples, or black if it has none.
func (s Sample) Mean() vec3.Color {
	if s.Count == 0 {
		return vec3.Color{}
	}
	return vec3.DivVS(s.Sum, float64(s.Count))
}

var toneSpan = ray.Span{Lo: 0.0, Hi: 0.9999}

// AveragedByte maps a linear channel value to a byte by clamping to
// [0, 0.9999] and scaling by 256.  NaN maps to 0.
func AveragedByte(x float64) uint8 {
	if math.IsNaN(x) {
		return 0
	}
	return uint8(256 * toneSpan.Clamp(x))
}

// RawByte scales by 255.99, saturating at the ends of the byte range.  NaN
// maps to 0.
func RawByte(x float64) uint8 {
	if math.IsNaN(x) {
		return 0
	}
	v := 255.99 * x
	if v < 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func hasNaN(c vec3.Color) bool {
	return math.IsNaN(c[0]) || math.IsNaN(c[1]) || math.IsNaN(c[2])
}

// MaxSamplesPerPixel returns the largest sample count of any pixel.
func (s *SampleImage) MaxSamplesPerPixel() uint32 {
	max := uint32(0)
	for _, c := range s.SampleCounts {
		if c > max {
			max = c
		}
	}
	return max
}

// ToRGBA tone maps the image.  It also reports how many pixels had a NaN
// channel; those channels are written as 0.
func (s *SampleImage) ToRGBA(mode ToneMode) (*image.RGBA, int) {
	img := image.NewRGBA(image.Rect(0, 0, s.ColSize, s.RowSize))

	nanPixels := 0
	for r := 0; r < s.RowSize; r++ {
		for c := 0; c < s.ColSize; c++ {
			samp := s.ReadSample(r, c)

			var px color.RGBA
			switch mode {
			case ModeRaw:
				if hasNaN(samp.Sum) {
					nanPixels++
				}
				px = color.RGBA{RawByte(samp.Sum[0]), RawByte(samp.Sum[1]), RawByte(samp.Sum[2]), 255}
			default:
				mean := samp.Mean()
				if hasNaN(mean) {
					nanPixels++
				}
				px = color.RGBA{AveragedByte(mean[0]), AveragedByte(mean[1]), AveragedByte(mean[2]), 255}
			}
			img.SetRGBA(c, r, px)
		}
	}

	return img, nanPixels
}
