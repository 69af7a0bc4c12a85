package camera

import (
	"fmt"
	"math"
	"math/rand"

	"row-major/skylight/ray"
	"row-major/skylight/vmath/vec3"

	"golang.org/x/xerrors"
)

const (
	FocalLength    = 1.0
	ViewportHeight = 2.0

	// MaxImageDimension bounds both the image width and the derived height.
	MaxImageDimension = 1 << 16
)

// ConfigError reports an unusable camera configuration.
type ConfigError struct {
	Field   string
	Message string

	frame xerrors.Frame
}

func newConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		frame:   xerrors.Caller(1),
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("bad camera config: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Format(f fmt.State, c rune) { // implements fmt.Formatter
	xerrors.FormatError(e, f, c)
}

func (e *ConfigError) FormatError(p xerrors.Printer) error { // implements xerrors.Formatter
	p.Print(e.Error())
	if p.Detail() {
		e.frame.Format(p)
	}
	return nil
}

// Camera is a pinhole camera at Center looking down -Z.
//
// Set the exported configuration fields, then call Initialize before
// generating rays.
type Camera struct {
	AspectRatio     float64
	ImageWidth      int
	Center          vec3.Point
	SamplesPerPixel int
	MaxDepth        int

	imageHeight   int
	viewportWidth float64

	// Edges of the viewport, left to right and top to bottom.
	viewportU vec3.T
	viewportV vec3.T

	pixelDeltaU vec3.T
	pixelDeltaV vec3.T

	viewportUpperLeft vec3.Point
	pixel00           vec3.Point

	initialized bool
}

// Initialize validates the configuration and computes the viewport geometry.
func (c *Camera) Initialize() error {
	if !(c.AspectRatio > 0) || math.IsInf(c.AspectRatio, 0) {
		return newConfigError("AspectRatio", "must be positive and finite, got %v", c.AspectRatio)
	}
	if c.ImageWidth <= 0 || c.ImageWidth > MaxImageDimension {
		return newConfigError("ImageWidth", "must be in [1, %d], got %d", MaxImageDimension, c.ImageWidth)
	}
	if c.SamplesPerPixel <= 0 {
		return newConfigError("SamplesPerPixel", "must be positive, got %d", c.SamplesPerPixel)
	}
	if c.MaxDepth <= 0 {
		return newConfigError("MaxDepth", "must be positive, got %d", c.MaxDepth)
	}

	height := math.Round(float64(c.ImageWidth) / c.AspectRatio)
	if !(height <= MaxImageDimension) {
		return newConfigError("AspectRatio", "%v gives image height %v, above the limit of %d", c.AspectRatio, height, MaxImageDimension)
	}
	c.imageHeight = int(height)
	if c.imageHeight < 1 {
		c.imageHeight = 1
	}

	c.viewportWidth = ViewportHeight * float64(c.ImageWidth) / float64(c.imageHeight)

	c.viewportU = vec3.T{c.viewportWidth, 0, 0}
	c.viewportV = vec3.T{0, -ViewportHeight, 0}

	c.pixelDeltaU = vec3.DivVS(c.viewportU, float64(c.ImageWidth))
	c.pixelDeltaV = vec3.DivVS(c.viewportV, float64(c.imageHeight))

	c.viewportUpperLeft = vec3.SubVV(
		vec3.SubVV(
			vec3.SubVV(c.Center, vec3.T{0, 0, FocalLength}),
			vec3.DivVS(c.viewportU, 2)),
		vec3.DivVS(c.viewportV, 2))
	c.pixel00 = vec3.AddVV(c.viewportUpperLeft, vec3.MulVS(vec3.AddVV(c.pixelDeltaU, c.pixelDeltaV), 0.5))

	c.initialized = true
	return nil
}

func (c *Camera) Initialized() bool {
	return c.initialized
}

func (c *Camera) ImageHeight() int {
	return c.imageHeight
}

func (c *Camera) ViewportWidth() float64 {
	return c.viewportWidth
}

func (c *Camera) PixelDeltas() (u, v vec3.T) {
	return c.pixelDeltaU, c.pixelDeltaV
}

func (c *Camera) ViewportUpperLeft() vec3.Point {
	return c.viewportUpperLeft
}

// PixelCenter is the nominal center of the pixel in world space.
func (c *Camera) PixelCenter(curRow, curCol int) vec3.Point {
	return vec3.AddVV(c.pixel00, vec3.AddVV(
		vec3.MulVS(c.pixelDeltaU, float64(curCol)),
		vec3.MulVS(c.pixelDeltaV, float64(curRow))))
}

// ImageToRay returns a sample ray through the given pixel, jittered uniformly
// within the pixel's footprint.
func (c *Camera) ImageToRay(curRow, curCol int, rng *rand.Rand) ray.Ray {
	offsetU := rng.Float64() - 0.5
	offsetV := rng.Float64() - 0.5

	sample := vec3.AddVV(c.PixelCenter(curRow, curCol), vec3.AddVV(
		vec3.MulVS(c.pixelDeltaU, offsetU),
		vec3.MulVS(c.pixelDeltaV, offsetV)))

	return ray.Ray{
		Point: c.Center,
		Slope: vec3.SubVV(sample, c.Center),
	}
}
