package sampleimage

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"row-major/skylight/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestAveragedByte(t *testing.T) {
	testCases := []struct {
		in   float64
		want uint8
	}{
		{-1, 0},
		{0, 0},
		{0.5, 128},
		{0.9999, 255},
		{1.0, 255},
		{42, 255},
		{math.NaN(), 0},
		{math.Inf(1), 255},
		{math.Inf(-1), 0},
	}

	for _, tc := range testCases {
		if got := AveragedByte(tc.in); got != tc.want {
			t.Errorf("AveragedByte(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRawByte(t *testing.T) {
	testCases := []struct {
		in   float64
		want uint8
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 127},
		{1.0, 255},
		{3.0, 255},
		{math.NaN(), 0},
	}

	for _, tc := range testCases {
		if got := RawByte(tc.in); got != tc.want {
			t.Errorf("RawByte(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestToneMapsAreMonotonic(t *testing.T) {
	for name, f := range map[string]func(float64) uint8{"averaged": AveragedByte, "raw": RawByte} {
		prev := f(-0.1)
		for x := -0.1; x <= 1.1; x += 1e-4 {
			cur := f(x)
			if cur < prev {
				t.Fatalf("%s tone map decreased at %v: %d -> %d", name, x, prev, cur)
			}
			prev = cur
		}
	}
}

func TestRecordAndMean(t *testing.T) {
	im := New(2, 3)
	im.RecordSample(1, 2, vec3.Color{1, 0, 0.5})
	im.RecordSample(1, 2, vec3.Color{0, 1, 0.5})

	samp := im.ReadSample(1, 2)
	if samp.Count != 2 {
		t.Errorf("Bad count; got %d, want 2", samp.Count)
	}
	if diff := cmp.Diff(samp.Mean(), vec3.Color{0.5, 0.5, 0.5}); diff != "" {
		t.Errorf("Bad mean; diff (-got +want)\n%s", diff)
	}

	if diff := cmp.Diff(im.ReadSample(0, 0).Mean(), vec3.Color{}); diff != "" {
		t.Errorf("Empty pixel should be black; diff (-got +want)\n%s", diff)
	}
}

func TestToRGBA(t *testing.T) {
	im := New(1, 3)
	im.RecordSample(0, 0, vec3.Color{0.5, 0.25, 1.5})
	im.RecordSample(0, 1, vec3.Color{math.NaN(), 0.5, 0})
	im.RecordSample(0, 2, vec3.Color{1, 1, 1})
	im.RecordSample(0, 2, vec3.Color{0, 0, 0})

	img, nans := im.ToRGBA(ModeAveraged)
	if nans != 1 {
		t.Errorf("Bad NaN pixel count; got %d, want 1", nans)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 1 {
		t.Fatalf("Bad bounds %v", img.Bounds())
	}

	want := []color.RGBA{
		{128, 64, 255, 255},
		{0, 128, 0, 255},
		{128, 128, 128, 255},
	}
	for c, w := range want {
		if diff := cmp.Diff(img.RGBAAt(c, 0), w); diff != "" {
			t.Errorf("Bad pixel %d; diff (-got +want)\n%s", c, diff)
		}
	}

	raw, _ := im.ToRGBA(ModeRaw)
	if diff := cmp.Diff(raw.RGBAAt(0, 0), color.RGBA{127, 63, 255, 255}); diff != "" {
		t.Errorf("Bad raw pixel; diff (-got +want)\n%s", diff)
	}
}

func TestPasteRow(t *testing.T) {
	im := New(2, 2)
	if err := im.PasteRow(1, []float64{1, 2, 3, 4, 5, 6}, []uint32{7, 8}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(im.ReadSample(1, 1), Sample{Sum: vec3.Color{4, 5, 6}, Count: 8}); diff != "" {
		t.Errorf("Bad pasted sample; diff (-got +want)\n%s", diff)
	}

	if err := im.PasteRow(0, []float64{1}, []uint32{1}); err == nil {
		t.Errorf("Expected an error pasting a short row")
	}
}

func TestFileRoundTrip(t *testing.T) {
	im := New(3, 4)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			for i := 0; i <= r+c; i++ {
				im.RecordSample(r, c, vec3.Color{float64(r), float64(c), 0.125})
			}
		}
	}

	buf := &bytes.Buffer{}
	if err := WriteSampleImage(im, buf); err != nil {
		t.Fatalf("Unexpected error writing: %v", err)
	}

	got, err := ReadSampleImage(buf)
	if err != nil {
		t.Fatalf("Unexpected error reading: %v", err)
	}
	if diff := cmp.Diff(got, im); diff != "" {
		t.Errorf("Round trip changed image; diff (-got +want)\n%s", diff)
	}
}

func TestFileRoundTripOnDisk(t *testing.T) {
	im := New(1, 1)
	im.RecordSample(0, 0, vec3.Color{0.1, 0.2, 0.3})

	name := filepath.Join(t.TempDir(), "render.samples")
	if err := WriteSampleImageToFile(im, name); err != nil {
		t.Fatalf("Unexpected error writing: %v", err)
	}
	got, err := ReadSampleImageFromFile(name)
	if err != nil {
		t.Fatalf("Unexpected error reading: %v", err)
	}
	if diff := cmp.Diff(got, im); diff != "" {
		t.Errorf("Round trip changed image; diff (-got +want)\n%s", diff)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := ReadSampleImage(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Errorf("Expected an error for a truncated file")
	}
}

func TestFileRecordsMode(t *testing.T) {
	im := New(2, 2)
	im.Mode = ModeRaw
	im.RecordSample(1, 1, vec3.Color{0.5, 0.5, 0.5})

	buf := &bytes.Buffer{}
	if err := WriteSampleImage(im, buf); err != nil {
		t.Fatalf("Unexpected error writing: %v", err)
	}
	got, err := ReadSampleImage(buf)
	if err != nil {
		t.Fatalf("Unexpected error reading: %v", err)
	}
	if got.Mode != ModeRaw {
		t.Errorf("Mode = %v, want %v", got.Mode, ModeRaw)
	}
}

// headerOnly encodes just the length prefix and header of a sample file.
func headerOnly(t *testing.T, fields map[string]interface{}) []byte {
	t.Helper()
	hdr, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	hdrBytes, err := proto.Marshal(hdr)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(len(hdrBytes)))
	return append(out, hdrBytes...)
}

func TestReadRejectsBadHeaders(t *testing.T) {
	hugeLength := make([]byte, 8)
	binary.LittleEndian.PutUint64(hugeLength, math.MaxUint64)

	testCases := []struct {
		desc string
		in   []byte
	}{
		{
			desc: "huge header length",
			in:   hugeLength,
		},
		{
			desc: "huge row count",
			in: headerOnly(t, map[string]interface{}{
				fieldRowSize: 1e18, fieldColSize: 4, fieldDataLayoutVersion: dataLayoutVersion, fieldMode: "averaged",
			}),
		},
		{
			desc: "huge column count",
			in: headerOnly(t, map[string]interface{}{
				fieldRowSize: 4, fieldColSize: MaxDimension + 1, fieldDataLayoutVersion: dataLayoutVersion, fieldMode: "averaged",
			}),
		},
		{
			desc: "missing mode",
			in: headerOnly(t, map[string]interface{}{
				fieldRowSize: 4, fieldColSize: 4, fieldDataLayoutVersion: dataLayoutVersion,
			}),
		},
		{
			desc: "old layout version",
			in: headerOnly(t, map[string]interface{}{
				fieldRowSize: 4, fieldColSize: 4, fieldDataLayoutVersion: 1, fieldMode: "averaged",
			}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if _, err := ReadSampleImage(bytes.NewReader(tc.in)); err == nil {
				t.Errorf("Expected an error")
			}
		})
	}
}

func TestMaxSamplesPerPixel(t *testing.T) {
	im := New(2, 3)
	if got := im.MaxSamplesPerPixel(); got != 0 {
		t.Errorf("Empty image max = %d, want 0", got)
	}
	im.RecordSample(0, 1, vec3.Color{})
	im.RecordSample(1, 2, vec3.Color{})
	im.RecordSample(1, 2, vec3.Color{})
	if got := im.MaxSamplesPerPixel(); got != 2 {
		t.Errorf("Max = %d, want 2", got)
	}
}

func TestParseToneMode(t *testing.T) {
	for _, m := range []ToneMode{ModeAveraged, ModeRaw} {
		got, err := ParseToneMode(m.String())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != m {
			t.Errorf("ParseToneMode(%q) = %v, want %v", m.String(), got, m)
		}
	}
	if _, err := ParseToneMode("hdr"); err == nil {
		t.Errorf("Expected an error for an unknown mode")
	}
}
