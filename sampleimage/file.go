package sampleimage

import (
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const dataLayoutVersion = 2

const (
	// Larger headers are taken to be corruption.
	maxHeaderLength = 1 << 16

	// MaxDimension bounds the rows and columns of a stored image.
	MaxDimension = 1 << 16
)

// Header field names.
const (
	fieldRowSize           = "row_size"
	fieldColSize           = "col_size"
	fieldDataLayoutVersion = "data_layout_version"
	fieldMode              = "mode"
)

// ReadSampleImage decodes the format written by WriteSampleImage: a
// little-endian uint64 header length, a protobuf header, then a zlib stream
// holding the color sums (float64) followed by the sample counts (uint32).
func ReadSampleImage(in io.Reader) (*SampleImage, error) {
	var headerLength uint64
	if err := binary.Read(in, binary.LittleEndian, &headerLength); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}

	if headerLength > maxHeaderLength {
		return nil, fmt.Errorf("header length %d exceeds limit of %d bytes", headerLength, maxHeaderLength)
	}

	headerBytes := make([]byte, int(headerLength))
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header bytes: %w", err)
	}

	hdr := &structpb.Struct{}
	if err := proto.Unmarshal(headerBytes, hdr); err != nil {
		return nil, fmt.Errorf("while unmarshaling header: %w", err)
	}

	fields := hdr.GetFields()
	if v := fields[fieldDataLayoutVersion].GetNumberValue(); v != dataLayoutVersion {
		return nil, fmt.Errorf("bad data layout version: %v", v)
	}

	rowSizeF := fields[fieldRowSize].GetNumberValue()
	colSizeF := fields[fieldColSize].GetNumberValue()
	if !(rowSizeF >= 1 && rowSizeF <= MaxDimension) || !(colSizeF >= 1 && colSizeF <= MaxDimension) {
		return nil, fmt.Errorf("bad image dimensions %vx%v (each must be in [1, %d])", colSizeF, rowSizeF, MaxDimension)
	}

	mode, err := ParseToneMode(fields[fieldMode].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("while reading header mode: %w", err)
	}

	im := New(int(rowSizeF), int(colSizeF))
	im.Mode = mode

	zipReader, err := zlib.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("while opening zip reader: %w", err)
	}
	defer zipReader.Close()

	if err := binary.Read(zipReader, binary.LittleEndian, im.ColorSums); err != nil {
		return nil, fmt.Errorf("while reading color sums: %w", err)
	}

	if err := binary.Read(zipReader, binary.LittleEndian, im.SampleCounts); err != nil {
		return nil, fmt.Errorf("while reading sample counts: %w", err)
	}

	return im, nil
}

func ReadSampleImageFromFile(name string) (*SampleImage, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("while opening file: %w", err)
	}
	defer f.Close()

	return ReadSampleImage(f)
}

func WriteSampleImage(im *SampleImage, w io.Writer) error {
	hdr, err := structpb.NewStruct(map[string]interface{}{
		fieldRowSize:           im.RowSize,
		fieldColSize:           im.ColSize,
		fieldDataLayoutVersion: dataLayoutVersion,
		fieldMode:              im.Mode.String(),
	})
	if err != nil {
		return fmt.Errorf("while building header: %w", err)
	}

	hdrBytes, err := proto.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}

	headerLengthBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(headerLengthBytes, uint64(len(hdrBytes)))
	if _, err := w.Write(headerLengthBytes); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}

	if _, err := w.Write(hdrBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}

	zipWriter := zlib.NewWriter(w)

	if err := binary.Write(zipWriter, binary.LittleEndian, im.ColorSums); err != nil {
		return fmt.Errorf("while writing color sums: %w", err)
	}

	if err := binary.Write(zipWriter, binary.LittleEndian, im.SampleCounts); err != nil {
		return fmt.Errorf("while writing sample counts: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("while closing zip writer: %w", err)
	}

	return nil
}

// WriteSampleImageToFile writes to a temporary file and renames it over name,
// so an interrupted write never clobbers an earlier render.
func WriteSampleImageToFile(im *SampleImage, name string) error {
	tmpName := name + ".tmp"
	out, err := os.Create(tmpName)
	if err != nil {
		return fmt.Errorf("while creating %q: %w", tmpName, err)
	}

	if err := WriteSampleImage(im, out); err != nil {
		out.Close()
		return fmt.Errorf("while writing sample image: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("while closing %q: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, name); err != nil {
		return fmt.Errorf("while renaming %q to %q: %w", tmpName, name, err)
	}

	return nil
}
