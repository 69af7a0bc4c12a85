// Package imagesink writes finished renders to their destination.
package imagesink

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"google.golang.org/api/option"
)

type Sink interface {
	Write(ctx context.Context, img image.Image) error
}

// FileSink writes a PNG to a local path.
type FileSink struct {
	Path string
}

func (s *FileSink) Write(ctx context.Context, img image.Image) error {
	dir, base := filepath.Split(s.Path)
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("while creating temporary output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("while encoding PNG: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("while closing temporary output file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("while moving output into place: %w", err)
	}
	return nil
}

// ObjectWriterFunc opens a writer for one object.  GCSSink uses it so tests
// can capture uploads.
type ObjectWriterFunc func(ctx context.Context, bucket, object string) io.WriteCloser

// GCSSink uploads a PNG to a Cloud Storage object.
type GCSSink struct {
	Bucket string
	Object string

	NewWriter ObjectWriterFunc
}

// NewGCSSink builds a sink backed by a real storage client.  An empty
// credentialsFile uses application default credentials.
func NewGCSSink(ctx context.Context, bucket, object, credentialsFile string) (*GCSSink, *storage.Client, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("while creating storage client: %w", err)
	}

	sink := &GCSSink{
		Bucket: bucket,
		Object: object,
		NewWriter: func(ctx context.Context, bucket, object string) io.WriteCloser {
			w := client.Bucket(bucket).Object(object).NewWriter(ctx)
			w.ContentType = "image/png"
			return w
		},
	}
	return sink, client, nil
}

func (s *GCSSink) Write(ctx context.Context, img image.Image) error {
	ctx, span := otel.Tracer("row-major/skylight/imagesink").Start(ctx, "GCSSink.Write")
	defer span.End()

	w := s.NewWriter(ctx, s.Bucket, s.Object)
	if err := png.Encode(w, img); err != nil {
		w.Close()
		return fmt.Errorf("while encoding PNG to gs://%s/%s: %w", s.Bucket, s.Object, err)
	}

	// The upload is only committed by Close.
	if err := w.Close(); err != nil {
		return fmt.Errorf("while finishing upload to gs://%s/%s: %w", s.Bucket, s.Object, err)
	}
	return nil
}

// ParseGCSURL splits gs://bucket/object into its parts.
func ParseGCSURL(url string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(url, "gs://")
	if rest == url {
		return "", "", fmt.Errorf("%q does not start with gs://", url)
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%q must name both a bucket and an object", url)
	}
	return parts[0], parts[1], nil
}
