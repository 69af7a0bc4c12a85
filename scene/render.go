package scene

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"row-major/skylight/camera"
	"row-major/skylight/rendermetrics"
	"row-major/skylight/sampleimage"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// RowStore persists finished rows so an interrupted render can pick up where
// it left off.
type RowStore interface {
	// LoadRow returns ok=false if the row was never saved.
	LoadRow(ctx context.Context, row int) (sums []float64, counts []uint32, ok bool, err error)
	SaveRow(ctx context.Context, row int, sums []float64, counts []uint32) error
}

type RenderOptions struct {
	Mode sampleimage.ToneMode

	// Number of rows rendered concurrently.  Zero means one per CPU.
	Workers int

	// Base seed for the per-row generators.
	Seed int64

	// Optional.
	Checkpoint RowStore
}

// ProgressFunction receives the number of finished rows and the total.
type ProgressFunction func(int, int)

// RowSeed derives the generator seed for one row.  Mixing in the number of
// samples the row already holds keeps a resumed render from repeating the
// choices it made the first time.
func RowSeed(seed int64, row int, existingSamples uint64) int64 {
	// splitmix64 finalizer.
	z := uint64(seed) + 0x9e3779b97f4a7c15*uint64(row+1) + 0xbf58476d1ce4e5b9*existingSamples
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z = z ^ (z >> 31)
	return int64(z)
}

// TargetSamples is the number of samples each pixel should hold at the end of
// a render.  Raw mode never averages, so it only takes one.
func TargetSamples(cam *camera.Camera, mode sampleimage.ToneMode) int {
	if mode == sampleimage.ModeRaw {
		return 1
	}
	return cam.SamplesPerPixel
}

type rowWorker struct {
	scene    *Scene
	cam      *camera.Camera
	sampleDB *sampleimage.SampleImage

	maxDepth      int
	targetSamples int
	seed          int64
}

func (w *rowWorker) existingSamples(row int) uint64 {
	_, counts := w.sampleDB.Row(row)
	total := uint64(0)
	for _, c := range counts {
		total += uint64(c)
	}
	return total
}

// render fills one row up to the target sample count and returns the number of
// samples it added.
func (w *rowWorker) render(row int) int {
	rng := rand.New(rand.NewSource(RowSeed(w.seed, row, w.existingSamples(row))))

	samplesCollected := 0
	for col := 0; col < w.sampleDB.ColSize; col++ {
		samp := w.sampleDB.ReadSample(row, col)
		if int(samp.Count) >= w.targetSamples {
			continue
		}
		samplesToAdd := w.targetSamples - int(samp.Count)

		for cs := 0; cs < samplesToAdd; cs++ {
			curQuery := w.cam.ImageToRay(row, col, rng)
			w.sampleDB.RecordSample(row, col, w.scene.Radiance(curQuery, 0, w.maxDepth, rng))
			samplesCollected++
		}
	}
	return samplesCollected
}

// RenderScene tops up every pixel of sampleDB to the camera's sample count.
// sampleDB may already hold samples from an earlier, interrupted render.
func RenderScene(ctx context.Context, scene *Scene, cam *camera.Camera, options *RenderOptions, sampleDB *sampleimage.SampleImage, progressFunction ProgressFunction) error {
	tracer := otel.Tracer("row-major/skylight/scene")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "RenderScene")
	defer span.End()

	if !cam.Initialized() {
		return fmt.Errorf("camera used before Initialize")
	}
	if sampleDB.RowSize != cam.ImageHeight() || sampleDB.ColSize != cam.ImageWidth {
		return fmt.Errorf("sample image is %dx%d, but the camera renders %dx%d", sampleDB.ColSize, sampleDB.RowSize, cam.ImageWidth, cam.ImageHeight())
	}
	if options.Mode == sampleimage.ModeRaw {
		if n := sampleDB.MaxSamplesPerPixel(); n > 1 {
			return fmt.Errorf("raw mode takes one sample per pixel, but the sample image already holds up to %d", n)
		}
	}
	sampleDB.Mode = options.Mode

	workers := options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	span.SetAttributes(
		attribute.Int("rows", sampleDB.RowSize),
		attribute.Int("cols", sampleDB.ColSize),
		attribute.Int("workers", workers),
		attribute.String("mode", options.Mode.String()),
	)

	ctx = rendermetrics.WithMode(ctx, options.Mode.String())

	worker := &rowWorker{
		scene:         scene,
		cam:           cam,
		sampleDB:      sampleDB,
		maxDepth:      cam.MaxDepth,
		targetSamples: TargetSamples(cam, options.Mode),
		seed:          options.Seed,
	}

	// progressMutex guards doneRows.
	progressMutex := sync.Mutex{}
	doneRows := 0
	reportRow := func() {
		progressMutex.Lock()
		defer progressMutex.Unlock()
		doneRows++
		if progressFunction != nil {
			progressFunction(doneRows, sampleDB.RowSize)
		}
	}

	// Use errgroup and semaphore to limit concurrency.
	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))

	abort := func(err error) error {
		// Let the failing row's error win over the cancellation it caused.
		if egErr := eg.Wait(); egErr != nil {
			err = egErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for row := 0; row < sampleDB.RowSize; row++ {
		row := row

		if err := egCtx.Err(); err != nil {
			return fmt.Errorf("render stopped before row %d: %w", row, abort(err))
		}

		if err := sem.Acquire(egCtx, 1); err != nil {
			return fmt.Errorf("while acquiring concurrency limiter semaphore: %w", abort(err))
		}

		eg.Go(func() error {
			defer sem.Release(1)
			if err := renderRow(egCtx, worker, options.Checkpoint, row); err != nil {
				return fmt.Errorf("while rendering row %d: %w", row, err)
			}
			reportRow()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("while waiting for completion of errgroup: %w", err)
	}

	return nil
}

func renderRow(ctx context.Context, w *rowWorker, store RowStore, row int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if store != nil {
		sums, counts, ok, err := store.LoadRow(ctx, row)
		if err != nil {
			return fmt.Errorf("while loading checkpoint: %w", err)
		}
		if ok {
			if err := w.sampleDB.PasteRow(row, sums, counts); err != nil {
				return fmt.Errorf("while restoring checkpoint: %w", err)
			}
			rendermetrics.RecordResumedRow(ctx)
			glog.V(1).Infof("Row %d restored from checkpoint", row)
		}
	}

	start := time.Now()
	added := w.render(row)
	elapsed := time.Since(start)

	rendermetrics.RecordRow(ctx, int64(added), float64(elapsed)/float64(time.Millisecond))
	glog.V(2).Infof("Row %d: %d samples in %v", row, added, elapsed)

	if store != nil && added > 0 {
		sums, counts := w.sampleDB.Row(row)
		if err := store.SaveRow(ctx, row, sums, counts); err != nil {
			return fmt.Errorf("while saving checkpoint: %w", err)
		}
	}

	return nil
}

// ToneMap converts the accumulated samples to 8-bit color.  Pixels whose
// radiance went NaN are written as black and reported.
func ToneMap(ctx context.Context, sampleDB *sampleimage.SampleImage, mode sampleimage.ToneMode) *image.RGBA {
	img, nanPixels := sampleDB.ToRGBA(mode)
	if nanPixels > 0 {
		glog.Warningf("%d pixels had NaN radiance and were written as black", nanPixels)
	}
	rendermetrics.RecordNaNPixels(ctx, nanPixels)
	return img
}

// Render draws the scene from scratch and tone maps the result.
func Render(ctx context.Context, scene *Scene, cam *camera.Camera, options *RenderOptions) (*image.RGBA, error) {
	if !cam.Initialized() {
		if err := cam.Initialize(); err != nil {
			return nil, err
		}
	}

	sampleDB := sampleimage.New(cam.ImageHeight(), cam.ImageWidth)
	if err := RenderScene(ctx, scene, cam, options, sampleDB, nil); err != nil {
		return nil, err
	}

	return ToneMap(ctx, sampleDB, options.Mode), nil
}
