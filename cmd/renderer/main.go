// renderer draws the fixed sphere scene and writes it out as a PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	runtimepprof "runtime/pprof"
	"strconv"
	"syscall"
	"time"

	"row-major/skylight/camera"
	"row-major/skylight/checkpoint"
	"row-major/skylight/imagesink"
	"row-major/skylight/material"
	"row-major/skylight/rendermetrics"
	"row-major/skylight/sampleimage"
	"row-major/skylight/scene"
	"row-major/skylight/statusz"
	"row-major/skylight/vmath/vec3"

	"cloud.google.com/go/profiler"
	cloudtrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/golang/glog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

var (
	outputFile         = flag.String("output-file", "image.png", "Output PNG path.  Empty to skip the local file.")
	outputGCSURL       = flag.String("output-gcs-url", "", "If set, also upload the PNG to this gs://bucket/object.")
	gcsCredentialsFile = flag.String("gcs-credentials-file", "", "Service account key for GCS.  If not specified, Application Default Credentials are used.")

	imageWidth      = flag.Int("image-width", 400, "Output image width in pixels")
	aspectRatio     = flag.Float64("aspect-ratio", 16.0/9.0, "Output image width over height")
	samplesPerPixel = flag.Int("samples-per-pixel", 100, "Samples averaged into each pixel")
	maxDepth        = flag.Int("max-depth", 50, "Maximum number of bounces per camera ray")
	renderMode      = flag.String("render-mode", "averaged", "Tone mapping: averaged or raw")
	workers         = flag.Int("workers", 0, "Rows rendered in parallel.  0 means one per CPU.")
	seed            = flag.Int64("seed", 1, "Base random seed")

	sampleFile    = flag.String("sample-file", "", "Sample image file written after the render, for resumption")
	resume        = flag.Bool("resume", false, "Continue accumulating into an existing --sample-file")
	checkpointDir = flag.String("checkpoint-dir", "", "Badger directory where finished rows are checkpointed")

	debugListen     = flag.String("debug-listen", "", "Server address:port for debug endpoint.  Empty disables it.")
	enableTracing   = flag.Bool("enable-tracing", false, "Export render traces to Cloud Trace")
	traceProject    = flag.String("trace-project", "", "Override project used for tracing.  If not specified, the project associated with Application Default Credentials is used.")
	enableMetrics   = flag.Bool("enable-metrics", false, "Export render metrics to Cloud Monitoring")
	enableProfiling = flag.Bool("enable-profiling", false, "Enable Cloud Profiler")
	cpuProfile      = flag.String("cpu-profile", "", "Write a CPU profile to this file")
	memProfile      = flag.String("mem-profile", "", "Write a heap profile to this file")
)

func main() {
	flag.Parse()

	glog.Infof("flags:")
	flag.VisitAll(func(f *flag.Flag) {
		glog.Infof("%s: %q", f.Name, f.Value.String())
	})

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			glog.Exitf("Could not create CPU profile: %v", err)
		}
		defer f.Close()
		if err := runtimepprof.StartCPUProfile(f); err != nil {
			glog.Exitf("Could not start CPU profile: %v", err)
		}
		defer runtimepprof.StopCPUProfile()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		glog.Infof("Interrupted; stopping after in-flight rows")
		cancel()
	}()

	err := do(ctx)

	if *memProfile != "" {
		f, perr := os.Create(*memProfile)
		if perr != nil {
			glog.Errorf("Could not create memory profile: %v", perr)
		} else {
			if perr := runtimepprof.WriteHeapProfile(f); perr != nil {
				glog.Errorf("Could not write memory profile: %v", perr)
			}
			f.Close()
		}
	}

	if err != nil {
		runtimepprof.StopCPUProfile()
		glog.Exitf("Error: %v", err)
	}
	glog.Flush()
}

func do(ctx context.Context) error {
	mode, err := sampleimage.ParseToneMode(*renderMode)
	if err != nil {
		return fmt.Errorf("while parsing --render-mode: %w", err)
	}

	// Cloud Profiler initialization, best done as early as possible.
	if *enableProfiling {
		if err := profiler.Start(profiler.Config{
			Service:        "skylight-renderer",
			ServiceVersion: "0.0.1",
		}); err != nil {
			return fmt.Errorf("while initializing profiler: %w", err)
		}
	}

	if *enableTracing {
		traceOpts := []cloudtrace.Option{}
		if *traceProject != "" {
			traceOpts = append(traceOpts, cloudtrace.WithProjectID(*traceProject))
		}
		_, traceShutdown, err := cloudtrace.InstallNewPipeline(traceOpts, sdktrace.WithSampler(sdktrace.AlwaysSample()))
		if err != nil {
			return fmt.Errorf("while installing Cloud Trace OpenTelemetry trace pipeline: %w", err)
		}
		defer traceShutdown()
	}

	if err := rendermetrics.RegisterViews(); err != nil {
		return fmt.Errorf("while registering metric views: %w", err)
	}
	if *enableMetrics {
		exporter, err := stackdriver.NewExporter(stackdriver.Options{
			MetricPrefix:      "skylight",
			ReportingInterval: 60 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("while initializing metrics exporter: %w", err)
		}
		if err := exporter.StartMetricsExporter(); err != nil {
			return fmt.Errorf("while starting metrics exporter: %w", err)
		}
		defer exporter.Flush()
		defer exporter.StopMetricsExporter()
	}

	cam := &camera.Camera{
		AspectRatio:     *aspectRatio,
		ImageWidth:      *imageWidth,
		SamplesPerPixel: *samplesPerPixel,
		MaxDepth:        *maxDepth,
	}
	if err := cam.Initialize(); err != nil {
		return fmt.Errorf("while initializing camera: %w", err)
	}

	sampleDB, err := loadSampleImage(cam, mode)
	if err != nil {
		return err
	}

	options := &scene.RenderOptions{
		Mode:    mode,
		Workers: *workers,
		Seed:    *seed,
	}

	if *checkpointDir != "" {
		fingerprint := checkpoint.Fingerprint(
			strconv.Itoa(cam.ImageWidth),
			strconv.Itoa(cam.ImageHeight()),
			strconv.Itoa(cam.SamplesPerPixel),
			strconv.Itoa(cam.MaxDepth),
			mode.String(),
			strconv.FormatInt(*seed, 10),
		)
		store, err := checkpoint.Open(*checkpointDir, fingerprint)
		if err != nil {
			return fmt.Errorf("while opening checkpoint store: %w", err)
		}
		defer store.Close()
		options.Checkpoint = store

		saved, err := store.SavedRows()
		if err != nil {
			return fmt.Errorf("while inspecting checkpoint store: %w", err)
		}
		glog.Infof("Checkpoint store %s holds %d/%d finished rows", *checkpointDir, saved, cam.ImageHeight())
	}

	status := statusz.New()
	if *debugListen != "" {
		startDebugServer(status)
	}

	sinks, closeSinks, err := buildSinks(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	glog.Infof("Rendering %dx%d, %d samples per pixel, max depth %d, mode %v", cam.ImageWidth, cam.ImageHeight(), scene.TargetSamples(cam, mode), cam.MaxDepth, mode)

	start := time.Now()
	renderErr := scene.RenderScene(ctx, buildScene(), cam, options, sampleDB, newProgressFunction(status))
	status.Finish()

	// Keep whatever was accumulated so that --resume can pick it up, even if
	// the render was interrupted.
	if *sampleFile != "" {
		if err := sampleimage.WriteSampleImageToFile(sampleDB, *sampleFile); err != nil {
			return fmt.Errorf("while writing sample file: %w", err)
		}
	}

	if renderErr != nil {
		if errors.Is(renderErr, context.Canceled) && *sampleFile != "" {
			glog.Infof("Partial samples saved to %s", *sampleFile)
		}
		return fmt.Errorf("while rendering: %w", renderErr)
	}
	glog.Infof("Render finished in %v", time.Since(start))

	img := scene.ToneMap(ctx, sampleDB, mode)
	for _, sink := range sinks {
		if err := sink.Write(ctx, img); err != nil {
			return fmt.Errorf("while writing image: %w", err)
		}
	}

	return nil
}

func loadSampleImage(cam *camera.Camera, mode sampleimage.ToneMode) (*sampleimage.SampleImage, error) {
	if !*resume {
		// Check that the sample file doesn't exist, to avoid blowing away hours
		// of render time.
		if *sampleFile != "" {
			if _, err := os.Stat(*sampleFile); err == nil {
				return nil, fmt.Errorf("resumption not requested, but sample file %q exists", *sampleFile)
			}
		}
		sampleDB := sampleimage.New(cam.ImageHeight(), cam.ImageWidth)
		sampleDB.Mode = mode
		return sampleDB, nil
	}

	if *sampleFile == "" {
		return nil, fmt.Errorf("resumption requested, but --sample-file is not set")
	}

	sampleDB, err := sampleimage.ReadSampleImageFromFile(*sampleFile)
	if err != nil {
		return nil, fmt.Errorf("resumption requested, but encountered error loading existing file: %w", err)
	}

	if sampleDB.RowSize != cam.ImageHeight() {
		return nil, fmt.Errorf("resumption requested, but the existing sample image doesn't have the right number of rows (got %d, want %d)", sampleDB.RowSize, cam.ImageHeight())
	}

	if sampleDB.ColSize != cam.ImageWidth {
		return nil, fmt.Errorf("resumption requested, but the existing sample image doesn't have the right number of columns (got %d, want %d)", sampleDB.ColSize, cam.ImageWidth)
	}

	if sampleDB.Mode != mode {
		return nil, fmt.Errorf("resumption requested, but the existing sample image was rendered in %v mode, not %v", sampleDB.Mode, mode)
	}

	return sampleDB, nil
}

// buildSinks returns the configured sinks and a function releasing the
// clients behind them.
func buildSinks(ctx context.Context) ([]imagesink.Sink, func(), error) {
	sinks := []imagesink.Sink{}
	closers := []func() error{}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				glog.Errorf("Error closing sink client: %v", err)
			}
		}
	}

	if *outputFile != "" {
		sinks = append(sinks, &imagesink.FileSink{Path: *outputFile})
	}
	if *outputGCSURL != "" {
		bucket, object, err := imagesink.ParseGCSURL(*outputGCSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("while parsing --output-gcs-url: %w", err)
		}
		sink, client, err := imagesink.NewGCSSink(ctx, bucket, object, *gcsCredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("while creating GCS sink: %w", err)
		}
		closers = append(closers, client.Close)
		sinks = append(sinks, sink)
	}
	if len(sinks) == 0 {
		closeAll()
		return nil, nil, fmt.Errorf("no output configured; set --output-file or --output-gcs-url")
	}
	return sinks, closeAll, nil
}

func buildScene() *scene.Scene {
	ground := &material.Diffuse{Albedo: vec3.Color{0.8, 0.8, 0.0}}
	center := &material.Diffuse{Albedo: vec3.Color{0.1, 0.2, 0.5}}
	mirror := &material.Mirror{}

	sc := &scene.Scene{}
	sc.AddSphere(vec3.Point{0, -100.5, -1}, 100, ground)
	sc.AddSphere(vec3.Point{0, 0, -1}, 0.5, center)
	sc.AddSphere(vec3.Point{-1, 0, -1}, 0.5, mirror)
	sc.AddSphere(vec3.Point{1, 0, -1}, 0.5, mirror)
	return sc
}

func newProgressFunction(status *statusz.Handler) scene.ProgressFunction {
	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	limiter := rate.NewLimiter(rate.Every(5*time.Second), 1)

	return func(cur, tot int) {
		status.SetProgress(cur, tot)
		if interactive {
			fmt.Fprintf(os.Stderr, "\r%d/%d %d%%", cur, tot, 100*cur/tot)
			if cur == tot {
				fmt.Fprintf(os.Stderr, "\n")
			}
			return
		}
		if cur == tot || limiter.Allow() {
			glog.Infof("Progress: %d/%d rows", cur, tot)
		}
	}
}

func startDebugServer(status *statusz.Handler) {
	debugServeMux := http.NewServeMux()
	debugServeMux.Handle("/healthz", status)
	debugServeMux.Handle("/statusz", status)
	debugServeMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugServeMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugServeMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugServeMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugServeMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	debugServer := &http.Server{
		Addr:    *debugListen,
		Handler: debugServeMux,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := debugServer.ListenAndServe(); err != nil {
			glog.Errorf("Debug server died: %v", err)
		}
	}()
}
