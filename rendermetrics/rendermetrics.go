package rendermetrics

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	KeyMode = tag.MustNewKey("mode")

	Samples   = stats.Int64("skylight/samples", "Radiance samples traced", stats.UnitDimensionless)
	Rows      = stats.Int64("skylight/rows", "Image rows finished", stats.UnitDimensionless)
	Resumed   = stats.Int64("skylight/rows_resumed", "Image rows restored from a checkpoint", stats.UnitDimensionless)
	NaNPixels = stats.Int64("skylight/nan_pixels", "Pixels with a NaN channel at tone-map time", stats.UnitDimensionless)
	RowMillis = stats.Float64("skylight/row_latency", "Wall time to render one row", stats.UnitMilliseconds)
)

var Views = []*view.View{
	{
		Name:        "skylight/samples",
		Description: "Count of radiance samples traced",
		TagKeys:     []tag.Key{KeyMode},
		Measure:     Samples,
		Aggregation: view.Sum(),
	},
	{
		Name:        "skylight/rows",
		Description: "Count of image rows finished",
		TagKeys:     []tag.Key{KeyMode},
		Measure:     Rows,
		Aggregation: view.Sum(),
	},
	{
		Name:        "skylight/rows_resumed",
		Description: "Count of image rows restored from a checkpoint",
		Measure:     Resumed,
		Aggregation: view.Sum(),
	},
	{
		Name:        "skylight/nan_pixels",
		Description: "Count of pixels replaced with black because of NaN radiance",
		Measure:     NaNPixels,
		Aggregation: view.Sum(),
	},
	{
		Name:        "skylight/row_latency",
		Description: "Distribution of per-row render time",
		TagKeys:     []tag.Key{KeyMode},
		Measure:     RowMillis,
		Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000, 10000),
	},
}

func RegisterViews() error {
	return view.Register(Views...)
}

// WithMode tags ctx with the render mode.  Tagging errors are ignored since
// the key and value are always valid.
func WithMode(ctx context.Context, mode string) context.Context {
	tagged, err := tag.New(ctx, tag.Upsert(KeyMode, mode))
	if err != nil {
		return ctx
	}
	return tagged
}

func RecordRow(ctx context.Context, samples int64, millis float64) {
	stats.Record(ctx, Rows.M(1), Samples.M(samples), RowMillis.M(millis))
}

func RecordResumedRow(ctx context.Context) {
	stats.Record(ctx, Resumed.M(1))
}

func RecordNaNPixels(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	stats.Record(ctx, NaNPixels.M(int64(n)))
}
