package quadmosaic

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	resultLabel  = "result"
)

var (
	framesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadmosaic_frames_rendered",
		Help: "The number of frames rendered.",
	})

	frameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadmosaic_frame_errors",
		Help: "The errors that occurred while reading or rendering a frame.",
	}, []string{
		errTypeLabel,
	})

	frameRenderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quadmosaic_frame_render_latency",
		Help:    "The time to build and render a frame.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	frameLeaves = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quadmosaic_frame_leaves",
		Help:    "The number of quadtree leaves per frame.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	overlayIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quadmosaic_overlay_index",
		Help: "The overlay image index used for the last rendered frame.",
	})

	overlayCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadmosaic_overlay_cache_lookups",
		Help: "Overlay cache lookups by result (hit or miss).",
	}, []string{
		resultLabel,
	})
)

func instrumentFrameRendered(start time.Time, leaves int, overlay int) {
	framesRendered.Inc()
	frameRenderLatency.Observe(time.Since(start).Seconds())
	frameLeaves.Observe(float64(leaves))
	overlayIndex.Set(float64(overlay))
}

func instrumentFrameError(err error) {
	frameErrors.
		With(prometheus.Labels{
			errTypeLabel: errors.Type(err),
		}).
		Inc()
}

func instrumentCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	overlayCacheLookups.With(prometheus.Labels{
		resultLabel: result,
	}).Inc()
}
