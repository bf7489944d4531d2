package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"github.com/setanarut/quadmosaic"
	"github.com/setanarut/quadmosaic/utils"
	"github.com/setanarut/quadmosaic/video"
)

var (
	// Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "quadmosaic_info",
		Help:        "Quadmosaic information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

var _ = reflect.TypeOf(config{})

type config struct {
	Input                  string  `cli:""        env:"QUADMOSAIC_INPUT"                    help:"Video file or directory of frame images."`
	Overlays               string  `cli:""        env:"QUADMOSAIC_OVERLAYS"                 help:"Overlay directory, animated GIF, .tar.zst pack or single image."`
	OutputDir              string  `cli:""        env:"QUADMOSAIC_OUTPUT_DIR"               help:"Directory where rendered frames are written."`
	FrameFormat            string  `cli:""        env:"QUADMOSAIC_FRAME_FORMAT"             help:"Rendered frame format (png|qoi)."`
	Encode                 bool    `cli:""        env:"QUADMOSAIC_ENCODE"                   help:"Encode the rendered frames into a video with ffmpeg."`
	Audio                  string  `cli:""        env:"QUADMOSAIC_AUDIO"                    help:"Audio track merged into the encoded video."`
	Output                 string  `cli:""        env:"QUADMOSAIC_OUTPUT"                   help:"Encoded video path. Generated when empty."`
	DepthLimit             int     `cli:""        env:"QUADMOSAIC_DEPTH_LIMIT"              help:"Quadtree depth limit. 0 derives it from the frame size."`
	TargetLevel            int     `cli:""        env:"QUADMOSAIC_TARGET_LEVEL"             help:"Render level. 0 renders at the depth limit."`
	FPS                    float64 `cli:""        env:"QUADMOSAIC_FPS"                      help:"Frame rate. 0 uses the probed video rate."`
	BPM                    float64 `cli:""        env:"QUADMOSAIC_BPM"                      help:"Soundtrack tempo in beats per minute."`
	BeatsPerCycle          float64 `cli:""        env:"QUADMOSAIC_BEATS_PER_CYCLE"          help:"Beats one overlay cycle spans."`
	WhiteishThreshold      int     `cli:""        env:"QUADMOSAIC_WHITEISH_THRESHOLD"       help:"Per-channel brightness above which tiles get overlays (0-255)."`
	ChannelMode            string  `cli:""        env:"QUADMOSAIC_CHANNEL_MODE"             help:"Overlay channel mode (unchanged|color|grayscale)."`
	Outline                bool    `cli:""        env:"QUADMOSAIC_OUTLINE"                  help:"Outline flat-colour tiles."`
	OutlineColor           string  `cli:""        env:"QUADMOSAIC_OUTLINE_COLOR"            help:"Outline colour as hex."`
	Resample               string  `cli:""        env:"QUADMOSAIC_RESAMPLE"                 help:"Overlay resample filter (area|nearest|approx-bilinear|bilinear|catmullrom)."`
	PaletteSize            int     `cli:""        env:"QUADMOSAIC_PALETTE_SIZE"             help:"Snap flat tiles to a palette of this size taken from the first overlay. 0 disables."`
	PaletteMethod          string  `cli:""        env:"QUADMOSAIC_PALETTE_METHOD"           help:"Palette extraction method (dominantcolor|kmeans)."`
	Workers                int     `cli:""        env:"QUADMOSAIC_WORKERS"                  help:"Frames rendered concurrently."`
	ParallelDepth          int     `cli:",hidden" env:"QUADMOSAIC_PARALLEL_DEPTH"           help:"Tree levels rendered concurrently within a frame."`
	MaxConsecutiveFailures int     `cli:",hidden" env:"QUADMOSAIC_MAX_CONSECUTIVE_FAILURES" help:"Consecutive failed frames tolerated before aborting."`
	ProgressInterval       int     `cli:",hidden" env:"QUADMOSAIC_PROGRESS_INTERVAL"        help:"Frames between progress logs."`
	MaxFrames              int     `cli:""        env:"QUADMOSAIC_MAX_FRAMES"               help:"Stop after this many video frames. 0 reads all."`
	MetricsAddr            string  `cli:""        env:"QUADMOSAIC_METRICS_ADDR"             help:"Listening address serving /metrics. Empty disables."`
	LogLevel               string  `cli:""        env:"QUADMOSAIC_LOG_LEVEL"                help:"Log level (debug|info|warning|error)."`
	LogIndent              bool    `cli:""        env:"QUADMOSAIC_LOG_INDENT"               help:"Indent logs."`
	Version                bool    `cli:""        env:"-"                                   help:"Show version."`
	Help                   bool    `cli:""        env:"-"                                   help:"Show help."`
}

type frameSource interface {
	quadmosaic.FrameSource
	Close() error
}

func main() {
	defaults := quadmosaic.DefaultOptions()
	conf := config{
		OutputDir:              "frames",
		FrameFormat:            "png",
		BPM:                    138,
		BeatsPerCycle:          defaults.BeatsPerCycle,
		WhiteishThreshold:      int(defaults.WhiteishThreshold),
		ChannelMode:            utils.ChannelModeUnchanged.String(),
		OutlineColor:           "#ffffff",
		Resample:               defaults.Resample,
		PaletteMethod:          utils.PaletteMethodDominantColor.String(),
		Workers:                defaults.Workers,
		MaxConsecutiveFailures: defaults.MaxConsecutiveFailures,
		ProgressInterval:       defaults.ProgressInterval,
		LogLevel:               logs.InfoLevel.String(),
	}

	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Renders a video as a beat-synced quadtree mosaic.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}
	errors.Encoder = json.Marshal

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	runID := uuid.NewString()
	if conf.MetricsAddr != "" {
		go serveMetrics(ctx, conf.MetricsAddr)
	}

	channelMode, err := utils.ParseChannelMode(conf.ChannelMode)
	if err != nil {
		logs.Fatal(err)
	}
	overlays, err := utils.LoadOverlays(conf.Overlays, channelMode)
	if err != nil {
		logs.Fatal(errors.New("loading overlays failed").Wrap(err))
	}

	src, size, fps, err := openSource(ctx, conf)
	if err != nil {
		logs.Fatal(errors.New("opening input failed").Wrap(err))
	}
	defer src.Close()

	opt, err := makeOptions(conf, size, fps)
	if err != nil {
		logs.Fatal(err)
	}
	if conf.PaletteSize > 0 && len(overlays) != 0 {
		method, err := utils.ParsePaletteMethod(conf.PaletteMethod)
		if err != nil {
			logs.Fatal(err)
		}
		opt.Palette = utils.ExtractPalette(overlays[0], conf.PaletteSize, method)
		utils.SortPaletteByBrightness(opt.Palette)
	}

	sink, err := utils.NewFileSink(conf.OutputDir, conf.FrameFormat)
	if err != nil {
		logs.Fatal(err)
	}

	renderer, err := quadmosaic.NewRenderer(opt, overlays)
	if err != nil {
		logs.Fatal(err)
	}

	logs.WithTag("version", version).
		WithTag("run_id", runID).
		WithTag("input", conf.Input).
		WithTag("width", size.X).
		WithTag("height", size.Y).
		WithTag("fps", opt.FramesPerSecond).
		WithTag("depth_limit", opt.DepthLimit).
		WithTag("target_level", opt.TargetLevel).
		WithTag("overlays", len(overlays)).
		WithTag("workers", opt.Workers).
		Info("starting render")

	start := time.Now()
	stats, err := renderer.Run(ctx, src, sink)
	cacheStats := renderer.Cache.Stats()
	summary := logs.WithTag("run_id", runID).
		WithTag("read", stats.Read).
		WithTag("written", stats.Written).
		WithTag("skipped", stats.Skipped).
		WithTag("failed", stats.Failed).
		WithTag("cache_hits", cacheStats.Hits).
		WithTag("cache_misses", cacheStats.Misses).
		WithTag("duration", time.Since(start).String())
	if err != nil {
		summary.Error(errors.New("render failed").Wrap(err))
		src.Close()
		os.Exit(1)
	}
	summary.Info("render finished")

	if !conf.Encode {
		return
	}
	output := conf.Output
	if output == "" {
		output = fmt.Sprintf("quadmosaic-%s.mp4", runID[:8])
	}
	err = video.Encode(ctx, video.EncodeOptions{
		FrameDir:        sink.Dir,
		Pattern:         utils.FrameFilePattern(sink.Format),
		FramesPerSecond: opt.FramesPerSecond,
		Audio:           conf.Audio,
		Output:          output,
	})
	if err != nil {
		logs.Fatal(errors.New("encoding video failed").Wrap(err))
	}
	logs.WithTag("run_id", runID).
		WithTag("output", output).
		Info("video encoded")
}

func validateConfig(conf config) error {
	if conf.Input == "" {
		return errors.New("input is required").
			WithType(quadmosaic.ErrTypeInvalidOptions)
	}
	if conf.Overlays == "" {
		return errors.New("overlays are required").
			WithType(quadmosaic.ErrTypeInvalidOptions)
	}
	if conf.WhiteishThreshold < 0 || conf.WhiteishThreshold > 255 {
		return errors.New("whiteish threshold must be within 0-255").
			WithType(quadmosaic.ErrTypeInvalidOptions).
			WithTag("whiteish_threshold", conf.WhiteishThreshold)
	}
	if conf.Encode && conf.FrameFormat == "qoi" {
		return errors.New("qoi frames cannot be encoded by ffmpeg").
			WithType(quadmosaic.ErrTypeInvalidOptions)
	}
	return nil
}

// openSource opens a directory of frames or a video file. The returned
// frame rate is 0 when the input carries none.
func openSource(ctx context.Context, conf config) (frameSource, image.Point, float64, error) {
	info, err := os.Stat(conf.Input)
	if err != nil {
		return nil, image.Point{}, 0, err
	}

	if info.IsDir() {
		src, err := utils.NewDirSource(conf.Input)
		if err != nil {
			return nil, image.Point{}, 0, err
		}
		return src, src.Size(), 0, nil
	}

	probe, err := video.Probe(ctx, conf.Input)
	if err != nil {
		return nil, image.Point{}, 0, err
	}
	src, err := video.NewSource(ctx, conf.Input, probe, video.SourceOptions{
		MaxFrames: conf.MaxFrames,
	})
	if err != nil {
		return nil, image.Point{}, 0, err
	}
	return src, probe.Size(), probe.FramesPerSecond, nil
}

func makeOptions(conf config, size image.Point, probedFPS float64) (quadmosaic.Options, error) {
	opt := quadmosaic.OptionsFromSize(size)
	if conf.DepthLimit > 0 {
		opt.DepthLimit = conf.DepthLimit
		opt.TargetLevel = conf.DepthLimit
	}
	if conf.TargetLevel > 0 {
		opt.TargetLevel = conf.TargetLevel
	}

	switch {
	case conf.FPS > 0:
		opt.FramesPerSecond = conf.FPS
	case probedFPS > 0:
		opt.FramesPerSecond = probedFPS
	}
	opt.BeatsPerSecond = quadmosaic.BPMToBPS(conf.BPM)
	opt.BeatsPerCycle = conf.BeatsPerCycle
	opt.WhiteishThreshold = uint8(conf.WhiteishThreshold)
	opt.Resample = conf.Resample
	opt.Workers = conf.Workers
	opt.ParallelDepth = conf.ParallelDepth
	opt.MaxConsecutiveFailures = conf.MaxConsecutiveFailures
	opt.ProgressInterval = conf.ProgressInterval

	opt.Outline = conf.Outline
	if conf.Outline {
		c, err := colorful.Hex(conf.OutlineColor)
		if err != nil {
			return opt, errors.New("invalid outline colour").
				WithType(quadmosaic.ErrTypeInvalidOptions).
				WithTag("outline_color", conf.OutlineColor).
				Wrap(err)
		}
		r, g, b := c.RGB255()
		opt.OutlineColor = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return opt, opt.Validate()
}

func serveMetrics(ctx context.Context, addr string) {
	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: &admin}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logs.WithTag("addr", addr).Info("serving metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logs.Warn(errors.New("metrics server failed").Wrap(err))
	}
}
