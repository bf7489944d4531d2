package quadmosaic

import (
	"image"
	"image/color"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/lucasb-eyer/go-colorful"
)

type Options struct {
	// Recursion bound of the quadtree. Every level halves the leaf sides.
	// Ideal start: 6 for SD video (smallest tiles of ~5-8 px).
	// Too high => near-pixel tiles and a large overlay cache.
	DepthLimit int
	// Level at which rendering stops. Equal to DepthLimit renders every
	// leaf; lower values give a coarser mosaic from the same tree.
	TargetLevel int
	// Output frame rate, used by the tempo indexer and the encoder.
	FramesPerSecond float64
	// Beats per second of the soundtrack (BPM / 60).
	BeatsPerSecond float64
	// Beats one full overlay cycle spans. 1 cycles once per beat.
	BeatsPerCycle float64
	// Per-channel brightness gating overlay substitution.
	// Ideal start: 100. Higher => fewer, brighter tiles get the overlay.
	WhiteishThreshold uint8
	// Outline flat-colour tiles with OutlineColor.
	Outline      bool
	OutlineColor color.NRGBA
	// Overlay resample filter: area, nearest, approx-bilinear, bilinear,
	// catmullrom.
	Resample string
	// Optional palette flat tiles are snapped to.
	Palette []colorful.Color
	// Frames rendered concurrently. 1 renders sequentially.
	Workers int
	// Tree levels whose quadrants render concurrently within a frame.
	// 0 disables. Ideal start: 0 when Workers > 1, else 2.
	ParallelDepth int
	// Consecutive failed frames tolerated before the run aborts.
	MaxConsecutiveFailures int
	// Frames between progress log lines.
	ProgressInterval int
}

func DefaultOptions() Options {
	return Options{
		DepthLimit:             6,
		TargetLevel:            6,
		FramesPerSecond:        30,
		BeatsPerSecond:         BPMToBPS(138),
		BeatsPerCycle:          1,
		WhiteishThreshold:      DefaultWhiteishThreshold,
		OutlineColor:           white,
		Resample:               "area",
		Workers:                1,
		MaxConsecutiveFailures: 5,
		ProgressInterval:       50,
	}
}

// OptionsFromSize picks a depth limit so the smallest tiles of a frame of
// the given size stay around 4 px on their short side.
func OptionsFromSize(size image.Point) Options {
	opt := DefaultOptions()
	short := min(size.X, size.Y)
	if short <= 0 {
		return opt
	}
	depth := int(math.Floor(math.Log2(float64(short) / 4)))
	depth = max(1, min(8, depth))

	opt.DepthLimit = depth
	opt.TargetLevel = depth
	return opt
}

// Validate checks the options that do not depend on the overlay set.
func (o Options) Validate() error {
	if o.DepthLimit < 0 {
		return errors.New("depth limit must not be negative").
			WithType(ErrTypeInvalidOptions).
			WithTag("depth_limit", o.DepthLimit)
	}
	if o.TargetLevel < 0 {
		return errors.New("target level must not be negative").
			WithType(ErrTypeInvalidOptions).
			WithTag("target_level", o.TargetLevel)
	}
	if o.Workers < 0 || o.ParallelDepth < 0 || o.MaxConsecutiveFailures < 0 || o.ProgressInterval < 0 {
		return errors.New("worker, parallelism, failure and progress settings must not be negative").
			WithType(ErrTypeInvalidOptions).
			WithTag("workers", o.Workers).
			WithTag("parallel_depth", o.ParallelDepth).
			WithTag("max_consecutive_failures", o.MaxConsecutiveFailures).
			WithTag("progress_interval", o.ProgressInterval)
	}
	if _, err := ResamplerByName(o.Resample); err != nil {
		return err
	}
	return nil
}

// Tempo returns the tempo settings of o.
func (o Options) Tempo() Tempo {
	return Tempo{
		BeatsPerSecond:  o.BeatsPerSecond,
		FramesPerSecond: o.FramesPerSecond,
		BeatsPerCycle:   o.BeatsPerCycle,
	}
}
