package quadmosaic

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// FrameSource produces the frames of a run in order. Next returns io.EOF
// once the sequence is exhausted. Errors typed ErrTypeFrameUnreadable skip
// the frame; any other error aborts the run.
type FrameSource interface {
	Next() (*Raster, error)
}

// FrameSink consumes rendered frames. Indices start at 0 and increase by
// one per written frame.
type FrameSink interface {
	WriteFrame(index int, frame *Raster) error
}

// Renderer turns source frames into quadtree mosaics with a beat-synced
// overlay sequence.
type Renderer struct {
	Options  Options
	Overlays []Overlay
	Cache    *OverlayCache
}

// NewRenderer validates opt against the overlay set and prepares the
// run-wide overlay cache. Overlay IDs are their positions in overlays.
func NewRenderer(opt Options, overlays []*Raster) (*Renderer, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if err := opt.Tempo().Validate(len(overlays)); err != nil {
		return nil, err
	}
	resample, err := ResamplerByName(opt.Resample)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		Options:  opt,
		Overlays: make([]Overlay, len(overlays)),
		Cache:    NewOverlayCache(resample),
	}
	for i, img := range overlays {
		if img == nil || (img.C != 3 && img.C != 4) {
			channels := 0
			if img != nil {
				channels = img.C
			}
			return nil, errors.New("overlay image must have 3 or 4 channels").
				WithType(ErrTypeInvalidChannel).
				WithTag("overlay_id", i).
				WithTag("channels", channels)
		}
		if img.C == 3 {
			img = img.WithAlpha()
		}
		r.Overlays[i] = Overlay{ID: i, Image: img}
	}
	return r, nil
}

// RenderFrame builds a fresh tree for frame and renders it with the overlay
// selected for position seq in the sequence.
func (r *Renderer) RenderFrame(ctx context.Context, seq int, frame *Raster) (*Raster, error) {
	start := time.Now()

	tree, err := Build(frame, r.Options.DepthLimit)
	if err != nil {
		return nil, err
	}
	idx, err := r.Options.Tempo().OverlayIndex(seq, len(r.Overlays))
	if err != nil {
		return nil, err
	}

	out, err := tree.Render(ctx, RenderOptions{
		Level:             r.Options.TargetLevel,
		Overlay:           &r.Overlays[idx],
		Cache:             r.Cache,
		WhiteishThreshold: r.Options.WhiteishThreshold,
		Outline:           r.Options.Outline,
		OutlineColor:      r.Options.OutlineColor,
		Palette:           r.Options.Palette,
		ParallelDepth:     r.Options.ParallelDepth,
	})
	if err != nil {
		return nil, err
	}

	instrumentFrameRendered(start, tree.LeafCount(), idx)
	return out, nil
}
