package quadmosaic

import (
	"context"
	"image/color"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/sync/errgroup"
)

// Overlay is an image substituted into whiteish leaves. ID identifies the
// image in the overlay cache and must be stable for the whole run.
type Overlay struct {
	ID    int
	Image *Raster
}

type RenderOptions struct {
	// Level at which rendering stops even if the tree goes deeper.
	// 0 renders the root as a single tile.
	Level int
	// Image for whiteish tiles. Nil renders them solid white. The image
	// must have 4 channels.
	Overlay *Overlay
	// Cache of resampled overlays. Nil uses a cache private to the call.
	Cache *OverlayCache
	// Brightness every colour channel of a tile's mean must reach for the
	// tile to be whiteish. Zero selects DefaultWhiteishThreshold.
	WhiteishThreshold uint8
	// Outline paints the border of flat-colour tiles with OutlineColor
	// (white when zero).
	Outline      bool
	OutlineColor color.NRGBA
	// Palette, when set, snaps flat tile colours to the nearest entry in
	// CIE Lab space.
	Palette []colorful.Color
	// Nodes above this level render their four quadrants concurrently.
	ParallelDepth int
}

// Render draws the tree into a new RGBA raster of the root's size.
func (t *Tree) Render(ctx context.Context, opt RenderOptions) (*Raster, error) {
	if len(t.Nodes) == 0 {
		return nil, errors.New("render of an empty tree").
			WithType(ErrTypeInvalidShape)
	}
	if opt.Overlay != nil && opt.Overlay.Image != nil {
		if opt.Overlay.Image.C != 4 {
			return nil, errors.New("overlay image must have 4 channels").
				WithType(ErrTypeInvalidChannel).
				WithTag("overlay_id", opt.Overlay.ID).
				WithTag("channels", opt.Overlay.Image.C)
		}
		if opt.Cache == nil {
			opt.Cache = NewOverlayCache(nil)
		}
	}
	if opt.WhiteishThreshold == 0 {
		opt.WhiteishThreshold = DefaultWhiteishThreshold
	}
	if opt.OutlineColor == (color.NRGBA{}) {
		opt.OutlineColor = white
	}
	opt.Level = max(opt.Level, 0)

	out, err := t.render(ctx, 0, &opt)
	if err != nil {
		return nil, err
	}
	if root := t.Root(); root.Leaf || root.Level == opt.Level {
		// A single tile may be a shared cache entry.
		out = out.Clone()
	}
	return out, nil
}

func (t *Tree) render(ctx context.Context, idx int, opt *RenderOptions) (*Raster, error) {
	n := &t.Nodes[idx]
	if n.Leaf || n.Level == opt.Level {
		return opt.tile(n)
	}

	var quads [4]*Raster
	if n.Level < opt.ParallelDepth {
		g, gctx := errgroup.WithContext(ctx)
		for i, c := range n.Children {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := t.render(gctx, c, opt)
				quads[i] = r
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, c := range n.Children {
			r, err := t.render(ctx, c, opt)
			if err != nil {
				return nil, err
			}
			quads[i] = r
		}
	}
	return Merge(quads[NW], quads[NE], quads[SW], quads[SE])
}

func (opt *RenderOptions) tile(n *Node) (*Raster, error) {
	mean, err := MeanColor(n.Region)
	if err != nil {
		return nil, err
	}
	whiteish, err := IsWhiteish(colorSamples(mean), opt.WhiteishThreshold)
	if err != nil {
		return nil, err
	}

	if whiteish {
		if opt.Overlay == nil || opt.Overlay.Image == nil {
			return Fill(n.Height, n.Width, white), nil
		}
		return opt.Cache.Resolve(opt.Overlay.ID, n.Height, n.Width, opt.Overlay.Image)
	}

	c := mean
	if len(opt.Palette) != 0 {
		c = SnapToPalette(mean, opt.Palette)
	}
	tile := Fill(n.Height, n.Width, c)
	if opt.Outline {
		OutlineWith(tile, opt.OutlineColor)
	}
	return tile, nil
}

// SnapToPalette returns the palette entry closest to c in CIE Lab, keeping
// the alpha of c.
func SnapToPalette(c color.NRGBA, palette []colorful.Color) color.NRGBA {
	if len(palette) == 0 {
		return c
	}
	src := colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
	best := palette[0]
	bestD := src.DistanceLab(best)
	for _, p := range palette[1:] {
		if d := src.DistanceLab(p); d < bestD {
			best, bestD = p, d
		}
	}
	r, g, b := best.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: c.A}
}
