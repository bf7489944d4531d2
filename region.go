package quadmosaic

import (
	"image/color"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// DefaultWhiteishThreshold is the per-channel brightness at or above which a
// colour counts as whiteish.
const DefaultWhiteishThreshold = 100

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// ============ SPLIT / MERGE ============

// Split cuts r into four new rasters in NW, NE, SW, SE order. Odd rows and
// columns go to the top and left halves.
func Split(r *Raster) ([4]*Raster, error) {
	var quads [4]*Raster
	if r.H < 2 || r.W < 2 {
		return quads, errors.New("region too small to split").
			WithType(ErrTypeInvalidShape).
			WithTag("height", r.H).
			WithTag("width", r.W)
	}

	top := (r.H + 1) / 2
	left := (r.W + 1) / 2
	quads[0] = crop(r, 0, 0, top, left)
	quads[1] = crop(r, 0, left, top, r.W-left)
	quads[2] = crop(r, top, 0, r.H-top, left)
	quads[3] = crop(r, top, left, r.H-top, r.W-left)
	return quads, nil
}

func crop(r *Raster, y0, x0, h, w int) *Raster {
	dst := newRaster(h, w, r.C)
	rowLen := w * r.C
	for y := range h {
		src := r.offset(y0+y, x0)
		copy(dst.Pix[y*rowLen:(y+1)*rowLen], r.Pix[src:src+rowLen])
	}
	return dst
}

// Merge joins four quadrants back into one raster: nw|ne on top of sw|se.
func Merge(nw, ne, sw, se *Raster) (*Raster, error) {
	c := nw.C
	if ne.C != c || sw.C != c || se.C != c {
		return nil, errors.New("quadrant channel counts differ").
			WithType(ErrTypeShapeMismatch).
			WithTag("channels", []int{nw.C, ne.C, sw.C, se.C})
	}
	if nw.H != ne.H || sw.H != se.H || nw.W+ne.W != sw.W+se.W {
		return nil, errors.New("quadrant shapes cannot be combined").
			WithType(ErrTypeShapeMismatch).
			WithTag("nw", [2]int{nw.H, nw.W}).
			WithTag("ne", [2]int{ne.H, ne.W}).
			WithTag("sw", [2]int{sw.H, sw.W}).
			WithTag("se", [2]int{se.H, se.W})
	}

	dst := newRaster(nw.H+sw.H, nw.W+ne.W, c)
	paste(dst, nw, 0, 0)
	paste(dst, ne, 0, nw.W)
	paste(dst, sw, nw.H, 0)
	paste(dst, se, nw.H, sw.W)
	return dst, nil
}

func paste(dst, src *Raster, y0, x0 int) {
	rowLen := src.W * src.C
	for y := range src.H {
		off := dst.offset(y0+y, x0)
		copy(dst.Pix[off:off+rowLen], src.Pix[y*rowLen:(y+1)*rowLen])
	}
}

// ============ COLOUR ============

// MeanColor returns the per-channel mean of r, truncated to 8 bits. Opaque
// alpha is appended for 3-channel rasters.
func MeanColor(r *Raster) (color.NRGBA, error) {
	if r.C != 3 && r.C != 4 {
		return color.NRGBA{}, errors.New("mean color requires RGB or RGBA regions").
			WithType(ErrTypeInvalidChannel).
			WithTag("channels", r.C)
	}
	n := r.H * r.W
	if n == 0 {
		return color.NRGBA{}, errors.New("mean color of an empty region").
			WithType(ErrTypeInvalidShape).
			WithTag("height", r.H).
			WithTag("width", r.W)
	}

	var sum [4]uint64
	for i := 0; i < len(r.Pix); i += r.C {
		for ch := range r.C {
			sum[ch] += uint64(r.Pix[i+ch])
		}
	}

	mean := color.NRGBA{
		R: uint8(sum[0] / uint64(n)),
		G: uint8(sum[1] / uint64(n)),
		B: uint8(sum[2] / uint64(n)),
		A: 255,
	}
	if r.C == 4 {
		mean.A = uint8(sum[3] / uint64(n))
	}
	return mean, nil
}

// IsUniform reports whether every pixel of r equals its first pixel.
func IsUniform(r *Raster) bool {
	if len(r.Pix) <= r.C {
		return true
	}
	first := r.Pix[:r.C]
	for i := r.C; i < len(r.Pix); i += r.C {
		for ch := range r.C {
			if r.Pix[i+ch] != first[ch] {
				return false
			}
		}
	}
	return true
}

// IsWhiteish reports whether every colour channel of px is at least
// threshold. The alpha channel of a 4-sample pixel is ignored.
func IsWhiteish(px []uint8, threshold uint8) (bool, error) {
	if len(px) != 3 && len(px) != 4 {
		return false, errors.New("pixel must have 3 or 4 channels").
			WithType(ErrTypeInvalidPixel).
			WithTag("channels", len(px))
	}
	for _, v := range px[:3] {
		if v < threshold {
			return false, nil
		}
	}
	return true, nil
}

// IsWhite reports whether every colour channel of px is 255.
func IsWhite(px []uint8) (bool, error) {
	return IsWhiteish(px, 255)
}

func colorSamples(c color.NRGBA) []uint8 {
	return []uint8{c.R, c.G, c.B, c.A}
}

// ============ OUTLINE ============

// Outline paints the outermost ring of r opaque white.
func Outline(r *Raster) *Raster {
	return OutlineWith(r, white)
}

// OutlineWith paints the outermost ring of r with c in place and returns r.
// Regions smaller than 3x3 are returned unchanged.
func OutlineWith(r *Raster, c color.NRGBA) *Raster {
	if r.H < 3 || r.W < 3 || (r.C != 3 && r.C != 4) {
		return r
	}
	sample := colorSamples(c)[:r.C]
	for x := range r.W {
		copy(r.Pixel(0, x), sample)
		copy(r.Pixel(r.H-1, x), sample)
	}
	for y := 1; y < r.H-1; y++ {
		copy(r.Pixel(y, 0), sample)
		copy(r.Pixel(y, r.W-1), sample)
	}
	return r
}
