package quadmosaic

import (
	"image"
	"image/color"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/image/draw"
)

// Raster is an 8-bit pixel grid with 3 (RGB) or 4 (RGBA, non-premultiplied)
// interleaved channels. A 3-channel raster is opaque.
type Raster struct {
	H, W int
	C    int
	Pix  []uint8 // Interleaved samples, len = H*W*C
}

// NewRaster allocates a zeroed raster. The channel count must be 3 or 4.
func NewRaster(h, w, c int) (*Raster, error) {
	if c != 3 && c != 4 {
		return nil, errors.New("raster requires 3 or 4 channels").
			WithType(ErrTypeInvalidChannel).
			WithTag("channels", c)
	}
	if h < 0 || w < 0 {
		return nil, errors.New("raster dimensions must not be negative").
			WithType(ErrTypeInvalidShape).
			WithTag("height", h).
			WithTag("width", w)
	}
	return newRaster(h, w, c), nil
}

func newRaster(h, w, c int) *Raster {
	return &Raster{
		H:   h,
		W:   w,
		C:   c,
		Pix: make([]uint8, h*w*c),
	}
}

// Fill returns an RGBA raster of the given size filled with c.
func Fill(h, w int, c color.NRGBA) *Raster {
	r := newRaster(h, w, 4)
	if len(r.Pix) == 0 {
		return r
	}
	r.Pix[0], r.Pix[1], r.Pix[2], r.Pix[3] = c.R, c.G, c.B, c.A
	// Doubling copy; each round copies everything written so far.
	for n := 4; n < len(r.Pix); n *= 2 {
		copy(r.Pix[n:], r.Pix[:n])
	}
	return r
}

func (r *Raster) offset(y, x int) int {
	return (y*r.W + x) * r.C
}

// Pixel returns the samples of the pixel at row y, column x. The slice
// aliases the raster.
func (r *Raster) Pixel(y, x int) []uint8 {
	off := r.offset(y, x)
	return r.Pix[off : off+r.C : off+r.C]
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	pix := make([]uint8, len(r.Pix))
	copy(pix, r.Pix)
	return &Raster{H: r.H, W: r.W, C: r.C, Pix: pix}
}

// Equal reports whether both rasters have the same shape and samples.
func (r *Raster) Equal(o *Raster) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.H != o.H || r.W != o.W || r.C != o.C || len(r.Pix) != len(o.Pix) {
		return false
	}
	for i := range r.Pix {
		if r.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

func (r *Raster) ColorModel() color.Model {
	return color.NRGBAModel
}

func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.W, r.H)
}

func (r *Raster) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= r.W || y >= r.H {
		return color.NRGBA{}
	}
	px := r.Pixel(y, x)
	switch r.C {
	case 3:
		return color.NRGBA{R: px[0], G: px[1], B: px[2], A: 255}
	case 4:
		return color.NRGBA{R: px[0], G: px[1], B: px[2], A: px[3]}
	default:
		return color.NRGBA{}
	}
}

// NRGBA copies the raster into an *image.NRGBA.
func (r *Raster) NRGBA() *image.NRGBA {
	dst := image.NewNRGBA(r.Bounds())
	if r.C == 4 {
		copy(dst.Pix, r.Pix)
		return dst
	}
	for y := range r.H {
		for x := range r.W {
			src := r.Pixel(y, x)
			off := dst.PixOffset(x, y)
			dst.Pix[off] = src[0]
			dst.Pix[off+1] = src[1]
			dst.Pix[off+2] = src[2]
			dst.Pix[off+3] = 255
		}
	}
	return dst
}

// FromImage converts img into a raster with c channels. With c == 3 the
// alpha of img is dropped.
func FromImage(img image.Image, c int) (*Raster, error) {
	if c != 3 && c != 4 {
		return nil, errors.New("raster requires 3 or 4 channels").
			WithType(ErrTypeInvalidChannel).
			WithTag("channels", c)
	}

	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) || nrgba.Stride != 4*b.Dx() {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	h, w := b.Dy(), b.Dx()
	r := newRaster(h, w, c)
	if c == 4 {
		copy(r.Pix, nrgba.Pix)
		return r, nil
	}
	for i := range h * w {
		r.Pix[i*3] = nrgba.Pix[i*4]
		r.Pix[i*3+1] = nrgba.Pix[i*4+1]
		r.Pix[i*3+2] = nrgba.Pix[i*4+2]
	}
	return r, nil
}

// WithAlpha returns a 4-channel copy of r. A 4-channel raster is returned
// as a clone.
func (r *Raster) WithAlpha() *Raster {
	if r.C == 4 {
		return r.Clone()
	}
	dst := newRaster(r.H, r.W, 4)
	for i := range r.H * r.W {
		dst.Pix[i*4] = r.Pix[i*r.C]
		dst.Pix[i*4+1] = r.Pix[i*r.C+1]
		dst.Pix[i*4+2] = r.Pix[i*r.C+2]
		dst.Pix[i*4+3] = 255
	}
	return dst
}
