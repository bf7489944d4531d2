package quadmosaic

import (
	"image"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
)

// Resampler returns a copy of src scaled to h rows and w columns with the
// same channel count.
type Resampler func(src *Raster, h, w int) (*Raster, error)

// ResamplerByName maps a filter name to a Resampler. The empty name selects
// area resampling.
func ResamplerByName(name string) (Resampler, error) {
	switch name {
	case "", "area":
		return AreaResample, nil
	case "nearest":
		return KernelResampler(draw.NearestNeighbor), nil
	case "approx-bilinear":
		return KernelResampler(draw.ApproxBiLinear), nil
	case "bilinear":
		return KernelResampler(draw.BiLinear), nil
	case "catmullrom":
		return KernelResampler(draw.CatmullRom), nil
	default:
		return nil, errors.New("unknown resample filter").
			WithType(ErrTypeInvalidOptions).
			WithTag("filter", name)
	}
}

func checkResample(src *Raster, h, w int) error {
	if src.C != 3 && src.C != 4 {
		return errors.New("resample requires RGB or RGBA images").
			WithType(ErrTypeInvalidChannel).
			WithTag("channels", src.C)
	}
	if h < 0 || w < 0 || (h*w > 0 && src.H*src.W == 0) {
		return errors.New("invalid resample size").
			WithType(ErrTypeInvalidShape).
			WithTag("from", [2]int{src.H, src.W}).
			WithTag("to", [2]int{h, w})
	}
	return nil
}

// ============ AREA ============

// AreaResample scales src by averaging every source pixel over the area it
// covers in the destination. Each axis gets a coverage weight matrix W so
// that every channel plane P is resampled as Wy * P * Wx^T.
func AreaResample(src *Raster, h, w int) (*Raster, error) {
	if err := checkResample(src, h, w); err != nil {
		return nil, err
	}
	if h == 0 || w == 0 {
		return newRaster(h, w, src.C), nil
	}
	if h == src.H && w == src.W {
		return src.Clone(), nil
	}

	wy := areaWeights(h, src.H)
	wx := areaWeights(w, src.W)
	dst := newRaster(h, w, src.C)

	plane := make([]float64, src.H*src.W)
	var rows, out mat.Dense
	for ch := range src.C {
		for i := range plane {
			plane[i] = float64(src.Pix[i*src.C+ch])
		}
		p := mat.NewDense(src.H, src.W, plane)
		rows.Reset()
		rows.Mul(wy, p)
		out.Reset()
		out.Mul(&rows, wx.T())
		for y := range h {
			for x := range w {
				v := math.Round(out.At(y, x))
				dst.Pix[dst.offset(y, x)+ch] = uint8(max(0, min(255, v)))
			}
		}
	}
	return dst, nil
}

// areaWeights returns an outN x inN matrix whose row i holds the share of
// each input cell covered by output cell i. Rows sum to one.
func areaWeights(outN, inN int) *mat.Dense {
	scale := float64(inN) / float64(outN)
	m := mat.NewDense(outN, inN, nil)
	for i := range outN {
		start := float64(i) * scale
		end := float64(i+1) * scale
		j0 := int(math.Floor(start))
		j1 := min(int(math.Ceil(end)), inN)
		for j := j0; j < j1; j++ {
			overlap := min(end, float64(j+1)) - max(start, float64(j))
			if overlap > 0 {
				m.Set(i, j, overlap/scale)
			}
		}
	}
	return m
}

// ============ KERNEL ============

// KernelResampler adapts an x/image/draw interpolator.
func KernelResampler(interp draw.Interpolator) Resampler {
	return func(src *Raster, h, w int) (*Raster, error) {
		if err := checkResample(src, h, w); err != nil {
			return nil, err
		}
		if h == 0 || w == 0 {
			return newRaster(h, w, src.C), nil
		}
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		interp.Scale(dst, dst.Bounds(), src.NRGBA(), src.Bounds(), draw.Src, nil)
		return FromImage(dst, src.C)
	}
}
