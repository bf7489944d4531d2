package utils

import (
	"image"
	"image/color"
	"math"
	"slices"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/setanarut/quadmosaic"
)

type PaletteMethod int

const (
	PaletteMethodDominantColor PaletteMethod = iota
	PaletteMethodKMeans
)

func (m PaletteMethod) String() string {
	switch m {
	case PaletteMethodKMeans:
		return "kmeans"
	default:
		return "dominantcolor"
	}
}

// ParsePaletteMethod accepts the names returned by PaletteMethod.String.
func ParsePaletteMethod(s string) (PaletteMethod, error) {
	switch strings.ToLower(s) {
	case "", "dominantcolor":
		return PaletteMethodDominantColor, nil
	case "kmeans":
		return PaletteMethodKMeans, nil
	default:
		return 0, errors.New("unknown palette method").
			WithType(quadmosaic.ErrTypeInvalidOptions).
			WithTag("method", s)
	}
}

type weightedColor struct {
	Col    colorful.Color
	Weight float64
}

// SortPaletteByBrightness orders colors from darkest to brightest by
// relative luminance.
func SortPaletteByBrightness(palette []colorful.Color) {
	luminance := func(c colorful.Color) float64 {
		r, g, b := c.LinearRgb()
		return 0.2126*r + 0.7152*g + 0.0722*b
	}
	slices.SortFunc(palette, func(a, b colorful.Color) int {
		ya, yb := luminance(a), luminance(b)
		switch {
		case ya < yb:
			return -1
		case ya > yb:
			return 1
		default:
			return 0
		}
	})
}

// ExtractPalette returns up to k mutually distinct colors of img. The k-means
// method falls back to dominant colors when it finds nothing.
func ExtractPalette(img image.Image, k int, method PaletteMethod) []colorful.Color {
	if method == PaletteMethodKMeans {
		if p := ExtractKMeansPalette(img, k); len(p) != 0 {
			return p
		}
		logs.WithTag("k", k).Warn("kmeans returned an empty palette, falling back to dominantcolor")
	}
	return ExtractDominantPalette(img, k)
}

func ExtractDominantPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}

	found := dominantcolor.FindWeight(img, max(24, k*8))
	if len(found) == 0 {
		found = []dominantcolor.Color{{
			RGBA:   color.RGBA{R: 128, G: 128, B: 128, A: 255},
			Weight: 1.0,
		}}
	}

	candidates := make([]weightedColor, 0, len(found))
	for _, c := range found {
		col, _ := colorful.MakeColor(c.RGBA)
		candidates = append(candidates, weightedColor{Col: col.Clamped(), Weight: c.Weight})
	}
	return SelectDiverseWeightedColors(candidates, k)
}

func ExtractKMeansPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}
	samples := sampleOpaque(img, 12000)
	if len(samples) == 0 {
		return nil
	}

	km := kmeans.New()
	cc, err := km.Partition(samples, min(max(k*4, k+2), len(samples)))
	if err != nil || len(cc) == 0 {
		return nil
	}

	candidates := make([]weightedColor, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 || len(c.Observations) == 0 {
			continue
		}
		candidates = append(candidates, weightedColor{
			Col:    colorful.Color{R: c.Center[0], G: c.Center[1], B: c.Center[2]}.Clamped(),
			Weight: float64(len(c.Observations)),
		})
	}
	// Most populated clusters first.
	slices.SortStableFunc(candidates, func(a, b weightedColor) int {
		switch {
		case a.Weight > b.Weight:
			return -1
		case a.Weight < b.Weight:
			return 1
		default:
			return 0
		}
	})
	return SelectDiverseWeightedColors(candidates, k)
}

// sampleOpaque returns at most limit non-transparent pixels of img as
// normalized RGB observations, taken on a regular grid.
func sampleOpaque(img image.Image, limit int) clusters.Observations {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	step := 1
	if w*h > limit {
		step = int(math.Sqrt(float64(w*h)/float64(limit))) + 1
	}

	obs := make(clusters.Observations, 0, min(w*h, limit))
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				continue
			}
			obs = append(obs, clusters.Coordinates{
				float64(c.R) / 255.0,
				float64(c.G) / 255.0,
				float64(c.B) / 255.0,
			})
		}
	}
	return obs
}

// SelectDiverseWeightedColors greedily picks k candidates: the heaviest
// first, then each time the one farthest in Lab from those already picked,
// with distance scaled up for heavier candidates.
func SelectDiverseWeightedColors(cands []weightedColor, k int) []colorful.Color {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	k = min(k, len(cands))

	maxW := 0.0
	for i := range cands {
		cands[i].Col = cands[i].Col.Clamped()
		cands[i].Weight = max(cands[i].Weight, 1e-6)
		maxW = max(maxW, cands[i].Weight)
	}

	picked := make([]bool, len(cands))
	// nearest[i] is the Lab distance from candidate i to the closest pick.
	nearest := make([]float64, len(cands))
	for i := range nearest {
		nearest[i] = math.MaxFloat64
	}

	out := make([]colorful.Color, 0, k)
	pick := func(i int) {
		picked[i] = true
		out = append(out, cands[i].Col)
		for j := range cands {
			if !picked[j] {
				nearest[j] = min(nearest[j], cands[j].Col.DistanceLab(cands[i].Col))
			}
		}
	}

	seed := 0
	for i := range cands {
		if cands[i].Weight > cands[seed].Weight {
			seed = i
		}
	}
	pick(seed)

	for len(out) < k {
		best, bestScore := -1, -1.0
		for i := range cands {
			if picked[i] {
				continue
			}
			score := nearest[i] * (0.55 + 0.45*math.Sqrt(cands[i].Weight/maxW))
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		pick(best)
	}
	return out
}
