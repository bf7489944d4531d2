package quadmosaic

import (
	"context"
	"image/color"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/require"
)

func TestRenderBlocks(t *testing.T) {
	grey := color.NRGBA{R: 200, G: 210, B: 220, A: 255}
	frame := blocks(3, navy, grey)

	tree, err := Build(frame, 2)
	require.NoError(t, err)
	require.Len(t, tree.Leaves(), 4)

	for _, leaf := range tree.Leaves() {
		mean, err := MeanColor(leaf.Region)
		require.NoError(t, err)
		require.Equal(t, leaf.Region.At(0, 0), mean)
	}

	overlay := &Overlay{ID: 0, Image: solid(8, 8, 4, red)}
	out, err := tree.Render(context.Background(), RenderOptions{
		Level:   2,
		Overlay: overlay,
	})
	require.NoError(t, err)
	require.Equal(t, 4, out.H)
	require.Equal(t, 4, out.W)
	require.Equal(t, 4, out.C)

	// Navy blocks are flat, grey blocks are whiteish and get the overlay.
	for y := range 4 {
		for x := range 4 {
			expected := colorSamples(navy)
			if (y/2+x/2)%2 == 1 {
				expected = colorSamples(red)
			}
			require.Equal(t, expected, out.Pixel(y, x), "pixel %d,%d", y, x)
		}
	}
}

func TestRenderLevels(t *testing.T) {
	frame := gradient(24, 18, 3)
	tree, err := Build(frame, 3)
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("level 0 is a single tile", func(t *testing.T) {
		out, err := tree.Render(ctx, RenderOptions{Level: 0, WhiteishThreshold: 255})
		require.NoError(t, err)
		require.Equal(t, 24, out.H)
		require.Equal(t, 18, out.W)
		require.True(t, IsUniform(out))
	})

	t.Run("full level keeps the resolution", func(t *testing.T) {
		out, err := tree.Render(ctx, RenderOptions{Level: tree.DepthLimit, WhiteishThreshold: 255})
		require.NoError(t, err)
		require.Equal(t, 24, out.H)
		require.Equal(t, 18, out.W)
		require.False(t, IsUniform(out))
	})

	t.Run("level beyond the leaves renders the leaves", func(t *testing.T) {
		full, err := tree.Render(ctx, RenderOptions{Level: tree.DepthLimit})
		require.NoError(t, err)
		deeper, err := tree.Render(ctx, RenderOptions{Level: tree.DepthLimit + 4})
		require.NoError(t, err)
		require.True(t, full.Equal(deeper))
	})

	t.Run("parallel matches sequential", func(t *testing.T) {
		overlay := &Overlay{ID: 3, Image: gradient(5, 7, 4)}
		opt := RenderOptions{
			Level:             tree.DepthLimit,
			Overlay:           overlay,
			WhiteishThreshold: 60,
			Outline:           true,
		}
		sequential, err := tree.Render(ctx, opt)
		require.NoError(t, err)

		opt.ParallelDepth = 2
		parallel, err := tree.Render(ctx, opt)
		require.NoError(t, err)
		require.True(t, sequential.Equal(parallel))
	})

	t.Run("empty tree", func(t *testing.T) {
		_, err := (&Tree{}).Render(ctx, RenderOptions{})
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidShape, errors.Type(err))
	})
}

func TestRenderTiles(t *testing.T) {
	ctx := context.Background()

	t.Run("whiteish without overlay is white", func(t *testing.T) {
		tree, err := Build(solid(4, 4, 3, color.NRGBA{R: 150, G: 150, B: 150, A: 255}), 2)
		require.NoError(t, err)

		out, err := tree.Render(ctx, RenderOptions{Level: 2})
		require.NoError(t, err)
		require.True(t, Fill(4, 4, white).Equal(out))
	})

	t.Run("threshold gates overlays", func(t *testing.T) {
		grey := color.NRGBA{R: 150, G: 150, B: 150, A: 255}
		tree, err := Build(solid(4, 4, 3, grey), 2)
		require.NoError(t, err)

		out, err := tree.Render(ctx, RenderOptions{WhiteishThreshold: 200})
		require.NoError(t, err)
		require.True(t, Fill(4, 4, grey).Equal(out))
	})

	t.Run("outline on flat tiles", func(t *testing.T) {
		tree, err := Build(solid(4, 4, 3, navy), 2)
		require.NoError(t, err)

		out, err := tree.Render(ctx, RenderOptions{Outline: true, OutlineColor: red})
		require.NoError(t, err)
		require.Equal(t, colorSamples(red), out.Pixel(0, 0))
		require.Equal(t, colorSamples(navy), out.Pixel(1, 1))
	})

	t.Run("palette snapping", func(t *testing.T) {
		tree, err := Build(solid(4, 4, 3, color.NRGBA{R: 10, G: 10, B: 90, A: 255}), 2)
		require.NoError(t, err)

		palette := []colorful.Color{
			{R: 1, G: 0, B: 0},
			{R: 0, G: 0, B: 0.5},
			{R: 0, G: 1, B: 0},
		}
		out, err := tree.Render(ctx, RenderOptions{Palette: palette})
		require.NoError(t, err)
		require.Equal(t, []uint8{0, 0, 128, 255}, out.Pixel(2, 2))
	})

	t.Run("overlay must be rgba", func(t *testing.T) {
		tree, err := Build(solid(4, 4, 3, navy), 2)
		require.NoError(t, err)

		_, err = tree.Render(ctx, RenderOptions{
			Overlay: &Overlay{Image: solid(2, 2, 3, red)},
		})
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidChannel, errors.Type(err))
	})

	t.Run("output does not alias the cache", func(t *testing.T) {
		tree, err := Build(solid(4, 4, 3, white), 2)
		require.NoError(t, err)

		cache := NewOverlayCache(nil)
		overlay := &Overlay{ID: 1, Image: solid(4, 4, 4, red)}
		out, err := tree.Render(ctx, RenderOptions{Overlay: overlay, Cache: cache})
		require.NoError(t, err)
		out.Pix[0] = 0

		cached, err := cache.Resolve(1, 4, 4, overlay.Image)
		require.NoError(t, err)
		require.Equal(t, uint8(255), cached.Pix[0])
	})
}

func TestSnapToPalette(t *testing.T) {
	palette := []colorful.Color{
		{R: 0, G: 0, B: 0},
		{R: 1, G: 1, B: 1},
	}
	require.Equal(t, color.NRGBA{A: 77}, SnapToPalette(color.NRGBA{R: 30, G: 20, B: 10, A: 77}, palette))
	require.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, SnapToPalette(color.NRGBA{R: 230, G: 240, B: 250, A: 255}, palette))

	c := color.NRGBA{R: 1, G: 2, B: 3, A: 4}
	require.Equal(t, c, SnapToPalette(c, nil))
}
