package quadmosaic

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

type sourceItem struct {
	frame *Raster
	err   error
}

type sliceSource struct {
	items []sourceItem
	pos   int
}

func (s *sliceSource) Next() (*Raster, error) {
	if s.pos >= len(s.items) {
		return nil, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return item.frame, item.err
}

type memorySink struct {
	mutex   sync.Mutex
	indices []int
	frames  []*Raster
	failAt  int
}

func (s *memorySink) WriteFrame(index int, frame *Raster) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.failAt > 0 && index == s.failAt {
		return errors.New("disk full")
	}
	s.indices = append(s.indices, index)
	s.frames = append(s.frames, frame)
	return nil
}

func unreadable(i int) sourceItem {
	return sourceItem{err: errors.New("corrupt frame").
		WithType(ErrTypeFrameUnreadable).
		WithTag("path", fmt.Sprintf("frame%d.png", i))}
}

func twoChannel() sourceItem {
	return sourceItem{frame: &Raster{H: 4, W: 4, C: 2, Pix: make([]uint8, 32)}}
}

// testFrames returns distinct frames with bright and dark quadrants.
func testFrames(n int) []*Raster {
	frames := make([]*Raster, n)
	for i := range frames {
		r := gradient(16, 12, 3)
		for y := range 8 {
			for x := range 6 {
				copy(r.Pixel(y, x), []uint8{250, 250, uint8(200 + i)})
			}
		}
		frames[i] = r
	}
	return frames
}

func testOverlays() []*Raster {
	return []*Raster{
		solid(5, 5, 4, red),
		gradient(9, 7, 4),
		solid(3, 3, 3, navy),
	}
}

func testOptions(workers int) Options {
	opt := DefaultOptions()
	opt.DepthLimit = 3
	opt.TargetLevel = 3
	opt.FramesPerSecond = 30
	opt.BeatsPerSecond = 2.3
	opt.Workers = workers
	opt.ProgressInterval = 0
	return opt
}

func items(frames []*Raster) []sourceItem {
	items := make([]sourceItem, len(frames))
	for i, f := range frames {
		items[i] = sourceItem{frame: f}
	}
	return items
}

func TestNewRenderer(t *testing.T) {
	t.Run("no overlays", func(t *testing.T) {
		_, err := NewRenderer(testOptions(1), nil)
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidTempo, errors.Type(err))
	})

	t.Run("zero frame rate", func(t *testing.T) {
		opt := testOptions(1)
		opt.FramesPerSecond = 0
		_, err := NewRenderer(opt, testOverlays())
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidTempo, errors.Type(err))
	})

	t.Run("unknown resample filter", func(t *testing.T) {
		opt := testOptions(1)
		opt.Resample = "sinc"
		_, err := NewRenderer(opt, testOverlays())
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidOptions, errors.Type(err))
	})

	t.Run("negative depth", func(t *testing.T) {
		opt := testOptions(1)
		opt.DepthLimit = -1
		_, err := NewRenderer(opt, testOverlays())
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidOptions, errors.Type(err))
	})

	t.Run("overlays become rgba with stable ids", func(t *testing.T) {
		r, err := NewRenderer(testOptions(1), testOverlays())
		require.NoError(t, err)
		require.Len(t, r.Overlays, 3)
		for i, o := range r.Overlays {
			require.Equal(t, i, o.ID)
			require.Equal(t, 4, o.Image.C)
		}
	})

	t.Run("two channel overlay", func(t *testing.T) {
		overlays := append(testOverlays(), &Raster{H: 1, W: 1, C: 2, Pix: make([]uint8, 2)})
		_, err := NewRenderer(testOptions(1), overlays)
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidChannel, errors.Type(err))
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	frames := testFrames(12)

	expected := make([]*Raster, len(frames))
	ref, err := NewRenderer(testOptions(1), testOverlays())
	require.NoError(t, err)
	for i, f := range frames {
		expected[i], err = ref.RenderFrame(ctx, i, f)
		require.NoError(t, err)
	}

	for _, workers := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			r, err := NewRenderer(testOptions(workers), testOverlays())
			require.NoError(t, err)

			var sink memorySink
			stats, err := r.Run(ctx, &sliceSource{items: items(frames)}, &sink)
			require.NoError(t, err)
			require.Equal(t, Stats{Read: 12, Written: 12}, stats)

			for i := range frames {
				require.Equal(t, i, sink.indices[i])
				require.True(t, expected[i].Equal(sink.frames[i]), "frame %d", i)
			}
		})
	}

	t.Run("overlays follow the tempo", func(t *testing.T) {
		var seen []int
		for i := range frames {
			idx, err := ref.Options.Tempo().OverlayIndex(i, 3)
			require.NoError(t, err)
			seen = append(seen, idx)
		}
		require.Contains(t, seen, 0)
		require.Contains(t, seen, 1)
		require.Contains(t, seen, 2)
	})
}

func TestRunSkipsUnreadableFrames(t *testing.T) {
	ctx := context.Background()
	frames := testFrames(4)

	src := []sourceItem{
		unreadable(0),
		{frame: frames[0]},
		{frame: frames[1]},
		unreadable(3),
		unreadable(4),
		{frame: frames[2]},
		{frame: frames[3]},
	}

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			r, err := NewRenderer(testOptions(workers), testOverlays())
			require.NoError(t, err)

			var sink memorySink
			stats, err := r.Run(ctx, &sliceSource{items: src}, &sink)
			require.NoError(t, err)
			require.Equal(t, Stats{Read: 4, Written: 4, Skipped: 3}, stats)
			require.Equal(t, []int{0, 1, 2, 3}, sink.indices)

			// The tempo counts readable frames only.
			for i, f := range frames {
				expected, err := r.RenderFrame(ctx, i, f)
				require.NoError(t, err)
				require.True(t, expected.Equal(sink.frames[i]), "frame %d", i)
			}
		})
	}
}

func TestRunFailures(t *testing.T) {
	ctx := context.Background()
	frames := testFrames(4)

	t.Run("isolated failures are tolerated", func(t *testing.T) {
		for _, workers := range []int{1, 2} {
			opt := testOptions(workers)
			opt.MaxConsecutiveFailures = 1
			r, err := NewRenderer(opt, testOverlays())
			require.NoError(t, err)

			src := []sourceItem{
				{frame: frames[0]},
				twoChannel(),
				{frame: frames[1]},
				twoChannel(),
				{frame: frames[2]},
			}
			var sink memorySink
			stats, err := r.Run(ctx, &sliceSource{items: src}, &sink)
			require.NoError(t, err)
			require.Equal(t, Stats{Read: 5, Written: 3, Failed: 2}, stats)
			require.Equal(t, []int{0, 1, 2}, sink.indices)
		}
	})

	t.Run("consecutive failures abort", func(t *testing.T) {
		for _, workers := range []int{1, 4} {
			opt := testOptions(workers)
			opt.MaxConsecutiveFailures = 2
			r, err := NewRenderer(opt, testOverlays())
			require.NoError(t, err)

			src := []sourceItem{
				{frame: frames[0]},
				twoChannel(),
				twoChannel(),
				twoChannel(),
				{frame: frames[1]},
			}
			var sink memorySink
			stats, err := r.Run(ctx, &sliceSource{items: src}, &sink)
			require.Error(t, err)
			require.Equal(t, ErrTypeTooManyFailures, errors.Type(err))
			require.Equal(t, 3, stats.Failed)
			require.Equal(t, 1, stats.Written)
		}
	})

	t.Run("source errors abort", func(t *testing.T) {
		r, err := NewRenderer(testOptions(1), testOverlays())
		require.NoError(t, err)

		src := []sourceItem{
			{frame: frames[0]},
			{err: errors.New("decoder crashed")},
			{frame: frames[1]},
		}
		var sink memorySink
		stats, err := r.Run(ctx, &sliceSource{items: src}, &sink)
		require.Error(t, err)
		require.Equal(t, 1, stats.Written)
	})

	t.Run("sink errors abort", func(t *testing.T) {
		r, err := NewRenderer(testOptions(2), testOverlays())
		require.NoError(t, err)

		sink := memorySink{failAt: 2}
		stats, err := r.Run(ctx, &sliceSource{items: items(frames)}, &sink)
		require.Error(t, err)
		require.Equal(t, 2, stats.Written)
	})

	t.Run("cancelled context", func(t *testing.T) {
		r, err := NewRenderer(testOptions(1), testOverlays())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(ctx)
		cancel()

		var sink memorySink
		_, err = r.Run(ctx, &sliceSource{items: items(frames)}, &sink)
		require.Equal(t, context.Canceled, err)
		require.Empty(t, sink.indices)
	})
}

func TestRunLogsProgress(t *testing.T) {
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	opt := testOptions(1)
	opt.ProgressInterval = 2
	r, err := NewRenderer(opt, testOverlays())
	require.NoError(t, err)

	var sink memorySink
	_, err = r.Run(context.Background(), &sliceSource{items: items(testFrames(3))}, &sink)
	require.NoError(t, err)

	out := b.String()
	require.Contains(t, out, `"index":0`)
	require.Contains(t, out, `"index":2`)
	require.NotContains(t, out, `"index":1`)
	require.Contains(t, out, "overlay_cache_entries")
	t.Log(out)
}
