package quadmosaic

import (
	"context"
	"io"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/sync/errgroup"
)

// Stats summarises a run.
type Stats struct {
	// Frames returned by the source, unreadable ones excluded.
	Read int
	// Frames written to the sink.
	Written int
	// Unreadable frames skipped.
	Skipped int
	// Frames whose render failed.
	Failed int
}

type frameJob struct {
	seq   int
	frame *Raster
}

type frameResult struct {
	seq   int
	frame *Raster
	err   error
}

// commitState tracks the writer side of a run.
type commitState struct {
	written  int
	failed   int
	failures int
}

// Run renders every frame of src into sink, in source order. With
// Options.Workers > 1 frames render concurrently and a reorder buffer
// restores the order before writing.
func (r *Renderer) Run(ctx context.Context, src FrameSource, sink FrameSink) (Stats, error) {
	if r.Options.Workers <= 1 {
		return r.runSequential(ctx, src, sink)
	}
	return r.runParallel(ctx, src, sink)
}

func (r *Renderer) runSequential(ctx context.Context, src FrameSource, sink FrameSink) (Stats, error) {
	var stats Stats
	var state commitState

	for seq := 0; ; {
		if err := ctx.Err(); err != nil {
			return state.stats(stats), err
		}

		frame, err := r.next(src, seq, &stats)
		if err == io.EOF {
			break
		}
		if err != nil {
			return state.stats(stats), err
		}
		if frame == nil {
			continue
		}

		out, err := r.RenderFrame(ctx, seq, frame)
		if err := r.commit(ctx, sink, frameResult{seq: seq, frame: out, err: err}, &state); err != nil {
			return state.stats(stats), err
		}
		seq++
	}
	return state.stats(stats), nil
}

func (r *Renderer) runParallel(ctx context.Context, src FrameSource, sink FrameSink) (Stats, error) {
	workers := r.Options.Workers
	jobs := make(chan frameJob, workers)
	results := make(chan frameResult, workers)

	var readStats Stats
	var state commitState

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for seq := 0; ; {
			frame, err := r.next(src, seq, &readStats)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if frame == nil {
				continue
			}
			select {
			case jobs <- frameJob{seq: seq, frame: frame}:
			case <-gctx.Done():
				return gctx.Err()
			}
			seq++
		}
	})

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for job := range jobs {
				out, err := r.RenderFrame(gctx, job.seq, job.frame)
				select {
				case results <- frameResult{seq: job.seq, frame: out, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		pending := make(map[int]frameResult)
		next := 0
		for res := range results {
			pending[res.seq] = res
			for {
				p, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				if err := r.commit(gctx, sink, p, &state); err != nil {
					return err
				}
				next++
			}
		}
		return nil
	})

	err := g.Wait()
	return state.stats(readStats), err
}

// next reads one frame. It returns a nil frame and a nil error for
// unreadable frames, which are counted and logged.
func (r *Renderer) next(src FrameSource, seq int, stats *Stats) (*Raster, error) {
	frame, err := src.Next()
	switch {
	case err == nil:
		stats.Read++
		return frame, nil
	case err == io.EOF:
		return nil, io.EOF
	case errors.IsType(err, ErrTypeFrameUnreadable):
		stats.Skipped++
		instrumentFrameError(err)
		logs.WithTag("frame", seq).Warn(err)
		return nil, nil
	default:
		return nil, errors.New("reading frame failed").
			WithTag("frame", seq).
			Wrap(err)
	}
}

// commit writes a rendered frame or records its failure.
func (r *Renderer) commit(ctx context.Context, sink FrameSink, res frameResult, state *commitState) error {
	if res.err != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		state.failed++
		state.failures++
		instrumentFrameError(res.err)
		logs.WithTag("frame", res.seq).
			WithTag("error_type", errors.Type(res.err)).
			Error(errors.New("rendering frame failed").Wrap(res.err))

		if state.failures > r.Options.MaxConsecutiveFailures {
			return errors.New("too many consecutive frame failures").
				WithType(ErrTypeTooManyFailures).
				WithTag("frame", res.seq).
				WithTag("failures", state.failures).
				Wrap(res.err)
		}
		return nil
	}

	state.failures = 0
	if err := sink.WriteFrame(state.written, res.frame); err != nil {
		return errors.New("writing frame failed").
			WithTag("frame", res.seq).
			WithTag("index", state.written).
			Wrap(err)
	}
	if interval := r.Options.ProgressInterval; interval > 0 && state.written%interval == 0 {
		logs.WithTag("frame", res.seq).
			WithTag("index", state.written).
			WithTag("overlay_cache_entries", r.Cache.Len()).
			Info("rendering progress")
	}
	state.written++
	return nil
}

func (s commitState) stats(read Stats) Stats {
	read.Written = s.written
	read.Failed = s.failed
	return read
}
