package video

import (
	"context"
	"io"
	"os/exec"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/setanarut/quadmosaic"
)

// Source decodes a video with ffmpeg and reads raw RGB frames from its
// stdout.
type Source struct {
	Info Info

	cmd    *exec.Cmd
	stdout io.ReadCloser
	frame  []byte
	done   bool
}

// SourceOptions tunes the decoder process.
type SourceOptions struct {
	// Stop after this many frames. 0 decodes everything.
	MaxFrames int
}

// NewSource starts decoding path. info usually comes from Probe.
func NewSource(ctx context.Context, path string, info Info, opt SourceOptions) (*Source, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, errors.New("ffmpeg not found in PATH").Wrap(err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", path,
	}
	if opt.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(opt.MaxFrames))
	}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)

	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.New("failed to get ffmpeg stdout pipe").Wrap(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.New("failed to start ffmpeg").
			WithTag("path", path).
			Wrap(err)
	}
	logs.WithTag("path", path).
		WithTag("width", info.Width).
		WithTag("height", info.Height).
		WithTag("fps", info.FramesPerSecond).
		Info("ffmpeg decoder started")

	return &Source{
		Info:   info,
		cmd:    cmd,
		stdout: stdout,
		frame:  make([]byte, info.Width*info.Height*3),
	}, nil
}

// Next returns the next frame or io.EOF once the stream ends. A truncated
// trailing frame ends the stream.
func (s *Source) Next() (*quadmosaic.Raster, error) {
	if s.done {
		return nil, io.EOF
	}

	_, err := io.ReadFull(s.stdout, s.frame)
	switch {
	case err == io.ErrUnexpectedEOF:
		logs.Warn("ffmpeg stream ended with a partial frame")
		fallthrough
	case err == io.EOF:
		s.done = true
		return nil, io.EOF
	case err != nil:
		s.done = true
		return nil, errors.New("reading from ffmpeg failed").Wrap(err)
	}

	r, err := quadmosaic.NewRaster(s.Info.Height, s.Info.Width, 3)
	if err != nil {
		return nil, err
	}
	copy(r.Pix, s.frame)
	return r, nil
}

// Close stops reading and waits for the decoder to exit.
func (s *Source) Close() error {
	s.done = true
	s.stdout.Close()
	if err := s.cmd.Wait(); err != nil {
		// Closing the pipe early makes ffmpeg exit with a broken pipe.
		logs.WithTag("error_type", "ffmpeg-exit").Debug(err)
	}
	return nil
}
