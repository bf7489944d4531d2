package video

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

type EncodeOptions struct {
	// Directory holding the numbered frames.
	FrameDir string
	// printf pattern of the frame files inside FrameDir, e.g. frame%04d.png.
	Pattern string
	// Frame rate of the output video.
	FramesPerSecond float64
	// Optional audio track merged into the output. The shorter stream wins.
	Audio string
	// Final output file.
	Output string
}

// Encode assembles the frames into an H.264 video and then merges the
// audio track. The intermediate video is removed.
func Encode(ctx context.Context, opt EncodeOptions) error {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return errors.New("ffmpeg not found in PATH").Wrap(err)
	}

	if opt.Audio == "" {
		return runFFmpeg(ctx, ffmpeg, "frames", encodeArgs(opt, opt.Output))
	}

	tmp, err := os.CreateTemp(filepath.Dir(opt.Output), ".quadmosaic-*.mp4")
	if err != nil {
		return errors.New("creating intermediate video failed").Wrap(err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := runFFmpeg(ctx, ffmpeg, "frames", encodeArgs(opt, tmp.Name())); err != nil {
		return err
	}
	return runFFmpeg(ctx, ffmpeg, "audio", mergeArgs(tmp.Name(), opt.Audio, opt.Output))
}

func encodeArgs(opt EncodeOptions, output string) []string {
	return []string{
		"-y",
		"-hide_banner", "-loglevel", "error",
		"-framerate", strconv.FormatFloat(opt.FramesPerSecond, 'f', -1, 64),
		"-i", filepath.Join(opt.FrameDir, opt.Pattern),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		output,
	}
}

func mergeArgs(videoPath, audio, output string) []string {
	return []string{
		"-y",
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audio,
		"-c:v", "copy",
		"-shortest",
		output,
	}
}

func runFFmpeg(ctx context.Context, ffmpeg, step string, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	cmd.Stderr = &stderr

	logs.WithTag("step", step).
		WithTag("args", strings.Join(args, " ")).
		Debug("running ffmpeg")
	if err := cmd.Run(); err != nil {
		return errors.New("ffmpeg failed").
			WithTag("step", step).
			WithTag("stderr", strings.TrimSpace(stderr.String())).
			Wrap(err)
	}
	return nil
}
