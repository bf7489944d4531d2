package video

import (
	"bytes"
	"context"
	"image"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// Info describes the first video stream of a file.
type Info struct {
	Width           int
	Height          int
	FramesPerSecond float64
}

func (i Info) Size() image.Point {
	return image.Pt(i.Width, i.Height)
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe runs ffprobe on path.
func Probe(ctx context.Context, path string) (Info, error) {
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return Info{}, errors.New("ffprobe not found in PATH").Wrap(err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-print_format", "json",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, errors.New("ffprobe failed").
			WithTag("path", path).
			WithTag("stderr", strings.TrimSpace(stderr.String())).
			Wrap(err)
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, errors.New("parsing ffprobe output failed").Wrap(err)
	}
	if len(out.Streams) == 0 {
		return Info{}, errors.New("no video stream found")
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Info{}, errors.New("invalid video dimensions").
			WithTag("width", s.Width).
			WithTag("height", s.Height)
	}
	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}
	return Info{Width: s.Width, Height: s.Height, FramesPerSecond: fps}, nil
}

// parseRate parses ffmpeg rates such as "30000/1001" or "25". It returns 0
// for malformed or undefined rates.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
