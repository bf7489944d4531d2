package video

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
	}{
		{in: "30/1", expected: 30},
		{in: "25", expected: 25},
		{in: "0/0", expected: 0},
		{in: "", expected: 0},
		{in: "abc/1", expected: 0},
		{in: "30/x", expected: 0},
	}
	for _, test := range tests {
		require.Equal(t, test.expected, parseRate(test.in), test.in)
	}
	require.InDelta(t, 29.97, parseRate("30000/1001"), 0.001)
}

func TestParseProbe(t *testing.T) {
	t.Run("first stream", func(t *testing.T) {
		info, err := parseProbe([]byte(`{
			"streams": [
				{"width": 640, "height": 360, "r_frame_rate": "30000/1001", "avg_frame_rate": "0/0"},
				{"width": 10, "height": 10, "r_frame_rate": "1/1"}
			]
		}`))
		require.NoError(t, err)
		require.Equal(t, 640, info.Width)
		require.Equal(t, 360, info.Height)
		require.Equal(t, image.Pt(640, 360), info.Size())
		require.InDelta(t, 29.97, info.FramesPerSecond, 0.001)
	})

	t.Run("average rate wins", func(t *testing.T) {
		info, err := parseProbe([]byte(`{"streams":[{"width":2,"height":2,"r_frame_rate":"60/1","avg_frame_rate":"24/1"}]}`))
		require.NoError(t, err)
		require.Equal(t, float64(24), info.FramesPerSecond)
	})

	t.Run("no stream", func(t *testing.T) {
		_, err := parseProbe([]byte(`{"streams":[]}`))
		require.Error(t, err)
	})

	t.Run("invalid dimensions", func(t *testing.T) {
		_, err := parseProbe([]byte(`{"streams":[{"width":0,"height":2}]}`))
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseProbe([]byte(`streams`))
		require.Error(t, err)
	})
}

func TestEncodeArgs(t *testing.T) {
	opt := EncodeOptions{
		FrameDir:        "out",
		Pattern:         "frame%04d.png",
		FramesPerSecond: 29.97,
		Audio:           "song.mp3",
		Output:          "final.mp4",
	}

	args := encodeArgs(opt, "tmp.mp4")
	require.Contains(t, args, "29.97")
	require.Contains(t, args, "out/frame%04d.png")
	require.Contains(t, args, "libx264")
	require.Equal(t, "tmp.mp4", args[len(args)-1])

	args = mergeArgs("tmp.mp4", opt.Audio, opt.Output)
	require.Equal(t, []string{
		"-y",
		"-hide_banner", "-loglevel", "error",
		"-i", "tmp.mp4",
		"-i", "song.mp3",
		"-c:v", "copy",
		"-shortest",
		"final.mp4",
	}, args)
}
