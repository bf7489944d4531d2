package utils

import (
	"archive/tar"
	"bytes"
	"image"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/klauspost/compress/zstd"
	"github.com/setanarut/quadmosaic"
	"golang.org/x/image/draw"
)

// ChannelMode selects how overlay images are normalized to RGBA.
type ChannelMode int

const (
	// ChannelModeUnchanged keeps the alpha of the source image.
	ChannelModeUnchanged ChannelMode = iota
	// ChannelModeColor drops the source alpha.
	ChannelModeColor
	// ChannelModeGrayscale replaces RGB with luma and drops the alpha.
	ChannelModeGrayscale
)

func (m ChannelMode) String() string {
	switch m {
	case ChannelModeColor:
		return "color"
	case ChannelModeGrayscale:
		return "grayscale"
	default:
		return "unchanged"
	}
}

func ParseChannelMode(s string) (ChannelMode, error) {
	switch strings.ToLower(s) {
	case "", "unchanged":
		return ChannelModeUnchanged, nil
	case "color", "colour":
		return ChannelModeColor, nil
	case "grayscale", "greyscale", "gray":
		return ChannelModeGrayscale, nil
	default:
		return 0, errors.New("unknown channel mode").
			WithType(quadmosaic.ErrTypeInvalidOptions).
			WithTag("mode", s)
	}
}

// Normalize converts img to a 4-channel raster according to mode.
func Normalize(img image.Image, mode ChannelMode) (*quadmosaic.Raster, error) {
	r, err := quadmosaic.FromImage(img, 4)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ChannelModeColor:
		for i := 3; i < len(r.Pix); i += 4 {
			r.Pix[i] = 255
		}
	case ChannelModeGrayscale:
		for i := 0; i < len(r.Pix); i += 4 {
			y := luma(r.Pix[i], r.Pix[i+1], r.Pix[i+2])
			r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3] = y, y, y, 255
		}
	}
	return r, nil
}

// luma returns Rec. 601 luma rounded to the nearest integer.
func luma(r, g, b uint8) uint8 {
	return uint8((299*int32(r) + 587*int32(g) + 114*int32(b) + 500) / 1000)
}

// LoadOverlays loads the overlay sequence at path, which may be a directory
// of images (sorted by name), an animated GIF, a .tar.zst pack of images or
// a single image. Entries that fail to decode are logged and skipped.
func LoadOverlays(path string, mode ChannelMode) ([]*quadmosaic.Raster, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New("overlay path not found").
			WithTag("path", path).
			Wrap(err)
	}

	var images []image.Image
	lower := strings.ToLower(path)
	switch {
	case info.IsDir():
		images, err = readImageDir(path)
	case strings.HasSuffix(lower, ".gif"):
		images, err = readGIFFrames(path)
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		images, err = readImagePack(path)
	default:
		var img image.Image
		img, err = ReadImage(path)
		images = []image.Image{img}
	}
	if err != nil {
		return nil, err
	}

	overlays := make([]*quadmosaic.Raster, 0, len(images))
	for _, img := range images {
		r, err := Normalize(img, mode)
		if err != nil {
			return nil, err
		}
		overlays = append(overlays, r)
	}
	logs.WithTag("path", path).
		WithTag("count", len(overlays)).
		WithTag("channel_mode", mode.String()).
		Info("overlays loaded")
	return overlays, nil
}

func readImageDir(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	// os.ReadDir returns entries sorted by filename.
	var images []image.Image
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		img, err := ReadImage(path)
		if err != nil {
			logs.WithTag("path", path).Warn(err)
			continue
		}
		images = append(images, img)
	}
	return images, nil
}

// readGIFFrames composites every frame of an animated GIF onto a canvas
// honoring the frame disposal methods.
func readGIFFrames(path string) ([]image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, errors.New("decoding gif failed").
			WithTag("path", path).
			Wrap(err)
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() && len(g.Image) != 0 {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewNRGBA(bounds)
	frames := make([]image.Image, 0, len(g.Image))

	for i, frame := range g.Image {
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var previous *image.NRGBA
		if disposal == gif.DisposalPrevious {
			previous = image.NewNRGBA(bounds)
			copy(previous.Pix, canvas.Pix)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		snapshot := image.NewNRGBA(bounds)
		copy(snapshot.Pix, canvas.Pix)
		frames = append(frames, snapshot)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return frames, nil
}

// readImagePack reads a zstd-compressed tar archive of images, ordered by
// entry name.
func readImagePack(path string) ([]image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, errors.New("opening zstd stream failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer dec.Close()

	entries := make(map[string][]byte)
	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New("reading overlay pack failed").
				WithTag("path", path).
				Wrap(err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, errors.New("reading overlay pack entry failed").
				WithTag("path", path).
				WithTag("entry", hdr.Name).
				Wrap(err)
		}
		entries[hdr.Name] = data
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	slices.Sort(names)

	images := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, _, err := image.Decode(bytes.NewReader(entries[name]))
		if err != nil {
			logs.WithTag("path", path).
				WithTag("entry", name).
				Warn(errors.New("decoding overlay pack entry failed").Wrap(err))
			continue
		}
		images = append(images, img)
	}
	return images, nil
}
