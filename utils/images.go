package utils

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/xfmoulet/qoi"
)

// ReadImage decodes a PNG, JPEG, GIF or QOI file.
func ReadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.New("decoding image failed").
			WithTag("path", path).
			Wrap(err)
	}
	return img, nil
}

// SaveImage encodes img as QOI when filename ends in .qoi and as PNG
// otherwise.
func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if strings.EqualFold(filepath.Ext(filename), ".qoi") {
		err = qoi.Encode(w, img)
	} else {
		err = png.Encode(w, img)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// SaveImages writes images as name_00.png, name_01.png, ... into dir.
func SaveImages(images []image.Image, dir, name string) error {
	for i, img := range images {
		path := filepath.Join(dir, fmt.Sprintf("%s_%02d.png", name, i))
		if err := SaveImage(img, path); err != nil {
			return err
		}
	}
	return nil
}

// SavePalette writes one tileSize square per palette color, left to right.
func SavePalette(palette []colorful.Color, tileSize int, filename string) error {
	if len(palette) == 0 {
		return errors.New("empty palette")
	}
	if tileSize <= 0 {
		tileSize = 64
	}

	img := image.NewNRGBA(image.Rect(0, 0, tileSize*len(palette), tileSize))
	for i, c := range palette {
		r, g, b := c.Clamped().RGB255()
		tile := color.NRGBA{R: r, G: g, B: b, A: 255}
		for y := range tileSize {
			for x := i * tileSize; x < (i+1)*tileSize; x++ {
				img.SetNRGBA(x, y, tile)
			}
		}
	}
	return SaveImage(img, filename)
}
