package utils

import (
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/setanarut/quadmosaic"
)

// DirSource reads frames from the image files of a directory in name
// order. Frames are returned as RGB rasters.
type DirSource struct {
	paths []string
	pos   int
}

func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New("reading frame directory failed").
			WithTag("dir", dir).
			Wrap(err)
	}

	s := &DirSource{}
	for _, e := range entries {
		if !e.IsDir() {
			s.paths = append(s.paths, filepath.Join(dir, e.Name()))
		}
	}
	return s, nil
}

// Len returns the number of candidate frame files.
func (s *DirSource) Len() int {
	return len(s.paths)
}

// Size returns the dimensions of the first decodable frame.
func (s *DirSource) Size() image.Point {
	for _, p := range s.paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		if err == nil {
			return image.Pt(cfg.Width, cfg.Height)
		}
	}
	return image.Point{}
}

func (s *DirSource) Next() (*quadmosaic.Raster, error) {
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.pos]
	s.pos++

	img, err := ReadImage(path)
	if err != nil {
		return nil, errors.New("frame is unreadable").
			WithType(quadmosaic.ErrTypeFrameUnreadable).
			WithTag("path", path).
			Wrap(err)
	}
	return quadmosaic.FromImage(img, 3)
}

func (s *DirSource) Close() error {
	return nil
}
