package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/setanarut/quadmosaic"
)

// FrameFilePattern returns the printf pattern of frame files for format,
// e.g. frame%04d.png.
func FrameFilePattern(format string) string {
	return "frame%04d." + format
}

// FileSink writes frames as zero-padded numbered images into Dir.
type FileSink struct {
	Dir    string
	Format string
}

// NewFileSink creates dir when missing and checks it is writable. Format is
// png or qoi.
func NewFileSink(dir, format string) (*FileSink, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "qoi" {
		return nil, errors.New("unknown frame format").
			WithType(quadmosaic.ErrTypeInvalidOptions).
			WithTag("format", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New("creating output directory failed").
			WithType(quadmosaic.ErrTypeOutputUnwritable).
			WithTag("dir", dir).
			Wrap(err)
	}
	probe, err := os.CreateTemp(dir, ".quadmosaic-*")
	if err != nil {
		return nil, errors.New("output directory is not writable").
			WithType(quadmosaic.ErrTypeOutputUnwritable).
			WithTag("dir", dir).
			Wrap(err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &FileSink{Dir: dir, Format: format}, nil
}

// Path returns the file path of frame index.
func (s *FileSink) Path(index int) string {
	return filepath.Join(s.Dir, fmt.Sprintf(FrameFilePattern(s.Format), index))
}

func (s *FileSink) WriteFrame(index int, frame *quadmosaic.Raster) error {
	path := s.Path(index)
	if err := SaveImage(frame, path); err != nil {
		return errors.New("writing frame file failed").
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
