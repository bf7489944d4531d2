package quadmosaic

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// BPMToBPS converts beats per minute to beats per second.
func BPMToBPS(bpm float64) float64 {
	return bpm / 60
}

// OverlayIndexFor returns the overlay image to show on frame so that the
// overlay sequence completes one cycle per beat.
func OverlayIndexFor(frame int, bps, fps float64, count int) (int, error) {
	if !(bps > 0) || !(fps > 0) || count <= 0 {
		return 0, errors.New("tempo needs positive beats per second, frame rate and overlay count").
			WithType(ErrTypeInvalidTempo).
			WithTag("beats_per_second", bps).
			WithTag("frames_per_second", fps).
			WithTag("overlay_count", count)
	}

	secondsPerFrame := 1 / fps
	secondsPerOverlay := 1 / (bps * float64(count))
	framesPerOverlay := secondsPerOverlay / secondsPerFrame

	idx := int(math.Floor(float64(frame)/framesPerOverlay)) % count
	if idx < 0 {
		idx += count
	}
	return idx, nil
}

// Tempo synchronises the overlay sequence with a beat.
type Tempo struct {
	BeatsPerSecond  float64
	FramesPerSecond float64
	// Beats one full overlay cycle spans. Zero means one.
	BeatsPerCycle float64
}

func (t Tempo) cycleRate() float64 {
	if t.BeatsPerCycle == 0 {
		return t.BeatsPerSecond
	}
	return t.BeatsPerSecond / t.BeatsPerCycle
}

// Validate checks the tempo against an overlay sequence of count images.
func (t Tempo) Validate(count int) error {
	if t.BeatsPerCycle < 0 || math.IsNaN(t.BeatsPerCycle) {
		return errors.New("beats per cycle must not be negative").
			WithType(ErrTypeInvalidTempo).
			WithTag("beats_per_cycle", t.BeatsPerCycle)
	}
	_, err := OverlayIndexFor(0, t.cycleRate(), t.FramesPerSecond, count)
	return err
}

// OverlayIndex returns the overlay index for frame.
func (t Tempo) OverlayIndex(frame, count int) (int, error) {
	if err := t.Validate(count); err != nil {
		return 0, err
	}
	return OverlayIndexFor(frame, t.cycleRate(), t.FramesPerSecond, count)
}
