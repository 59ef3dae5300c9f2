// Package graphic holds decoded, renderable images. A Graphic is either a single
// still picture or an animated sequence of frames, and the package knows how to
// turn raw bytes into one and back again.
package graphic

import (
	"errors"
	"fmt"
	"image"
	"io"
)

// Graphic is a decoded image, static or animated.
type Graphic interface {
	// Bounds returns the pixel bounds of the first (or only) frame.
	Bounds() image.Rectangle
	// FrameCount returns 1 for a still image and the number of frames otherwise.
	FrameCount() int
	// Encode writes the graphic in a form that Decode can read back.
	Encode(w io.Writer) error
}

// Frame is one picture of an animated sequence.
type Frame struct {
	Image       image.Image
	DelayMillis int
}

// Static is a single still picture.
type Static struct {
	Image image.Image
}

// NewStatic wraps a decoded image.
func NewStatic(img image.Image) (*Static, error) {
	if img == nil {
		return nil, errors.New("static graphic requires an image")
	}
	return &Static{Image: img}, nil
}

func (s *Static) Bounds() image.Rectangle { return s.Image.Bounds() }

func (s *Static) FrameCount() int { return 1 }

func (s *Static) Encode(w io.Writer) error { return encodeStill(w, s.Image) }

// Animated is an ordered sequence of at least two frames.
// LoopCount follows image/gif: 0 loops forever, -1 plays once.
type Animated struct {
	Frames    []Frame
	LoopCount int
}

// NewAnimated builds an animated graphic. Fewer than two frames is an error;
// callers holding a single frame should use NewStatic.
func NewAnimated(frames []Frame, loopCount int) (*Animated, error) {
	if len(frames) < 2 {
		return nil, fmt.Errorf("animated graphic requires at least 2 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Image == nil {
			return nil, fmt.Errorf("frame %d has no image", i)
		}
		if f.DelayMillis < 0 {
			return nil, fmt.Errorf("frame %d has negative delay %d", i, f.DelayMillis)
		}
	}
	return &Animated{Frames: frames, LoopCount: loopCount}, nil
}

func (a *Animated) Bounds() image.Rectangle { return a.Frames[0].Image.Bounds() }

func (a *Animated) FrameCount() int { return len(a.Frames) }

func (a *Animated) Encode(w io.Writer) error { return encodeAnimated(w, a) }

// Delays returns the per-frame delays in milliseconds.
func (a *Animated) Delays() []int {
	delays := make([]int, len(a.Frames))
	for i, f := range a.Frames {
		delays[i] = f.DelayMillis
	}
	return delays
}
