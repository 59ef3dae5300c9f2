package graphic

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	_ "image/jpeg" // registers the JPEG still decoder
	"image/png"
	"io"
)

// minDecodableLength is the shortest input worth handing to a codec. A GIF
// header alone is six bytes.
const minDecodableLength = 6

var gifTag = []byte("GIF")

// ErrUndecodable reports that the bytes could not be turned into a Graphic.
var ErrUndecodable = errors.New("undecodable graphic")

// encodePalette is used when a frame has to be quantised for the GIF encoder.
// Index 0 is transparent so fully transparent pixels survive the round trip.
var encodePalette = append(color.Palette{color.Transparent}, palette.WebSafe...)

// IsGIF reports whether data carries the animated-image container tag.
func IsGIF(data []byte) bool {
	return len(data) >= minDecodableLength && bytes.HasPrefix(data, gifTag)
}

// Decode classifies data and decodes it. GIF input with several frames yields
// an *Animated; any single-frame input yields a *Static.
func Decode(data []byte) (Graphic, error) {
	if len(data) < minDecodableLength {
		return nil, fmt.Errorf("%w: input of %d bytes is too short", ErrUndecodable, len(data))
	}
	if IsGIF(data) {
		return decodeGIF(data)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	s, err := NewStatic(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUndecodable, format, err)
	}
	return s, nil
}

// Encode writes g so that a later Decode reproduces it. A still picture is
// written as PNG, an animation as GIF.
func Encode(g Graphic, w io.Writer) error {
	if g == nil {
		return errors.New("cannot encode a nil graphic")
	}
	return g.Encode(w)
}

// EncodeToBytes is Encode into a fresh buffer.
func EncodeToBytes(g Graphic) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGIF(data []byte) (Graphic, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: gif: %v", ErrUndecodable, err)
	}

	frames := compositeFrames(g)
	switch len(frames) {
	case 0:
		return nil, fmt.Errorf("%w: gif has no frames", ErrUndecodable)
	case 1:
		return NewStatic(frames[0].Image)
	default:
		return NewAnimated(frames, g.LoopCount)
	}
}

// compositeFrames renders every GIF sub-image onto the logical screen so each
// returned frame is a complete picture, applying the disposal method of the
// previous frame before drawing the next.
func compositeFrames(g *gif.GIF) []Frame {
	if len(g.Image) == 0 {
		return nil
	}

	screen := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if screen.Empty() {
		for _, p := range g.Image {
			screen = screen.Union(p.Bounds())
		}
	}

	canvas := image.NewRGBA(screen)
	frames := make([]Frame, 0, len(g.Image))
	for i, src := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		var saved *image.RGBA
		if disposal == gif.DisposalPrevious {
			saved = cloneRGBA(canvas)
		}

		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)

		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i] * 10
		}
		frames = append(frames, Frame{Image: cloneRGBA(canvas), DelayMillis: delay})

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return frames
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

func encodeStill(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("png encode: %w", err)
	}
	return nil
}

func encodeAnimated(w io.Writer, a *Animated) error {
	out := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(a.Frames)),
		Delay:     make([]int, 0, len(a.Frames)),
		Disposal:  make([]byte, 0, len(a.Frames)),
		LoopCount: a.LoopCount,
	}
	for _, f := range a.Frames {
		out.Image = append(out.Image, toPaletted(f.Image))
		out.Delay = append(out.Delay, millisToCentis(f.DelayMillis))
		out.Disposal = append(out.Disposal, gif.DisposalNone)
	}
	if err := gif.EncodeAll(w, out); err != nil {
		return fmt.Errorf("gif encode: %w", err)
	}
	return nil
}

func toPaletted(img image.Image) *image.Paletted {
	if p, ok := img.(*image.Paletted); ok {
		return p
	}
	b := img.Bounds()
	p := image.NewPaletted(b, encodePalette)
	draw.FloydSteinberg.Draw(p, b, img, b.Min)
	return p
}

// GIF delays are stored in hundredths of a second.
func millisToCentis(ms int) int {
	return (ms + 5) / 10
}
