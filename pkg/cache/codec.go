package cache

import (
	"errors"

	"github.com/illmade-knight/go-graphicfetch/pkg/graphic"
)

// GraphicCodec stores graphics in their encoded PNG/GIF form.
type GraphicCodec struct{}

func (GraphicCodec) Encode(g graphic.Graphic) ([]byte, error) {
	return graphic.EncodeToBytes(g)
}

func (GraphicCodec) Decode(data []byte) (graphic.Graphic, error) {
	return graphic.Decode(data)
}

// RawCodec stores fetched bytes unchanged.
type RawCodec struct{}

func (RawCodec) Encode(data []byte) ([]byte, error) {
	if data == nil {
		return nil, errors.New("cannot store nil bytes")
	}
	return data, nil
}

func (RawCodec) Decode(data []byte) ([]byte, error) {
	return data, nil
}
