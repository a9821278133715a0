package loader

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"

	"github.com/go-text/typesetting/font"

	// Register the stdlib and extended image decoders so image.Decode
	// recognizes every format the texture strategy accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Kind selects the decode strategy applied to a fetched payload.
type Kind uint8

const (
	// KindTexture decodes an encoded image into RGBA pixels.
	KindTexture Kind = iota

	// KindFont parses TTF/OTF font data.
	KindFont

	// KindAudio decodes audio through the configured AudioDecoder.
	KindAudio

	// KindJSON unmarshals the payload as JSON.
	KindJSON

	// KindBinary keeps the raw bytes.
	KindBinary

	// KindSVG checks XML well-formedness and extracts the declared size.
	KindSVG

	kindCount
)

// String returns a lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindFont:
		return "font"
	case KindAudio:
		return "audio"
	case KindJSON:
		return "json"
	case KindBinary:
		return "binary"
	case KindSVG:
		return "svg"
	default:
		return "unknown"
	}
}

// valid reports whether the kind names a decode strategy.
func (k Kind) valid() bool { return k < kindCount }

// AudioDecoder is the injected audio decode capability. Loads of KindAudio
// fail when no decoder is configured.
type AudioDecoder interface {
	DecodeAudioData(data []byte) (any, error)
}

// ImageData is a decoded texture payload: tightly packed RGBA rows.
type ImageData struct {
	Pixels []byte
	Width  int
	Height int
}

// FontData is a parsed font payload. Face embeds the thread-safe Font; the
// raw bytes are retained for re-parsing or upload.
type FontData struct {
	Face *font.Face
	Raw  []byte
}

// SVGData is a well-formed SVG payload with its declared dimensions, which
// keep their source units ("100", "24px", "100%").
type SVGData struct {
	Raw    []byte
	Width  string
	Height string
}

// decode applies the kind's strategy to a fetched payload. Decode errors
// are never retried; the payload was received intact.
func (l *Loader) decode(kind Kind, data []byte) (any, error) {
	switch kind {
	case KindTexture:
		return decodeTexture(data)
	case KindFont:
		return decodeFont(data)
	case KindAudio:
		if l.audio == nil {
			return nil, ErrNoAudioDecoder
		}
		decoded, err := l.audio.DecodeAudioData(data)
		if err != nil {
			return nil, fmt.Errorf("loader: decode audio: %w", err)
		}
		return decoded, nil
	case KindJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("loader: decode json: %w", err)
		}
		return v, nil
	case KindBinary:
		return data, nil
	case KindSVG:
		return decodeSVG(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, kind)
	}
}

// decodeTexture decodes any registered image format and converts the
// result to tightly packed RGBA.
func decodeTexture(data []byte) (*ImageData, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loader: decode image: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return &ImageData{
		Pixels: rgba.Pix,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// decodeFont parses TTF/OTF data. The returned Face embeds the thread-safe
// Font.
func decodeFont(data []byte) (*FontData, error) {
	face, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loader: parse font: %w", err)
	}
	return &FontData{Face: face, Raw: data}, nil
}

// decodeSVG verifies the payload is well-formed XML rooted at an svg
// element and extracts the root's width/height attributes.
func decodeSVG(data []byte) (*SVGData, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	out := &SVGData{Raw: data}
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loader: decode svg: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || sawRoot {
			continue
		}
		if start.Name.Local != "svg" {
			return nil, fmt.Errorf("loader: decode svg: root element is %q, want svg", start.Name.Local)
		}
		sawRoot = true
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "width":
				out.Width = attr.Value
			case "height":
				out.Height = attr.Value
			}
		}
	}
	if !sawRoot {
		return nil, fmt.Errorf("loader: decode svg: no root element")
	}
	return out, nil
}
