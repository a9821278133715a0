package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeTexture(t *testing.T) {
	data := encodePNG(t, 4, 3)

	decoded, err := decodeTexture(data)
	if err != nil {
		t.Fatalf("decodeTexture failed: %v", err)
	}
	if decoded.Width != 4 || decoded.Height != 3 {
		t.Errorf("dimensions = %dx%d, want 4x3", decoded.Width, decoded.Height)
	}
	if len(decoded.Pixels) != 4*3*4 {
		t.Errorf("pixel bytes = %d, want %d", len(decoded.Pixels), 4*3*4)
	}
	// First pixel: x=0, y=0 -> (0, 0, 128, 255).
	if decoded.Pixels[2] != 128 || decoded.Pixels[3] != 255 {
		t.Errorf("first pixel = %v", decoded.Pixels[:4])
	}
}

func TestDecodeTextureMalformed(t *testing.T) {
	if _, err := decodeTexture([]byte("not an image")); err == nil {
		t.Error("decodeTexture should reject junk")
	}
}

func TestDecodeSVG(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" width="100" height="24px">
  <rect x="0" y="0" width="10" height="10"/>
</svg>`)

	decoded, err := decodeSVG(data)
	if err != nil {
		t.Fatalf("decodeSVG failed: %v", err)
	}
	if decoded.Width != "100" || decoded.Height != "24px" {
		t.Errorf("size = %q x %q", decoded.Width, decoded.Height)
	}
	if !bytes.Equal(decoded.Raw, data) {
		t.Error("raw bytes should be retained")
	}
}

func TestDecodeSVGRejectsNonSVGRoot(t *testing.T) {
	if _, err := decodeSVG([]byte(`<html><body/></html>`)); err == nil {
		t.Error("non-svg root should be rejected")
	}
}

func TestDecodeSVGRejectsMalformedXML(t *testing.T) {
	if _, err := decodeSVG([]byte(`<svg><rect></svg>`)); err == nil {
		t.Error("mismatched tags should be rejected")
	}
}

func TestDecodeSVGRejectsEmpty(t *testing.T) {
	if _, err := decodeSVG(nil); err == nil {
		t.Error("empty payload should be rejected")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindTexture: "texture",
		KindFont:    "font",
		KindAudio:   "audio",
		KindJSON:    "json",
		KindBinary:  "binary",
		KindSVG:     "svg",
		Kind(99):    "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
	if Kind(99).valid() {
		t.Error("out-of-range kind must be invalid")
	}
}
