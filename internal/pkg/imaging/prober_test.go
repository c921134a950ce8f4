package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodedImage(t *testing.T, w, h int, enc func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := enc(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestProbePNG(t *testing.T) {
	data := encodedImage(t, 40, 25, func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) })

	w, h, err := NewProber().Probe(data)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if w != 40 || h != 25 {
		t.Fatalf("dimensions = %dx%d, want 40x25", w, h)
	}
}

func TestProbeJPEG(t *testing.T) {
	data := encodedImage(t, 64, 48, func(b *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(b, img, &jpeg.Options{Quality: 80})
	})

	w, h, err := NewProber().Probe(data)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if w != 64 || h != 48 {
		t.Fatalf("dimensions = %dx%d, want 64x48", w, h)
	}
}

func TestProbeCorruptBytes(t *testing.T) {
	if _, _, err := NewProber().Probe([]byte("definitely not an image")); err == nil {
		t.Fatal("expected error for corrupt bytes")
	}
	if _, _, err := NewProber().Probe(nil); err != ErrEmptyImage {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}
