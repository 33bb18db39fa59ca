package visual

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
)

// noisyPNG produces an image that compresses poorly as PNG.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(rng.Intn(256)), G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestOptimizeOversizedImage(t *testing.T) {
	src := noisyPNG(t, 1600, 1000)
	opt, err := NewOptimizer(800, 85).Optimize(src)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if !opt.Resized {
		t.Error("Expected image to be resized")
	}
	if len(opt.Data) >= len(src) {
		t.Errorf("Expected smaller output, got %d >= %d", len(opt.Data), len(src))
	}
	if opt.OriginalBytes != len(src) {
		t.Errorf("Expected original size %d, got %d", len(src), opt.OriginalBytes)
	}

	decoded, format, err := image.Decode(bytes.NewReader(opt.Data))
	if err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	if format != "jpeg" || opt.ContentType != "image/jpeg" {
		t.Errorf("Expected jpeg output, got %s / %s", format, opt.ContentType)
	}
	if decoded.Bounds().Dx() != 800 || decoded.Bounds().Dy() != 500 {
		t.Errorf("Expected 800x500, got %dx%d", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestOptimizeKeepsSmallerSource(t *testing.T) {
	// A flat PNG is far smaller than its JPEG re-encoding.
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	src := buf.Bytes()

	opt, err := NewOptimizer(1200, 85).Optimize(src)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if opt.Resized {
		t.Error("Expected no resize for a small image")
	}
	if !bytes.Equal(opt.Data, src) || opt.ContentType != "image/png" {
		t.Errorf("Expected original PNG bytes to be kept, got %s (%d bytes)", opt.ContentType, len(opt.Data))
	}
}

func TestOptimizeRejectsGarbage(t *testing.T) {
	if _, err := NewOptimizer(0, 0).Optimize([]byte("not an image")); err == nil {
		t.Error("Expected decode error")
	}
}

func TestNewOptimizerDefaults(t *testing.T) {
	o := NewOptimizer(-1, 500)
	if o.MaxWidth != 1200 || o.Quality != 85 {
		t.Errorf("Expected defaults 1200/85, got %d/%d", o.MaxWidth, o.Quality)
	}
}
