package visual

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"

	_ "image/gif" // register decoders
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Optimized is the result of Optimizer.Optimize.
type Optimized struct {
	Data          []byte
	ContentType   string
	Width         int
	Height        int
	OriginalBytes int
	Resized       bool
}

// Optimizer downsizes and re-encodes images for the web.
type Optimizer struct {
	MaxWidth int
	Quality  int
}

// NewOptimizer creates an Optimizer. Out of range values use 1200px and quality 85.
func NewOptimizer(maxWidth, quality int) *Optimizer {
	if maxWidth <= 0 {
		maxWidth = 1200
	}
	if quality < 1 || quality > 100 {
		quality = 85
	}
	return &Optimizer{MaxWidth: maxWidth, Quality: quality}
}

// Optimize scales data down to MaxWidth keeping the aspect ratio and re-encodes it as
// JPEG. When the image already fits and re-encoding does not shrink it, the source
// bytes are kept.
func (o *Optimizer) Optimize(data []byte) (*Optimized, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	resized := false
	if width > o.MaxWidth {
		height = max(1, int(float64(height)*float64(o.MaxWidth)/float64(width)+0.5))
		width = o.MaxWidth
		resized = true
	}

	// JPEG has no alpha channel; flatten onto white.
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if resized {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: o.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	if !resized && buf.Len() >= len(data) {
		return &Optimized{
			Data:          data,
			ContentType:   contentTypeForFormat(format, data),
			Width:         width,
			Height:        height,
			OriginalBytes: len(data),
		}, nil
	}

	return &Optimized{
		Data:          buf.Bytes(),
		ContentType:   "image/jpeg",
		Width:         width,
		Height:        height,
		OriginalBytes: len(data),
		Resized:       resized,
	}, nil
}

func contentTypeForFormat(format string, data []byte) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	}
	return http.DetectContentType(data)
}

// extensionFor maps a content type to a file extension.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
