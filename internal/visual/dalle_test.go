package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"blogwire/internal/core"
)

func TestDALLERequestFormat(t *testing.T) {
	request := DALLERequest{
		Model:  "gpt-image-1",
		Prompt: "A test image prompt",
		N:      1,
		Size:   "1024x1024",
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	expected := `{"model":"gpt-image-1","prompt":"A test image prompt","n":1,"size":"1024x1024"}`
	if string(jsonData) != expected {
		t.Errorf("Request format mismatch.\nExpected: %s\nActual: %s", expected, string(jsonData))
	}
}

func TestGetImageSize(t *testing.T) {
	tests := []struct {
		width, height int
		expected      string
	}{
		{1024, 1024, "1024x1024"},
		{1792, 1024, "1792x1024"},
		{1920, 1080, "1792x1024"},
		{1200, 800, "1536x1024"},
		{800, 1200, "1024x1536"},
		{600, 1200, "1024x1792"},
		{0, 0, "1024x1024"},
	}

	for _, tt := range tests {
		if got := GetImageSize(tt.width, tt.height); got != tt.expected {
			t.Errorf("GetImageSize(%d, %d) = %s, want %s", tt.width, tt.height, got, tt.expected)
		}
	}
}

func TestParseSize(t *testing.T) {
	if w, h := ParseSize("1536x1024"); w != 1536 || h != 1024 {
		t.Errorf("Expected 1536x1024, got %dx%d", w, h)
	}
	if w, h := ParseSize("large"); w != 0 || h != 0 {
		t.Errorf("Expected zeros for malformed size, got %dx%d", w, h)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestDALLESourceFetch(t *testing.T) {
	imgData := pngBytes(t, 4, 4)
	var got DALLERequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(DALLEResponse{
			Data: []DALLEImageResult{{B64JSON: base64.StdEncoding.EncodeToString(imgData)}},
		})
	}))
	defer srv.Close()

	src := NewDALLESource(NewDALLEClient("test-key", "", srv.URL, 0), "1200x800")
	img, err := src.Fetch(context.Background(), Request{Title: "Why Electric Cars Matter"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(img.Data, imgData) || img.ContentType != "image/png" || img.Source != "dalle" {
		t.Errorf("Unexpected image: %s %s %d bytes", img.Source, img.ContentType, len(img.Data))
	}
	if got.Model != DefaultImageModel || got.Size != "1536x1024" || got.N != 1 {
		t.Errorf("Unexpected request: %+v", got)
	}
}

func TestDALLESourceAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewDALLESource(NewDALLEClient("k", "", srv.URL, 0), "")
	if _, err := src.Fetch(context.Background(), Request{Keyword: "ai"}); !errors.Is(err, core.ErrTransport) {
		t.Errorf("Expected transport error, got %v", err)
	}
}
