// Package testutil provides shared fixtures: small images and sidecar files.
package testutil

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// webpLossless is a 1x1 lossless (VP8L) WebP image.
const webpLossless = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func pattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}

// JPEG returns a small baseline JPEG without any APP segments.
func JPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, pattern(8, 8), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// JPEGWithEXIF returns JPEG(t) with an APP1 segment holding tiff.
func JPEGWithEXIF(t *testing.T, tiff []byte) []byte {
	t.Helper()
	base := JPEG(t)
	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	out := append([]byte{}, base[:2]...)
	out = append(out, seg...)
	out = append(out, payload...)
	return append(out, base[2:]...)
}

// PNG returns a small PNG without an eXIf chunk.
func PNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, pattern(4, 4)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// GIF returns a small GIF.
func GIF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, pattern(4, 4), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// WebP returns a 1x1 simple-format lossless WebP.
func WebP(t *testing.T) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(webpLossless)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// WriteFile writes data to dir/name, creating parent directories, and
// returns the full path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// Sidecar writes a Takeout-style sidecar at dir/name. A nil timestamp omits
// photoTakenTime entirely.
func Sidecar(t *testing.T, dir, name string, timestamp any) string {
	t.Helper()
	doc := map[string]any{"title": name}
	if timestamp != nil {
		doc["photoTakenTime"] = map[string]any{"timestamp": timestamp}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return WriteFile(t, dir, name, data)
}

// ReadFile returns the contents of path.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
