// Package imagefile reads and rewrites the EXIF payload of image files
// without re-encoding pixel data.
package imagefile

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"

	_ "golang.org/x/image/webp"

	"github.com/starford/sidestamp/internal/apperr"
)

// Format is an image container format as reported by image.DecodeConfig.
type Format string

// Supported formats.
const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatGIF  Format = "gif"
)

// errNoContainer marks formats that have no place for an EXIF block.
var errNoContainer = errors.New("format has no EXIF container")

// container splices EXIF payloads in and out of one file format.
type container interface {
	// extract returns the TIFF-structured EXIF payload, or nil if absent.
	extract(data []byte) ([]byte, error)
	// embed returns data with its EXIF payload replaced by tiff.
	embed(data, tiff []byte, cfg image.Config) ([]byte, error)
}

var containers = map[Format]container{
	FormatJPEG: jpegContainer{},
	FormatPNG:  pngContainer{},
	FormatWebP: webpContainer{},
}

// Asset is an image file loaded into memory.
type Asset struct {
	Path   string
	Format Format
	Config image.Config

	mode fs.FileMode
	data []byte
	exif []byte
}

// Open reads the image at path, checks that it decodes as a supported format
// and extracts its EXIF payload.
func Open(path string) (*Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("imagefile: %w: %v", apperr.ErrImageOpen, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("imagefile: %w: %v", apperr.ErrImageOpen, err)
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagefile: %w: %s: %v", apperr.ErrImageOpen, filepath.Base(path), err)
	}
	format := Format(name)
	c, ok := containers[format]
	if !ok {
		return nil, fmt.Errorf("imagefile: %w: %s: %s %v", apperr.ErrImageOpen, filepath.Base(path), name, errNoContainer)
	}
	exif, err := c.extract(data)
	if err != nil {
		return nil, fmt.Errorf("imagefile: %w: %s: %v", apperr.ErrImageOpen, filepath.Base(path), err)
	}
	return &Asset{
		Path:   path,
		Format: format,
		Config: cfg,
		mode:   info.Mode().Perm(),
		data:   data,
		exif:   exif,
	}, nil
}

// EXIF returns the TIFF-structured EXIF payload, or nil if the image has none.
func (a *Asset) EXIF() []byte {
	return a.exif
}

// Bytes returns the file contents as loaded.
func (a *Asset) Bytes() []byte {
	return a.data
}

// Embed returns the file contents with the EXIF payload replaced by tiff.
func (a *Asset) Embed(tiff []byte) ([]byte, error) {
	out, err := containers[a.Format].embed(a.data, tiff, a.Config)
	if err != nil {
		return nil, fmt.Errorf("imagefile: %w: %s: %v", apperr.ErrEncode, filepath.Base(a.Path), err)
	}
	return out, nil
}

// Save embeds tiff and atomically replaces the file at its original path,
// keeping its permission bits.
func (a *Asset) Save(tiff []byte) error {
	out, err := a.Embed(tiff)
	if err != nil {
		return err
	}
	if err := writeAtomic(a.Path, out, a.mode); err != nil {
		return fmt.Errorf("imagefile: %w: %v", apperr.ErrWrite, err)
	}
	a.data = out
	a.exif = tiff
	return nil
}

// writeAtomic writes content via tmp file → fsync → rename.
func writeAtomic(path string, content []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sidestamp-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}
