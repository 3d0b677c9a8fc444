// Package rewrite sets the capture date-time tags of an image's EXIF block.
package rewrite

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/starford/sidestamp/internal/apperr"
	"github.com/starford/sidestamp/internal/exifblock"
	"github.com/starford/sidestamp/internal/imagefile"
)

// Stamp sets DateTime, DateTimeOriginal and DateTimeDigitized of b to
// dateTime. Every other tag is left alone.
func Stamp(b *exifblock.Block, dateTime string) {
	v := exifblock.ASCII(dateTime)
	b.Set(exifblock.Group0th, exifblock.TagDateTime, v)
	b.Set(exifblock.GroupExif, exifblock.TagDateTimeOriginal, v)
	b.Set(exifblock.GroupExif, exifblock.TagDateTimeDigitized, v)
}

// Rewrite loads the image at path, stamps its EXIF block with dateTime and
// writes it back in place. An image without EXIF gets a fresh block.
func Rewrite(path, dateTime string) error {
	asset, err := imagefile.Open(path)
	if err != nil {
		return err
	}

	block := exifblock.New()
	if raw := asset.EXIF(); len(raw) > 0 {
		block, err = exifblock.Decode(raw)
		if err != nil {
			return err
		}
	}

	Stamp(block, dateTime)

	tiff, err := block.Encode()
	if err != nil {
		return err
	}
	return asset.Save(tiff)
}

// Timestamps holds the date-time tags read back from an image. Empty fields
// are absent tags.
type Timestamps struct {
	DateTime          string `json:"date_time"`
	DateTimeOriginal  string `json:"date_time_original"`
	DateTimeDigitized string `json:"date_time_digitized"`
}

// Inspect reads the date-time tags of the image at path with an independent
// EXIF decoder.
func Inspect(path string) (Timestamps, error) {
	asset, err := imagefile.Open(path)
	if err != nil {
		return Timestamps{}, err
	}
	raw := asset.EXIF()
	if len(raw) == 0 {
		return Timestamps{}, nil
	}

	x, err := exif.Decode(bytes.NewReader(exifblock.TrimHeader(raw)))
	if err != nil && exif.IsCriticalError(err) {
		return Timestamps{}, fmt.Errorf("rewrite: %w: %v", apperr.ErrDecode, err)
	}

	var ts Timestamps
	for name, dst := range map[exif.FieldName]*string{
		exif.DateTime:          &ts.DateTime,
		exif.DateTimeOriginal:  &ts.DateTimeOriginal,
		exif.DateTimeDigitized: &ts.DateTimeDigitized,
	} {
		tag, err := x.Get(name)
		var missing exif.TagNotPresentError
		if errors.As(err, &missing) {
			continue
		}
		if err != nil {
			return Timestamps{}, fmt.Errorf("rewrite: %w: %v", apperr.ErrDecode, err)
		}
		s, err := tag.StringVal()
		if err != nil {
			return Timestamps{}, fmt.Errorf("rewrite: %w: %s: %v", apperr.ErrDecode, name, err)
		}
		*dst = s
	}
	return ts, nil
}
