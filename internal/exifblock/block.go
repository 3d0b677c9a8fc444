// Package exifblock decodes and encodes EXIF metadata blocks (TIFF structure)
// as a sparse mapping of group to tag to value.
//
// Values keep their TIFF type, count and raw bytes in the block's byte order,
// so tags the package knows nothing about survive a decode/encode cycle
// unchanged. Sub-IFD pointers and the thumbnail offset are managed by the
// encoder and never appear in the group maps.
package exifblock

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/starford/sidestamp/internal/apperr"
)

// Group identifies an IFD inside the block.
type Group string

// Groups, named after their conventional EXIF labels.
const (
	Group0th     Group = "0th"
	GroupExif    Group = "Exif"
	GroupGPS     Group = "GPS"
	GroupInterop Group = "Interop"
	Group1st     Group = "1st"
)

// Tag is a TIFF tag number.
type Tag uint16

// Date-time tags.
const (
	TagDateTime          Tag = 0x0132 // 0th
	TagDateTimeOriginal  Tag = 0x9003 // Exif
	TagDateTimeDigitized Tag = 0x9004 // Exif
)

// Managed by the encoder.
const (
	tagExifIFD         Tag = 0x8769
	tagGPSIFD          Tag = 0x8825
	tagInteropIFD      Tag = 0xA005
	tagThumbnailOffset Tag = 0x0201
	tagThumbnailLength Tag = 0x0202
)

// Type is a TIFF field type.
type Type uint16

// Field types.
const (
	TypeByte      Type = 1
	TypeASCII     Type = 2
	TypeShort     Type = 3
	TypeLong      Type = 4
	TypeRational  Type = 5
	TypeSByte     Type = 6
	TypeUndefined Type = 7
	TypeSShort    Type = 8
	TypeSLong     Type = 9
	TypeSRational Type = 10
	TypeFloat     Type = 11
	TypeDouble    Type = 12
	TypeIFD       Type = 13
)

// Size returns the byte size of one component, or 0 for unknown types.
func (t Type) Size() int {
	switch t {
	case TypeByte, TypeASCII, TypeSByte, TypeUndefined:
		return 1
	case TypeShort, TypeSShort:
		return 2
	case TypeLong, TypeSLong, TypeFloat, TypeIFD:
		return 4
	case TypeRational, TypeSRational, TypeDouble:
		return 8
	}
	return 0
}

// Value is one tag value. Raw holds Count components in the block's byte
// order.
type Value struct {
	Type  Type
	Count uint32
	Raw   []byte
}

// rawLen is the length Raw must have. A value of unknown type holds the four
// bytes of its value field as found, whatever Count says.
func (v Value) rawLen() uint64 {
	if unit := v.Type.Size(); unit > 0 {
		return uint64(unit) * uint64(v.Count)
	}
	return 4
}

// ASCII returns a NUL-terminated ASCII value.
func ASCII(s string) Value {
	raw := append([]byte(s), 0)
	return Value{Type: TypeASCII, Count: uint32(len(raw)), Raw: raw}
}

// Text returns an ASCII value without its terminating NULs.
func (v Value) Text() (string, bool) {
	if v.Type != TypeASCII {
		return "", false
	}
	return string(bytes.TrimRight(v.Raw, "\x00")), true
}

// Block is a decoded EXIF block.
type Block struct {
	Order     binary.ByteOrder
	Groups    map[Group]map[Tag]Value
	Thumbnail []byte
}

// New returns an empty big-endian block.
func New() *Block {
	return &Block{
		Order: binary.BigEndian,
		Groups: map[Group]map[Tag]Value{
			Group0th:  {},
			GroupExif: {},
		},
	}
}

// Get returns the value of tag in group g.
func (b *Block) Get(g Group, tag Tag) (Value, bool) {
	v, ok := b.Groups[g][tag]
	return v, ok
}

// Set stores v under tag in group g, creating the group if needed.
func (b *Block) Set(g Group, tag Tag, v Value) {
	if b.Groups == nil {
		b.Groups = make(map[Group]map[Tag]Value)
	}
	if b.Groups[g] == nil {
		b.Groups[g] = make(map[Tag]Value)
	}
	b.Groups[g][tag] = v
}

func (b *Block) byteOrder() binary.ByteOrder {
	if b.Order == nil {
		return binary.BigEndian
	}
	return b.Order
}

var exifHeader = []byte("Exif\x00\x00")

// TrimHeader strips the "Exif\0\0" prefix used by JPEG APP1 segments and some
// WebP writers.
func TrimHeader(data []byte) []byte {
	return bytes.TrimPrefix(data, exifHeader)
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("exifblock: %w: %s", apperr.ErrDecode, fmt.Sprintf(format, args...))
}
