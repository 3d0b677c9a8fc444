package exifblock

import (
	"encoding/binary"
)

type decoder struct {
	data  []byte
	order binary.ByteOrder
	seen  map[uint32]bool
}

// Decode parses a TIFF-structured EXIF block, with or without the
// "Exif\0\0" prefix.
//
// A malformed header or primary IFD is an error. Sub-IFDs that cannot be read
// are dropped, and entries whose values point outside the block are skipped.
func Decode(data []byte) (*Block, error) {
	data = TrimHeader(data)
	if len(data) < 8 {
		return nil, decodeErr("block too short (%d bytes)", len(data))
	}

	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, decodeErr("unknown byte order %q", data[:2])
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, decodeErr("bad TIFF magic")
	}

	d := &decoder{data: data, order: order, seen: make(map[uint32]bool)}
	b := &Block{Order: order, Groups: make(map[Group]map[Tag]Value)}

	ifd0, next, err := d.readIFD(order.Uint32(data[4:8]))
	if err != nil {
		return nil, err
	}
	b.Groups[Group0th] = ifd0

	if off, ok := d.pointer(ifd0, tagExifIFD); ok {
		if exif, _, err := d.readIFD(off); err == nil {
			b.Groups[GroupExif] = exif
			if ioff, ok := d.pointer(exif, tagInteropIFD); ok {
				if interop, _, err := d.readIFD(ioff); err == nil {
					b.Groups[GroupInterop] = interop
				}
			}
		}
	}
	if off, ok := d.pointer(ifd0, tagGPSIFD); ok {
		if gps, _, err := d.readIFD(off); err == nil {
			b.Groups[GroupGPS] = gps
		}
	}

	if next != 0 {
		if ifd1, _, err := d.readIFD(next); err == nil {
			b.Groups[Group1st] = ifd1
			off, okOff := d.pointer(ifd1, tagThumbnailOffset)
			n, okLen := d.pointer(ifd1, tagThumbnailLength)
			if okOff && okLen && uint64(off)+uint64(n) <= uint64(len(data)) {
				b.Thumbnail = append([]byte(nil), data[off:off+n]...)
			}
		}
	}

	return b, nil
}

// readIFD reads the directory at off and returns its entries and the offset
// of the next directory.
func (d *decoder) readIFD(off uint32) (map[Tag]Value, uint32, error) {
	if d.seen[off] {
		return nil, 0, decodeErr("IFD loop at offset %d", off)
	}
	d.seen[off] = true

	start := uint64(off)
	if start+2 > uint64(len(d.data)) {
		return nil, 0, decodeErr("IFD offset %d out of range", off)
	}
	n := uint64(d.order.Uint16(d.data[start:]))
	entriesEnd := start + 2 + 12*n
	if entriesEnd > uint64(len(d.data)) {
		return nil, 0, decodeErr("IFD at %d truncated", off)
	}

	out := make(map[Tag]Value, n)
	for i := uint64(0); i < n; i++ {
		p := start + 2 + 12*i
		field := d.data[p : p+12]
		tag := Tag(d.order.Uint16(field[0:2]))
		typ := Type(d.order.Uint16(field[2:4]))
		count := d.order.Uint32(field[4:8])

		unit := typ.Size()
		if unit == 0 {
			// Unknown type: its size is unknowable, so the value field is
			// carried verbatim. An offset in it no longer points at the data
			// once the block is re-encoded.
			out[tag] = Value{Type: typ, Count: count, Raw: append([]byte(nil), field[8:12]...)}
			continue
		}
		size := uint64(unit) * uint64(count)

		var raw []byte
		if size <= 4 {
			raw = append([]byte(nil), field[8:8+size]...)
		} else {
			voff := uint64(d.order.Uint32(field[8:12]))
			if voff+size > uint64(len(d.data)) {
				continue
			}
			raw = append([]byte(nil), d.data[voff:voff+size]...)
		}
		out[tag] = Value{Type: typ, Count: count, Raw: raw}
	}

	var next uint32
	if entriesEnd+4 <= uint64(len(d.data)) {
		next = d.order.Uint32(d.data[entriesEnd:])
	}
	return out, next, nil
}

// pointer removes tag from ifd and returns it as an offset.
func (d *decoder) pointer(ifd map[Tag]Value, tag Tag) (uint32, bool) {
	v, ok := ifd[tag]
	if !ok {
		return 0, false
	}
	delete(ifd, tag)
	if v.Count < 1 {
		return 0, false
	}
	switch v.Type {
	case TypeLong, TypeIFD:
		return d.order.Uint32(v.Raw[:4]), true
	case TypeShort:
		return uint32(d.order.Uint16(v.Raw[:2])), true
	}
	return 0, false
}
