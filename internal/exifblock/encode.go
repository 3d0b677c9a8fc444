package exifblock

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/starford/sidestamp/internal/apperr"
)

// managed lists the tags the encoder owns in each group.
var managed = map[Group][]Tag{
	Group0th:  {tagExifIFD, tagGPSIFD},
	GroupExif: {tagInteropIFD},
	Group1st:  {tagThumbnailOffset, tagThumbnailLength},
}

type entry struct {
	tag Tag
	v   Value
}

type ifd struct {
	group   Group
	entries []entry
	offset  uint32
	size    uint64
}

// Encode serializes the block in its byte order, without the "Exif\0\0"
// prefix. IFDs are laid out as 0th, Exif, GPS, Interop, 1st, followed by the
// thumbnail.
func (b *Block) Encode() ([]byte, error) {
	order := b.byteOrder()

	hasInterop := len(b.Groups[GroupInterop]) > 0
	hasExif := len(b.Groups[GroupExif]) > 0 || hasInterop
	hasGPS := len(b.Groups[GroupGPS]) > 0
	has1st := len(b.Groups[Group1st]) > 0 || len(b.Thumbnail) > 0

	ifd0 := b.plan(Group0th)
	var exif, gps, interop, ifd1 *ifd
	plans := []*ifd{ifd0}
	if hasExif {
		exif = b.plan(GroupExif)
		plans = append(plans, exif)
	}
	if hasGPS {
		gps = b.plan(GroupGPS)
		plans = append(plans, gps)
	}
	if hasInterop {
		interop = b.plan(GroupInterop)
		plans = append(plans, interop)
	}
	if has1st {
		ifd1 = b.plan(Group1st)
		plans = append(plans, ifd1)
	}

	// Pointer placeholders are inline LONGs, so they never change sizes.
	if exif != nil {
		ifd0.add(tagExifIFD, placeholder())
	}
	if gps != nil {
		ifd0.add(tagGPSIFD, placeholder())
	}
	if interop != nil {
		exif.add(tagInteropIFD, placeholder())
	}
	if ifd1 != nil && len(b.Thumbnail) > 0 {
		ifd1.add(tagThumbnailOffset, placeholder())
		ifd1.add(tagThumbnailLength, placeholder())
	}

	total := uint64(8)
	for _, p := range plans {
		sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].tag < p.entries[j].tag })
		p.offset = uint32(total)
		p.size = p.measure()
		total += p.size
	}
	thumbOffset := total
	total += uint64(len(b.Thumbnail))
	if total > math.MaxUint32 {
		return nil, fmt.Errorf("exifblock: %w: block exceeds 4 GiB", apperr.ErrEncode)
	}

	if exif != nil {
		ifd0.fill(order, tagExifIFD, exif.offset)
	}
	if gps != nil {
		ifd0.fill(order, tagGPSIFD, gps.offset)
	}
	if interop != nil {
		exif.fill(order, tagInteropIFD, interop.offset)
	}
	if ifd1 != nil && len(b.Thumbnail) > 0 {
		ifd1.fill(order, tagThumbnailOffset, uint32(thumbOffset))
		ifd1.fill(order, tagThumbnailLength, uint32(len(b.Thumbnail)))
	}

	out := make([]byte, total)
	if order == binary.LittleEndian {
		copy(out, "II")
	} else {
		copy(out, "MM")
	}
	order.PutUint16(out[2:], 42)
	order.PutUint32(out[4:], ifd0.offset)

	for _, p := range plans {
		var next uint32
		if p == ifd0 && ifd1 != nil {
			next = ifd1.offset
		}
		if err := p.write(out, order, next); err != nil {
			return nil, err
		}
	}
	copy(out[thumbOffset:], b.Thumbnail)
	return out, nil
}

// plan collects the unmanaged entries of group g.
func (b *Block) plan(g Group) *ifd {
	skip := make(map[Tag]bool)
	for _, t := range managed[g] {
		skip[t] = true
	}
	p := &ifd{group: g}
	for tag, v := range b.Groups[g] {
		if skip[tag] {
			continue
		}
		p.entries = append(p.entries, entry{tag: tag, v: v})
	}
	return p
}

func placeholder() Value {
	return Value{Type: TypeLong, Count: 1, Raw: make([]byte, 4)}
}

func (p *ifd) add(tag Tag, v Value) {
	p.entries = append(p.entries, entry{tag: tag, v: v})
}

func (p *ifd) fill(order binary.ByteOrder, tag Tag, val uint32) {
	for _, e := range p.entries {
		if e.tag == tag {
			order.PutUint32(e.v.Raw, val)
			return
		}
	}
}

// measure returns the directory size including its out-of-line values, each
// padded to an even length.
func (p *ifd) measure() uint64 {
	size := uint64(2 + 12*len(p.entries) + 4)
	for _, e := range p.entries {
		if n := uint64(len(e.v.Raw)); n > 4 {
			size += n + n%2
		}
	}
	return size
}

func (p *ifd) write(out []byte, order binary.ByteOrder, next uint32) error {
	if len(p.entries) > math.MaxUint16 {
		return fmt.Errorf("exifblock: %w: %s has %d entries", apperr.ErrEncode, p.group, len(p.entries))
	}
	base := uint64(p.offset)
	order.PutUint16(out[base:], uint16(len(p.entries)))
	data := base + 2 + 12*uint64(len(p.entries)) + 4

	for i, e := range p.entries {
		if want := e.v.rawLen(); want != uint64(len(e.v.Raw)) {
			return fmt.Errorf("exifblock: %w: %s tag 0x%04x has %d bytes, want %d",
				apperr.ErrEncode, p.group, uint16(e.tag), len(e.v.Raw), want)
		}
		field := out[base+2+12*uint64(i):]
		order.PutUint16(field[0:], uint16(e.tag))
		order.PutUint16(field[2:], uint16(e.v.Type))
		order.PutUint32(field[4:], e.v.Count)
		if len(e.v.Raw) <= 4 {
			copy(field[8:12], e.v.Raw)
			continue
		}
		order.PutUint32(field[8:], uint32(data))
		copy(out[data:], e.v.Raw)
		n := uint64(len(e.v.Raw))
		data += n + n%2
	}
	order.PutUint32(out[base+2+12*uint64(len(p.entries)):], next)
	return nil
}
