package imagefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

type pngChunk struct {
	typ string
	raw []byte // length, type, data and CRC exactly as read
}

func (c pngChunk) data() []byte {
	return c.raw[8 : len(c.raw)-4]
}

func newPNGChunk(typ string, data []byte) pngChunk {
	raw := make([]byte, 8+len(data)+4)
	binary.BigEndian.PutUint32(raw[0:], uint32(len(data)))
	copy(raw[4:], typ)
	copy(raw[8:], data)
	binary.BigEndian.PutUint32(raw[8+len(data):], crc32.ChecksumIEEE(raw[4:8+len(data)]))
	return pngChunk{typ: typ, raw: raw}
}

func parsePNG(data []byte) ([]pngChunk, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errors.New("not a PNG")
	}
	var chunks []pngChunk
	i := len(pngSignature)
	for i < len(data) {
		if i+12 > len(data) {
			return nil, fmt.Errorf("png: truncated chunk at offset %d", i)
		}
		n := int(binary.BigEndian.Uint32(data[i:]))
		end := i + 12 + n
		if n < 0 || end > len(data) {
			return nil, fmt.Errorf("png: chunk at offset %d overruns file", i)
		}
		c := pngChunk{typ: string(data[i+4 : i+8]), raw: data[i:end]}
		chunks = append(chunks, c)
		i = end
		if c.typ == "IEND" {
			break
		}
	}
	return chunks, nil
}

func joinPNG(chunks []pngChunk) []byte {
	var buf bytes.Buffer
	buf.Write(pngSignature)
	for _, c := range chunks {
		buf.Write(c.raw)
	}
	return buf.Bytes()
}

type pngContainer struct{}

func (pngContainer) extract(data []byte) ([]byte, error) {
	chunks, err := parsePNG(data)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.typ == "eXIf" {
			return append([]byte(nil), bytes.TrimPrefix(c.data(), exifHeader)...), nil
		}
	}
	return nil, nil
}

// embed replaces the eXIf chunk, or inserts one before the first IDAT.
func (pngContainer) embed(data, tiff []byte, _ image.Config) ([]byte, error) {
	chunks, err := parsePNG(data)
	if err != nil {
		return nil, err
	}
	exif := newPNGChunk("eXIf", tiff)

	out := make([]pngChunk, 0, len(chunks)+1)
	placed := false
	for _, c := range chunks {
		switch {
		case c.typ == "eXIf":
			if !placed {
				out = append(out, exif)
				placed = true
			}
			continue
		case c.typ == "IDAT" && !placed:
			out = append(out, exif)
			placed = true
		}
		out = append(out, c)
	}
	if !placed {
		return nil, errors.New("png: no IDAT chunk")
	}
	return joinPNG(out), nil
}
