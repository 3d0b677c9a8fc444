package imagefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

// VP8X feature bits.
const (
	vp8xFlagEXIF  = 0x08
	vp8xFlagAlpha = 0x10
)

type riffChunk struct {
	id   string
	data []byte
}

func parseWebP(data []byte) ([]riffChunk, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, errors.New("not a WebP file")
	}
	end := 8 + int(binary.LittleEndian.Uint32(data[4:8]))
	if end > len(data) {
		end = len(data)
	}
	var chunks []riffChunk
	i := 12
	for i+8 <= end {
		id := string(data[i : i+4])
		n := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		start := i + 8
		if n < 0 || start+n > end {
			return nil, fmt.Errorf("webp: chunk %q overruns file", id)
		}
		chunks = append(chunks, riffChunk{id: id, data: data[start : start+n]})
		i = start + n + n%2
	}
	if len(chunks) == 0 {
		return nil, errors.New("webp: no chunks")
	}
	return chunks, nil
}

func joinWebP(chunks []riffChunk) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")
	for _, c := range chunks {
		var hdr [8]byte
		copy(hdr[:4], c.id)
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(c.data)))
		body.Write(hdr[:])
		body.Write(c.data)
		if len(c.data)%2 == 1 {
			body.WriteByte(0)
		}
	}
	var out bytes.Buffer
	out.WriteString("RIFF")
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(body.Len()))
	out.Write(size[:])
	out.Write(body.Bytes())
	return out.Bytes()
}

type webpContainer struct{}

func (webpContainer) extract(data []byte) ([]byte, error) {
	chunks, err := parseWebP(data)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.id == "EXIF" {
			return append([]byte(nil), bytes.TrimPrefix(c.data, exifHeader)...), nil
		}
	}
	return nil, nil
}

// embed stores tiff in an EXIF chunk. Simple (VP8/VP8L) files are promoted to
// the extended format, since only VP8X can announce metadata chunks.
func (webpContainer) embed(data, tiff []byte, cfg image.Config) ([]byte, error) {
	chunks, err := parseWebP(data)
	if err != nil {
		return nil, err
	}

	if chunks[0].id != "VP8X" {
		vp8x, err := newVP8X(cfg)
		if err != nil {
			return nil, err
		}
		chunks = append([]riffChunk{vp8x}, chunks...)
	} else {
		if len(chunks[0].data) < 10 {
			return nil, errors.New("webp: short VP8X chunk")
		}
		hdr := append([]byte(nil), chunks[0].data...)
		hdr[0] |= vp8xFlagEXIF
		chunks[0].data = hdr
	}

	exif := riffChunk{id: "EXIF", data: tiff}
	out := make([]riffChunk, 0, len(chunks)+1)
	placed := false
	for _, c := range chunks {
		switch {
		case c.id == "EXIF":
			if !placed {
				out = append(out, exif)
				placed = true
			}
			continue
		case c.id == "XMP " && !placed:
			out = append(out, exif)
			placed = true
		}
		out = append(out, c)
	}
	if !placed {
		out = append(out, exif)
	}
	return joinWebP(out), nil
}

// newVP8X leaves the alpha bit clear even when a promoted VP8L bitstream uses
// alpha. The VP8L header still records it, and golang.org/x/image/webp fails
// to decode a VP8L image whose VP8X header sets the bit.
func newVP8X(cfg image.Config) (riffChunk, error) {
	if cfg.Width < 1 || cfg.Height < 1 || cfg.Width > 1<<24 || cfg.Height > 1<<24 {
		return riffChunk{}, fmt.Errorf("webp: canvas %dx%d out of range", cfg.Width, cfg.Height)
	}
	data := make([]byte, 10)
	data[0] = vp8xFlagEXIF
	putUint24(data[4:7], uint32(cfg.Width-1))
	putUint24(data[7:10], uint32(cfg.Height-1))
	return riffChunk{id: "VP8X", data: data}, nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
