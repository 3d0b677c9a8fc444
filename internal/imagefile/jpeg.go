package imagefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1

	// maxSegmentPayload is the largest payload a length-prefixed segment holds.
	maxSegmentPayload = 0xFFFF - 2
)

var exifHeader = []byte("Exif\x00\x00")

type jpegSegment struct {
	marker     byte
	standalone bool
	data       []byte
}

// jpegFile holds the header segments up to and including SOS. tail is the
// entropy-coded data and everything after it, copied through untouched.
type jpegFile struct {
	segments []jpegSegment
	tail     []byte
}

func parseJPEG(data []byte) (*jpegFile, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, errors.New("not a JPEG")
	}
	f := &jpegFile{}
	i := 2
	for i < len(data) {
		if data[i] != 0xFF {
			return nil, fmt.Errorf("jpeg: expected marker at offset %d", i)
		}
		for i < len(data) && data[i] == 0xFF {
			i++
		}
		if i >= len(data) {
			return nil, errors.New("jpeg: truncated marker")
		}
		m := data[i]
		i++

		switch {
		case m == markerEOI:
			f.tail = append([]byte{0xFF, markerEOI}, data[i:]...)
			return f, nil
		case m == 0x01 || (m >= 0xD0 && m <= 0xD7):
			f.segments = append(f.segments, jpegSegment{marker: m, standalone: true})
			continue
		}

		if i+2 > len(data) {
			return nil, errors.New("jpeg: truncated segment length")
		}
		n := int(binary.BigEndian.Uint16(data[i:]))
		if n < 2 || i+n > len(data) {
			return nil, fmt.Errorf("jpeg: segment 0x%02X overruns file", m)
		}
		f.segments = append(f.segments, jpegSegment{marker: m, data: data[i+2 : i+n]})
		i += n

		if m == markerSOS {
			f.tail = data[i:]
			return f, nil
		}
	}
	return f, nil
}

func (f *jpegFile) bytes() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, markerSOI})
	for _, s := range f.segments {
		buf.Write([]byte{0xFF, s.marker})
		if s.standalone {
			continue
		}
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(s.data)+2))
		buf.Write(l[:])
		buf.Write(s.data)
	}
	buf.Write(f.tail)
	return buf.Bytes()
}

func (f *jpegFile) exifIndex() int {
	for i, s := range f.segments {
		if s.marker == markerAPP1 && bytes.HasPrefix(s.data, exifHeader) {
			return i
		}
	}
	return -1
}

type jpegContainer struct{}

func (jpegContainer) extract(data []byte) ([]byte, error) {
	f, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}
	i := f.exifIndex()
	if i < 0 {
		return nil, nil
	}
	return append([]byte(nil), f.segments[i].data[len(exifHeader):]...), nil
}

func (jpegContainer) embed(data, tiff []byte, _ image.Config) ([]byte, error) {
	f, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}
	payload := append(append([]byte(nil), exifHeader...), tiff...)
	if len(payload) > maxSegmentPayload {
		return nil, fmt.Errorf("jpeg: EXIF block of %d bytes exceeds APP1 limit", len(tiff))
	}
	seg := jpegSegment{marker: markerAPP1, data: payload}

	if i := f.exifIndex(); i >= 0 {
		f.segments[i] = seg
		return f.bytes(), nil
	}

	// JFIF requires APP0 to come first; EXIF follows it.
	at := 0
	for at < len(f.segments) && f.segments[at].marker == markerAPP0 {
		at++
	}
	f.segments = append(f.segments[:at], append([]jpegSegment{seg}, f.segments[at:]...)...)
	return f.bytes(), nil
}
