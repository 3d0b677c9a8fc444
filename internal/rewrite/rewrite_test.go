package rewrite

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/starford/sidestamp/internal/apperr"
	"github.com/starford/sidestamp/internal/exifblock"
	"github.com/starford/sidestamp/internal/imagefile"
	"github.com/starford/sidestamp/internal/testutil"
)

const stamp = "2023:11:15 00:13:20"

func TestRewrite_AllFormats(t *testing.T) {
	dir := t.TempDir()
	cases := map[string][]byte{
		"a.jpg":  testutil.JPEG(t),
		"b.png":  testutil.PNG(t),
		"c.webp": testutil.WebP(t),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			p := testutil.WriteFile(t, dir, name, data)
			if err := Rewrite(p, stamp); err != nil {
				t.Fatalf("Rewrite: %v", err)
			}
			got, err := Inspect(p)
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			want := Timestamps{DateTime: stamp, DateTimeOriginal: stamp, DateTimeDigitized: stamp}
			if got != want {
				t.Errorf("Inspect = %+v, want %+v", got, want)
			}
		})
	}
}

func TestRewrite_Idempotent(t *testing.T) {
	p := testutil.WriteFile(t, t.TempDir(), "a.jpg", testutil.JPEG(t))
	if err := Rewrite(p, stamp); err != nil {
		t.Fatal(err)
	}
	first := testutil.ReadFile(t, p)
	if err := Rewrite(p, stamp); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, testutil.ReadFile(t, p)) {
		t.Error("second rewrite with the same value changed the file")
	}
}

func TestRewrite_PreservesOtherTags(t *testing.T) {
	order := binary.LittleEndian
	orig := &exifblock.Block{Order: order}
	orig.Set(exifblock.Group0th, 0x010F, exifblock.ASCII("Canon"))
	orig.Set(exifblock.Group0th, exifblock.TagDateTime, exifblock.ASCII("1999:01:01 00:00:00"))
	orig.Set(exifblock.GroupExif, 0x927C, exifblock.Value{Type: exifblock.TypeUndefined, Count: 5, Raw: []byte{1, 2, 3, 4, 5}})
	orig.Set(exifblock.GroupGPS, 0x0001, exifblock.ASCII("N"))
	orig.Set(exifblock.Group1st, 0x0103, exifblock.Value{Type: exifblock.TypeShort, Count: 1, Raw: []byte{6, 0}})
	orig.Thumbnail = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	tiff, err := orig.Encode()
	if err != nil {
		t.Fatal(err)
	}

	p := testutil.WriteFile(t, t.TempDir(), "a.jpg", testutil.JPEGWithEXIF(t, tiff))
	if err := Rewrite(p, stamp); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	asset, err := imagefile.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := exifblock.Decode(asset.EXIF())
	if err != nil {
		t.Fatal(err)
	}
	if got.Order != order {
		t.Errorf("byte order changed")
	}
	if !bytes.Equal(got.Thumbnail, orig.Thumbnail) {
		t.Errorf("thumbnail = %x", got.Thumbnail)
	}

	want := &exifblock.Block{Order: order, Groups: orig.Groups}
	Stamp(want, stamp)
	if !reflect.DeepEqual(got.Groups, want.Groups) {
		t.Errorf("groups differ\n got %#v\nwant %#v", got.Groups, want.Groups)
	}
}

func TestRewrite_CorruptEXIF(t *testing.T) {
	data := testutil.JPEGWithEXIF(t, []byte("XX not a tiff block"))
	p := testutil.WriteFile(t, t.TempDir(), "a.jpg", data)
	if err := Rewrite(p, stamp); !errors.Is(err, apperr.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
	if !bytes.Equal(testutil.ReadFile(t, p), data) {
		t.Error("file changed after a failed rewrite")
	}
}

func TestRewrite_Unreadable(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.gif", testutil.GIF(t))
	if err := Rewrite(p, stamp); !errors.Is(err, apperr.ErrImageOpen) {
		t.Errorf("gif: err = %v, want ErrImageOpen", err)
	}
	p = testutil.WriteFile(t, dir, "b.jpg", []byte("plain text"))
	if err := Rewrite(p, stamp); !errors.Is(err, apperr.ErrImageOpen) {
		t.Errorf("text: err = %v, want ErrImageOpen", err)
	}
}

func TestInspect_NoEXIF(t *testing.T) {
	p := testutil.WriteFile(t, t.TempDir(), "a.png", testutil.PNG(t))
	got, err := Inspect(p)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got != (Timestamps{}) {
		t.Errorf("Inspect = %+v, want zero", got)
	}
}
