package icon

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestRenderLayout(t *testing.T) {
	img := Render()
	if img.Bounds().Dx() != 512 || img.Bounds().Dy() != 512 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	if a := img.NRGBAAt(5, 5).A; a != 0 {
		t.Errorf("corner should be transparent, alpha = %d", a)
	}
	// Inside the circle, away from the letter.
	if got := img.NRGBAAt(256, 100); !near(got, circleColor) {
		t.Errorf("circle pixel = %v, want %v", got, circleColor)
	}
	// Just above the lowest vertex of the first stroke.
	if got := img.NRGBAAt(256, 330); !near(got, letterColor) {
		t.Errorf("letter pixel = %v, want %v", got, letterColor)
	}
}

func TestGenerateWritesAllSizes(t *testing.T) {
	dir := t.TempDir()
	paths, err := Generate(dir, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(paths) != len(DefaultSizes)+1 {
		t.Fatalf("expected %d files, got %v", len(DefaultSizes)+1, paths)
	}

	for _, size := range DefaultSizes {
		f, err := os.Open(filepath.Join(dir, "icon_"+strconv.Itoa(size)+".png"))
		if err != nil {
			t.Fatal(err)
		}
		cfg, err := png.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Width != size || cfg.Height != size {
			t.Errorf("icon_%d.png is %dx%d", size, cfg.Width, cfg.Height)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "app_icon.ico"))
	if err != nil {
		t.Fatal(err)
	}
	var hdr icoHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		t.Fatal(err)
	}
	if hdr.Type != 1 || hdr.Count != 5 {
		t.Fatalf("ico header = %+v, want type 1 with 5 images", hdr)
	}
}

func TestEncodeICOEntries(t *testing.T) {
	small := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	small.Set(0, 0, color.NRGBA{R: 1, A: 255})
	large := image.NewNRGBA(image.Rect(0, 0, 256, 256))

	var buf bytes.Buffer
	if err := EncodeICO(&buf, []*image.NRGBA{small, large}); err != nil {
		t.Fatal(err)
	}

	r := bytes.NewReader(buf.Bytes())
	var hdr icoHeader
	_ = binary.Read(r, binary.LittleEndian, &hdr)
	entries := make([]icoEntry, hdr.Count)
	if err := binary.Read(r, binary.LittleEndian, &entries); err != nil {
		t.Fatal(err)
	}
	if entries[0].Width != 16 || entries[1].Width != 0 {
		t.Errorf("widths = %d, %d; want 16, 0", entries[0].Width, entries[1].Width)
	}
	if entries[0].Offset != 6+16*2 {
		t.Errorf("first offset = %d", entries[0].Offset)
	}
	if entries[1].Offset != entries[0].Offset+entries[0].Size {
		t.Errorf("offsets not contiguous: %+v", entries)
	}

	payload := buf.Bytes()[entries[0].Offset : entries[0].Offset+entries[0].Size]
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("embedded PNG invalid: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("embedded image width %d", img.Bounds().Dx())
	}
}

func TestEncodeICORejectsOversizedImages(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeICO(&buf, []*image.NRGBA{image.NewNRGBA(image.Rect(0, 0, 512, 512))})
	if err == nil {
		t.Fatal("expected error for 512px ICO entry")
	}
}

func TestGenerateRejectsInvalidSize(t *testing.T) {
	if _, err := Generate(t.TempDir(), []int{0}); err == nil {
		t.Fatal("expected error for size 0")
	}
}

func near(a, b color.NRGBA) bool {
	diff := func(x, y uint8) bool {
		d := int(x) - int(y)
		return d > 3 || d < -3
	}
	return !diff(a.R, b.R) && !diff(a.G, b.G) && !diff(a.B, b.B) && !diff(a.A, b.A)
}
