package metadata

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/barasher/go-exiftool"
	"github.com/chai2010/webp"
)

func requireExiftool(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("exiftool"); err != nil {
		t.Skip("exiftool not installed")
	}
}

func writeFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, nil); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(src, jpg.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := webp.EncodeRGB(img, 80)
	if err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "photo.webp")
	if err := os.WriteFile(dst, data, 0644); err != nil {
		t.Fatal(err)
	}
	return src, dst
}

func TestCopyTransfersArtist(t *testing.T) {
	requireExiftool(t)
	src, dst := writeFixtures(t)

	et, err := exiftool.NewExiftool()
	if err != nil {
		t.Fatal(err)
	}
	defer et.Close()
	tagged := []exiftool.FileMetadata{{File: src, Fields: map[string]interface{}{}}}
	tagged[0].SetString("Artist", "Jane Doe")
	et.WriteMetadata(tagged)
	if tagged[0].Err != nil {
		t.Fatalf("tag source: %v", tagged[0].Err)
	}

	c, err := NewExifToolCopier("Artist")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Copy(src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	got := et.ExtractMetadata(dst)
	if len(got) != 1 || got[0].Err != nil {
		t.Fatalf("read back: %+v", got)
	}
	if artist, _ := got[0].GetString("Artist"); artist != "Jane Doe" {
		t.Fatalf("Artist = %q", artist)
	}
	if _, err := os.Stat(dst + "_original"); err == nil {
		t.Error("backup file left behind")
	}
}

func TestCopyWithoutTagsIsNoop(t *testing.T) {
	requireExiftool(t)
	src, dst := writeFixtures(t)
	before, _ := os.ReadFile(dst)

	c, err := NewExifToolCopier("Artist")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Copy(src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	after, _ := os.ReadFile(dst)
	if !bytes.Equal(before, after) {
		t.Fatal("output modified although source had no tags")
	}
}
