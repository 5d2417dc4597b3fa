package main

import (
	"encoding/binary"
	"image"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "golang.org/x/image/tiff"
)

// sampleFile is a sequential standalone file with one 8x1 page whose
// pixels 2..4 are black.
func sampleFile() []byte {
	seg := func(buf []byte, number uint32, typ uint8, page uint8, data []byte) []byte {
		buf = binary.BigEndian.AppendUint32(buf, number)
		buf = append(buf, typ, 0x00, page)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
		return append(buf, data...)
	}
	var page []byte
	page = binary.BigEndian.AppendUint32(page, 8)
	page = binary.BigEndian.AppendUint32(page, 1)
	page = append(page, make([]byte, 11)...)

	var region []byte
	region = binary.BigEndian.AppendUint32(region, 8)
	region = binary.BigEndian.AppendUint32(region, 1)
	region = append(region, make([]byte, 9)...)
	region = append(region, 0x01, 0x2f, 0x40, 0x04, 0x00, 0x40)

	buf := []byte{0x97, 0x4a, 0x42, 0x32, 0x0d, 0x0a, 0x1a, 0x0a, 0x01, 0x00, 0x00, 0x00, 0x01}
	buf = seg(buf, 0, 48, 1, page)
	buf = seg(buf, 1, 38, 1, region)
	buf = seg(buf, 2, 49, 1, nil)
	return seg(buf, 3, 51, 0, nil)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "page.jb2")
	if err := os.WriteFile(input, sampleFile(), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.DiscardHandler)

	for _, format := range []string{"png", "tiff"} {
		t.Run(format, func(t *testing.T) {
			if err := run(logger, input, "", "", format, 1); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			f, err := os.Open(filepath.Join(dir, "page."+format))
			if err != nil {
				t.Fatalf("Expected an output file: %v", err)
			}
			defer f.Close()
			img, _, err := image.Decode(f)
			if err != nil {
				t.Fatalf("Decoding output failed: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 1 {
				t.Fatalf("Expected an 8x1 image, got %v", b)
			}
			for x := 0; x < 8; x++ {
				r, _, _, _ := img.At(x, 0).RGBA()
				black := x >= 2 && x <= 4
				if black != (r == 0) {
					t.Errorf("pixel %d: Expected black %v, got level %d", x, black, r)
				}
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	dir := t.TempDir()
	input := filepath.Join(dir, "page.jb2")
	if err := os.WriteFile(input, sampleFile(), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run(logger, input, "", "", "bmp", 1); err == nil {
		t.Error("Expected an error for an unknown format")
	}
	if err := run(logger, filepath.Join(dir, "missing.jb2"), "", "", "png", 1); err == nil {
		t.Error("Expected an error for a missing input")
	}
	if err := run(logger, input, "", filepath.Join(dir, "out.png"), "png", 2); err == nil {
		t.Error("Expected an error for a missing page")
	}
}
