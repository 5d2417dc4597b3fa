package jbig2

import (
	"bytes"
	"errors"
	"testing"
)

func TestBitmapEmpty(t *testing.T) {
	bm, err := NewBitmap(0, 0)
	if err != nil {
		t.Fatalf("NewBitmap(0, 0) failed: %v", err)
	}
	if bm.Width() != 0 || bm.Height() != 0 {
		t.Errorf("Expected 0x0, got %dx%d", bm.Width(), bm.Height())
	}

	// Out-of-bounds access is a no-op.
	bm.Set(0, 0, 1)
	if pixel := bm.Get(0, 0); pixel != 0 {
		t.Errorf("Expected pixel (0,0) to be 0, got %d", pixel)
	}
	if data := bm.Data(false); len(data) != 0 {
		t.Errorf("Expected no data, got %d bytes", len(data))
	}
}

func TestBitmapCreate(t *testing.T) {
	width, height := 80, 20
	bm, err := NewBitmap(width, height)
	if err != nil {
		t.Fatalf("NewBitmap failed: %v", err)
	}
	if bm.Width() != width || bm.Height() != height {
		t.Errorf("Expected %dx%d, got %dx%d", width, height, bm.Width(), bm.Height())
	}
	if pixel := bm.Get(width-1, height-1); pixel != 0 {
		t.Errorf("Expected new bitmap to be white, got %d", pixel)
	}

	bm.Set(0, 0, 1)
	bm.Set(width-1, height-1, 1)
	bm.Set(-1, 1, 1)
	bm.Set(width, height, 1)
	if pixel := bm.Get(0, 0); pixel != 1 {
		t.Errorf("Expected pixel (0,0) to be 1, got %d", pixel)
	}
	if pixel := bm.Get(width-1, height-1); pixel != 1 {
		t.Errorf("Expected pixel (%d,%d) to be 1, got %d", width-1, height-1, pixel)
	}
	if pixel := bm.Get(-1, -1); pixel != 0 {
		t.Errorf("Expected out-of-bounds pixel to be 0, got %d", pixel)
	}
	bm.Set(0, 0, 0)
	if pixel := bm.Get(0, 0); pixel != 0 {
		t.Errorf("Expected pixel (0,0) to be cleared, got %d", pixel)
	}
}

func TestBitmapCreateTooBig(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"negative", -1, 10},
		{"too many pixels", 80, 40000000},
		{"overflow", 1 << 31, 1 << 31},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBitmap(tt.width, tt.height)
			if !errors.Is(err, ErrDecodeFailure) {
				t.Errorf("Expected ErrDecodeFailure, got %v", err)
			}
		})
	}
}

func TestBitmapData(t *testing.T) {
	bm := bitmapFromRows(
		"#.#.#.#.##",
		".#.#.#.#..",
	)
	want := []byte{0xaa, 0xc0, 0x55, 0x00}
	if got := bm.Data(false); !bytes.Equal(got, want) {
		t.Errorf("Expected %x, got %x", want, got)
	}
	// Inversion leaves the padding bits at zero.
	want = []byte{0x55, 0x00, 0xaa, 0xc0}
	if got := bm.Data(true); !bytes.Equal(got, want) {
		t.Errorf("Expected inverted %x, got %x", want, got)
	}

	back, err := BitmapFromPacked(10, 2, bm.Data(false))
	if err != nil {
		t.Fatalf("BitmapFromPacked failed: %v", err)
	}
	if !back.Equal(bm) {
		t.Error("Expected packed round trip to preserve pixels")
	}
	if _, err := BitmapFromPacked(10, 3, bm.Data(false)); err == nil {
		t.Error("Expected error for short packed data")
	}
}

func TestBitmapClearAndExpand(t *testing.T) {
	bm, err := NewBitmap(70, 3)
	if err != nil {
		t.Fatal(err)
	}
	bm.Clear(1)
	bm.Set(5, 2, 0)
	if err := bm.Expand(6, 0); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if bm.Height() != 6 {
		t.Fatalf("Expected height 6, got %d", bm.Height())
	}
	if bm.Get(69, 0) != 1 || bm.Get(5, 2) != 0 || bm.Get(6, 2) != 1 {
		t.Error("Expected existing rows to be preserved")
	}
	for x := 0; x < 70; x++ {
		if bm.Get(x, 3) != 0 || bm.Get(x, 5) != 0 {
			t.Fatalf("Expected new rows to be white at column %d", x)
		}
	}
	if err := bm.Expand(7, 1); err != nil {
		t.Fatal(err)
	}
	if bm.Get(0, 6) != 1 || bm.Get(69, 6) != 1 {
		t.Error("Expected new row filled with the default pixel")
	}
	if err := bm.Expand(2, 0); err != nil || bm.Height() != 7 {
		t.Errorf("Expected shrinking Expand to be a no-op, got height %d (%v)", bm.Height(), err)
	}
}

func TestBitmapSlice(t *testing.T) {
	bm := bitmapFromRows(
		"........",
		"..##....",
		"..#.#...",
		"........",
	)
	sub, err := bm.Slice(2, 1, 3, 2)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if want := bitmapFromRows("##.", "#.#"); !sub.Equal(want) {
		t.Error("Expected slice to match the source rectangle")
	}
	if _, err := bm.Slice(6, 0, 3, 1); err == nil {
		t.Error("Expected error for a slice past the right edge")
	}
}

func TestBitmapCopyRow(t *testing.T) {
	bm := bitmapFromRows(
		"#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#..#",
		"......................................................................",
	)
	bm.CopyRow(1, 0)
	for x := 0; x < bm.Width(); x++ {
		if bm.Get(x, 1) != bm.Get(x, 0) {
			t.Fatalf("Expected row copy to match at column %d", x)
		}
	}
	bm.CopyRow(0, -1)
	if bm.Get(0, 0) != 1 {
		t.Error("Expected copy from a missing row to be ignored")
	}
}

func TestBitmapCombine(t *testing.T) {
	src := bitmapFromRows(
		"##",
		"#.",
	)
	tests := []struct {
		op   ComposeOp
		want []string
	}{
		{ComposeOR, []string{"###.", "###.", "...."}},
		{ComposeAND, []string{"#.#.", "#...", "...."}},
		{ComposeXOR, []string{"##..", "###.", "...."}},
		{ComposeXNOR, []string{"#.#.", "#...", "...."}},
		{ComposeReplace, []string{"###.", "##..", "...."}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			dst := bitmapFromRows(
				"#.#.",
				"#.#.",
				"....",
			)
			dst.Combine(src, 1, 0, tt.op)
			for y, row := range tt.want {
				for x := range row {
					want := 0
					if row[x] == '#' {
						want = 1
					}
					if got := dst.Get(x, y); got != want {
						t.Errorf("pixel (%d,%d): Expected %d, got %d", x, y, want, got)
					}
				}
			}
		})
	}
}

func TestBitmapCombineClips(t *testing.T) {
	src := bitmapFromRows(
		"###",
		"###",
		"###",
	)
	dst, _ := NewBitmap(4, 4)
	dst.Combine(src, -2, 3, ComposeOR)
	if dst.Get(0, 3) != 1 || dst.Get(1, 3) != 0 || dst.Get(0, 2) != 0 {
		t.Error("Expected only the overlapping corner to be composed")
	}
	dst.Combine(src, 10, 10, ComposeOR)
	dst.Combine(nil, 0, 0, ComposeOR)
}

func TestBitmapCombineWide(t *testing.T) {
	// Rows longer than a word, at an unaligned offset.
	src, _ := NewBitmap(150, 2)
	for x := 0; x < 150; x += 3 {
		src.Set(x, 1, 1)
	}
	dst, _ := NewBitmap(200, 3)
	dst.Combine(src, 37, 1, ComposeOR)
	for x := 0; x < 200; x++ {
		want := 0
		if x >= 37 && x < 187 && (x-37)%3 == 0 {
			want = 1
		}
		if got := dst.Get(x, 2); got != want {
			t.Fatalf("column %d: Expected %d, got %d", x, want, got)
		}
		if dst.Get(x, 1) != 0 {
			t.Fatalf("column %d: Expected row 1 untouched", x)
		}
	}
}

func TestComposeOpString(t *testing.T) {
	if got := ComposeXNOR.String(); got != "XNOR" {
		t.Errorf("Expected XNOR, got %s", got)
	}
	if got := ComposeOp(9).String(); got != "ComposeOp(9)" {
		t.Errorf("Expected ComposeOp(9), got %s", got)
	}
}

func TestBitmapCompositeProperties(t *testing.T) {
	a := bitmapFromRows(
		"#..#.##..#.#",
		".##.#..##.#.",
		"###...###...",
	)
	b := bitmapFromRows(
		"##..##..##..",
		"#.#.#.#.#.#.",
		"............",
	)

	dst, err := NewBitmap(12, 3)
	if err != nil {
		t.Fatal(err)
	}
	dst.Clear(1)
	dst.Combine(a, 0, 0, ComposeReplace)
	checkBitmap(t, dst, a)

	once := a.Copy()
	once.Combine(b, 0, 0, ComposeOR)
	twice := once.Copy()
	twice.Combine(b, 0, 0, ComposeOR)
	checkBitmap(t, twice, once)

	inverted, err := BitmapFromPacked(12, 3, a.Data(true))
	if err != nil {
		t.Fatal(err)
	}
	if got := inverted.Data(true); !bytes.Equal(got, a.Data(false)) {
		t.Errorf("Expected double inversion to give %x, got %x", a.Data(false), got)
	}
}
