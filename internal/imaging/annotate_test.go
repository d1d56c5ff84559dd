package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		input   string
		r, g, b uint8
	}{
		{"#FF0000", 255, 0, 0},
		{"#00ff00", 0, 255, 0},
		{"#123456", 0x12, 0x34, 0x56},
		{"not-a-color", 0, 255, 0}, // falls back to default green
		{"", 0, 255, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, g, b, a := ParseColor(tt.input).RGBA()
			if uint8(r>>8) != tt.r || uint8(g>>8) != tt.g || uint8(b>>8) != tt.b || uint8(a>>8) != 255 {
				t.Errorf("ParseColor(%q): got (%d,%d,%d,%d), want (%d,%d,%d,255)",
					tt.input, r>>8, g>>8, b>>8, a>>8, tt.r, tt.g, tt.b)
			}
		})
	}
}

func TestAnnotate_DrawsOutline(t *testing.T) {
	frame := createInMemoryImage(100, 100, color.RGBA{0, 0, 0, 255})
	red := color.RGBA{255, 0, 0, 255}

	out := Annotate(frame, []Annotation{{Rect: image.Rect(20, 30, 60, 70)}}, red, 2)

	checks := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"top edge", 40, 30, red},
		{"top edge inner row", 40, 31, red},
		{"left edge", 20, 50, red},
		{"right edge", 59, 50, red},
		{"bottom edge", 40, 69, red},
		{"interior", 40, 50, color.RGBA{0, 0, 0, 255}},
		{"outside", 10, 10, color.RGBA{0, 0, 0, 255}},
	}

	for _, c := range checks {
		if got := out.RGBAAt(c.x, c.y); got != c.want {
			t.Errorf("%s at (%d,%d): got %v, want %v", c.name, c.x, c.y, got, c.want)
		}
	}
}

func TestAnnotate_DoesNotModifyInput(t *testing.T) {
	frame := createInMemoryImage(50, 50, color.RGBA{0, 0, 0, 255}).(*image.RGBA)

	Annotate(frame, []Annotation{{Rect: image.Rect(0, 0, 50, 50), Label: "A"}}, color.White, 3)

	if got := frame.RGBAAt(0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("input frame was modified: got %v at (0,0)", got)
	}
}

func TestAnnotate_LabelAndClamping(t *testing.T) {
	frame := createInMemoryImage(120, 60, color.RGBA{0, 0, 0, 255})

	out := Annotate(frame, []Annotation{
		{Rect: image.Rect(-20, -20, 500, 500), Label: "aspirin"},
		{Rect: image.Rectangle{}, Label: "unknown"},
	}, color.White, 1)

	if out.Bounds() != image.Rect(0, 0, 120, 60) {
		t.Fatalf("bounds: got %v", out.Bounds())
	}

	lit := 0
	for y := 1; y < 15; y++ {
		for x := 1; x < 60; x++ {
			if c := out.RGBAAt(x, y); c.R > 128 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("expected label pixels near the top-left corner")
	}
}
