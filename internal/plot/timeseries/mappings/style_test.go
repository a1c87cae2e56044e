package mappings

import "testing"

func TestGetCoreStyleWraps(t *testing.T) {
	first, again := GetCoreStyle(1), GetCoreStyle(9)
	if first.Color != again.Color {
		t.Fatalf("core 9 should reuse core 1's color, got %s and %s", first.Color, again.Color)
	}
	if first.LineStyle == again.LineStyle {
		t.Fatalf("wrapped cores must differ in line style, both %s", first.LineStyle)
	}
	if GetCoreStyle(-3) != GetCoreStyle(0) {
		t.Fatalf("negative core should map to core 0")
	}
}

func TestToTikzOptions(t *testing.T) {
	got := GetCoreStyle(0).ToTikzOptions()
	want := "red,solid,thick,mark=triangle*,mark options={scale=0.4,fill=red}"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	got = PlotStyle{Color: "blue", Mark: "none"}.ToTikzOptions()
	if got != "blue" {
		t.Fatalf("expected bare color, got %q", got)
	}
}
