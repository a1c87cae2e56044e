package mappings

import "strings"

// PlotStyle is the pgfplots look of one core's line.
type PlotStyle struct {
	Color     string
	LineStyle string
	LineWidth string
	Mark      string
	MarkScale string
}

var (
	coreColors = []string{"red", "blue", "green!70!black", "orange", "purple", "brown", "black", "cyan"}
	coreMarks  = []string{"triangle*", "square", "*", "diamond*", "pentagon*", "x", "o", "star"}
	// one per pass over the colors
	coreLines = []string{"solid", "densely dashed", "densely dotted", "dashdotted"}
)

// GetCoreStyle picks a color and mark by core id and a line style by how
// many times the palette has wrapped.
func GetCoreStyle(core int) PlotStyle {
	if core < 0 {
		core = 0
	}
	n := len(coreColors)
	wrap := (core / n) % len(coreLines)
	return PlotStyle{
		Color:     coreColors[core%n],
		LineStyle: coreLines[wrap],
		LineWidth: "thick",
		Mark:      coreMarks[core%len(coreMarks)],
		MarkScale: "0.4",
	}
}

func (ps PlotStyle) ToTikzOptions() string {
	opts := []string{ps.Color}
	if ps.LineStyle != "" {
		opts = append(opts, ps.LineStyle)
	}
	if ps.LineWidth != "" {
		opts = append(opts, ps.LineWidth)
	}
	if ps.Mark != "" && ps.Mark != "none" {
		opts = append(opts, "mark="+ps.Mark)
		markOpts := []string{}
		if ps.MarkScale != "" {
			markOpts = append(markOpts, "scale="+ps.MarkScale)
		}
		if strings.HasSuffix(ps.Mark, "*") {
			markOpts = append(markOpts, "fill="+ps.Color)
		}
		if len(markOpts) > 0 {
			opts = append(opts, "mark options={"+strings.Join(markOpts, ",")+"}")
		}
	}
	return strings.Join(opts, ",")
}
