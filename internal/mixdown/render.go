package mixdown

import (
	"fmt"
	"math"
	"strings"
)

// Render turns a plan into the ffmpeg argument list that produces
// outputPath. Single-layer plans must be handled by the caller; Render
// always builds a filter graph.
func Render(plan Plan, outputPath string) []string {
	args := make([]string, 0, 8+4*len(plan.Layers))
	for _, layer := range plan.Layers {
		args = append(args, "-i", layer.Source)
	}

	var graph strings.Builder
	labels := make([]string, 0, len(plan.Layers))
	for i, layer := range plan.Layers {
		if i > 0 {
			graph.WriteString(";")
		}
		fmt.Fprintf(&graph, "[%d:a]%s[%s]", i, layerFilters(layer), layer.Label)
		labels = append(labels, "["+layer.Label+"]")
	}
	graph.WriteString(";")
	graph.WriteString(strings.Join(labels, ""))
	fmt.Fprintf(&graph, "amix=inputs=%d:duration=longest[mix]", len(plan.Layers))

	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "[mix]",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-y",
		outputPath,
	)
	return args
}

// layerFilters renders one layer's filter chain. A layer with no treatment
// still needs a filter to be addressable, so it falls back to anull.
func layerFilters(layer Layer) string {
	var filters []string
	if layer.Gain > 0 {
		filters = append(filters, fmt.Sprintf("volume=%s", formatSeconds(layer.Gain)))
	}
	if layer.DelaySeconds > 0 {
		ms := int(math.Round(layer.DelaySeconds * 1000))
		filters = append(filters, fmt.Sprintf("adelay=%d|%d", ms, ms))
	}
	if layer.FadeOut != nil {
		filters = append(filters, fmt.Sprintf("afade=t=out:st=%s:d=%s",
			formatSeconds(layer.FadeOut.StartSeconds),
			formatSeconds(layer.FadeOut.DurationSeconds)))
	}
	if layer.PadSeconds > 0 {
		filters = append(filters, fmt.Sprintf("apad=pad_dur=%s", formatSeconds(layer.PadSeconds)))
	}
	if len(filters) == 0 {
		return "anull"
	}
	return strings.Join(filters, ",")
}

// formatSeconds renders a float without trailing zeros, e.g. 3 not 3.000.
func formatSeconds(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
