package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liliang-cn/tablechat/internal/domain"
)

var palette = []string{"#3b82f6", "#8b5cf6", "#10b981", "#f59e0b", "#ef4444", "#06b6d4", "#ec4899"}

// ChartOptions controls theme-dependent defaults
type ChartOptions struct {
	Dark bool
}

// Line is a trace or marker outline
type Line struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	Shape string  `json:"shape,omitempty"`
}

// Marker styles trace points, bars or slices
type Marker struct {
	Color  any      `json:"color,omitempty"`
	Colors []string `json:"colors,omitempty"`
	Size   float64  `json:"size,omitempty"`
	Line   *Line    `json:"line,omitempty"`
}

// Trace is one plot series
type Trace struct {
	Type         string   `json:"type"`
	Name         string   `json:"name,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Orientation  string   `json:"orientation,omitempty"`
	X            []any    `json:"x,omitempty"`
	Y            []any    `json:"y,omitempty"`
	Labels       []any    `json:"labels,omitempty"`
	Values       []any    `json:"values,omitempty"`
	Parents      []any    `json:"parents,omitempty"`
	Locations    []any    `json:"locations,omitempty"`
	Z            []any    `json:"z,omitempty"`
	LocationMode string   `json:"locationmode,omitempty"`
	Hole         *float64 `json:"hole,omitempty"`
	TextInfo     string   `json:"textinfo,omitempty"`
	TextPosition string   `json:"textposition,omitempty"`
	Marker       *Marker  `json:"marker,omitempty"`
	Line         *Line    `json:"line,omitempty"`

	// attrs holds the trace exactly as received; fields above override it
	attrs map[string]any
}

// MarshalJSON writes the received attributes with the typed fields merged
// over them, so attributes without a typed field pass through.
func (t Trace) MarshalJSON() ([]byte, error) {
	type plain Trace
	typed, err := json.Marshal(plain(t))
	if err != nil || len(t.attrs) == 0 {
		return typed, err
	}

	var fields, merged map[string]any
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	// Round-trip attrs so merging never touches the stored maps.
	raw, err := json.Marshal(t.attrs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(mergeAttrs(merged, fields))
}

// Attr returns a received trace attribute
func (t Trace) Attr(name string) (any, bool) {
	v, ok := t.attrs[name]
	return v, ok
}

func mergeAttrs(dst, src map[string]any) map[string]any {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				dst[k] = mergeAttrs(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// inputTrace is a trace as the upstream sends it, with shorthand fields
type inputTrace struct {
	Trace
	Color  string   `json:"color"`
	Colors []string `json:"colors"`
	Title  string   `json:"title"`
}

// Chart is a plot-ready chart
type Chart struct {
	Kind   domain.ChartKind `json:"kind"`
	Data   []Trace          `json:"data"`
	Layout map[string]any   `json:"layout"`
}

// NormalizeCharts normalizes every chart and drops the ones that cannot render.
func NormalizeCharts(charts domain.Charts, opts ChartOptions) []Chart {
	out := make([]Chart, 0, len(charts))
	for _, c := range charts {
		if chart, ok := NormalizeChart(c, opts); ok {
			out = append(out, *chart)
		}
	}
	return out
}

// NormalizeChart maps an upstream chart payload to a plot-ready chart. Unknown
// kinds and undecodable data render nothing.
func NormalizeChart(payload domain.ChartPayload, opts ChartOptions) (*Chart, bool) {
	if !payload.Type.Valid() {
		return nil, false
	}

	inputs, err := decodeTraces(payload)
	if err != nil {
		return nil, false
	}

	traces := make([]Trace, 0, len(inputs))
	for i, in := range inputs {
		traces = append(traces, styleTrace(payload.Type, in, i, opts))
	}

	return &Chart{
		Kind:   payload.Type,
		Data:   traces,
		Layout: buildLayout(payload, inputs, opts),
	}, true
}

func decodeTraces(payload domain.ChartPayload) ([]inputTrace, error) {
	raw := strings.TrimSpace(string(payload.Data))
	switch {
	case raw == "" || raw == "null":
		return []inputTrace{{Trace: Trace{X: payload.X, Y: payload.Y}}}, nil

	case strings.HasPrefix(raw, "["):
		var list []inputTrace
		if err := json.Unmarshal(payload.Data, &list); err != nil {
			return nil, err
		}
		var attrs []map[string]any
		if err := json.Unmarshal(payload.Data, &attrs); err != nil {
			return nil, err
		}
		for i := range list {
			list[i].attrs = dropShorthand(attrs[i])
			if list[i].Name == "" {
				list[i].Name = fmt.Sprintf("Series %d", i+1)
			}
		}
		return list, nil

	default:
		var one inputTrace
		if err := json.Unmarshal(payload.Data, &one); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload.Data, &one.attrs); err != nil {
			return nil, err
		}
		one.attrs = dropShorthand(one.attrs)
		if one.X == nil {
			one.X = payload.X
		}
		if one.Y == nil {
			one.Y = payload.Y
		}
		return []inputTrace{one}, nil
	}
}

// dropShorthand removes the inputTrace-only keys from received attributes.
func dropShorthand(attrs map[string]any) map[string]any {
	delete(attrs, "color")
	delete(attrs, "colors")
	delete(attrs, "title")
	return attrs
}

func styleTrace(kind domain.ChartKind, in inputTrace, idx int, opts ChartOptions) Trace {
	t := in.Trace
	color := in.Color
	if color == "" {
		color = palette[idx%len(palette)]
	}
	outline := "#ffffff"
	if opts.Dark {
		outline = "#1e293b"
	}

	switch kind {
	case domain.ChartBar:
		t.Type = "bar"
		t.Marker = withMarker(t.Marker, color)
		if t.Marker.Line == nil {
			t.Marker.Line = &Line{Color: pick(opts.Dark, "#334155", "#e2e8f0"), Width: 1}
		}

	case domain.ChartPie:
		t.Type = "pie"
		if t.Hole == nil {
			hole := 0.0
			t.Hole = &hole
		}
		if t.TextInfo == "" {
			t.TextInfo = "label+percent"
		}
		if t.TextPosition == "" {
			t.TextPosition = "outside"
		}
		if t.Marker == nil {
			t.Marker = &Marker{}
		}
		if len(t.Marker.Colors) == 0 {
			t.Marker.Colors = in.Colors
			if len(t.Marker.Colors) == 0 {
				t.Marker.Colors = palette
			}
		}
		if t.Marker.Line == nil {
			t.Marker.Line = &Line{Color: outline, Width: 2}
		}

	case domain.ChartLine:
		t.Type = "scatter"
		if t.Mode == "" {
			t.Mode = "lines+markers"
		}
		if t.Line == nil {
			t.Line = &Line{}
		}
		if t.Line.Color == "" {
			t.Line.Color = color
		}
		if t.Line.Width == 0 {
			t.Line.Width = 2
		}
		if t.Line.Shape == "" {
			t.Line.Shape = "linear"
		}
		t.Marker = withMarker(t.Marker, t.Line.Color)
		if t.Marker.Size == 0 {
			t.Marker.Size = 6
		}

	case domain.ChartScatter:
		t.Type = "scatter"
		if t.Mode == "" {
			t.Mode = "markers"
		}
		t.Marker = withMarker(t.Marker, color)
		if t.Marker.Size == 0 {
			t.Marker.Size = 8
		}
		if t.Marker.Line == nil {
			t.Marker.Line = &Line{Color: outline, Width: 1}
		}

	case domain.ChartTreemap:
		t.Type = "treemap"
		if t.Marker == nil {
			t.Marker = &Marker{}
		}
		if len(t.Marker.Colors) == 0 {
			t.Marker.Colors = in.Colors
			if len(t.Marker.Colors) == 0 {
				t.Marker.Colors = palette
			}
		}
		if t.Marker.Line == nil {
			t.Marker.Line = &Line{Color: outline, Width: 2}
		}

	case domain.ChartChoropleth:
		t.Type = "choropleth"
		if t.Marker == nil {
			t.Marker = &Marker{}
		}
		if t.Marker.Line == nil {
			t.Marker.Line = &Line{Color: pick(opts.Dark, "#334155", "#cbd5e1"), Width: 1}
		}
	}

	return t
}

func withMarker(m *Marker, color string) *Marker {
	if m == nil {
		m = &Marker{}
	}
	if m.Color == nil {
		m.Color = color
	}
	return m
}

func buildLayout(payload domain.ChartPayload, inputs []inputTrace, opts ChartOptions) map[string]any {
	fg := pick(opts.Dark, "#f1f5f9", "#1e293b")
	layout := map[string]any{
		"autosize":      true,
		"paper_bgcolor": "rgba(0,0,0,0)",
		"plot_bgcolor":  "rgba(0,0,0,0)",
		"font": map[string]any{
			"color":  fg,
			"family": "Inter, system-ui, sans-serif",
			"size":   12,
		},
		"margin":     map[string]any{"l": 60, "r": 30, "t": 50, "b": 50},
		"showlegend": true,
		"legend": map[string]any{
			"bgcolor":     "rgba(0,0,0,0)",
			"bordercolor": pick(opts.Dark, "#475569", "#cbd5e1"),
			"borderwidth": 1,
			"font":        map[string]any{"color": fg},
		},
	}
	for k, v := range payload.Layout {
		layout[k] = v
	}

	layout["title"] = map[string]any{
		"text":    chartTitle(payload, inputs),
		"font":    map[string]any{"size": 16, "color": fg, "family": "Inter, system-ui, sans-serif"},
		"x":       0.5,
		"xanchor": "center",
	}

	if payload.Type != domain.ChartPie {
		for _, axis := range []string{"xaxis", "yaxis"} {
			a := map[string]any{}
			if override, ok := payload.Layout[axis].(map[string]any); ok {
				for k, v := range override {
					a[k] = v
				}
			}
			if _, ok := a["gridcolor"]; !ok {
				a["gridcolor"] = pick(opts.Dark, "#334155", "#e2e8f0")
			}
			if _, ok := a["linecolor"]; !ok {
				a["linecolor"] = pick(opts.Dark, "#475569", "#cbd5e1")
			}
			layout[axis] = a
		}
	}

	return layout
}

func chartTitle(payload domain.ChartPayload, inputs []inputTrace) string {
	switch t := payload.Layout["title"].(type) {
	case string:
		if t != "" {
			return t
		}
	case map[string]any:
		if text, ok := t["text"].(string); ok && text != "" {
			return text
		}
	}
	if payload.Title != "" {
		return payload.Title
	}
	if len(inputs) == 1 && inputs[0].Title != "" {
		return inputs[0].Title
	}
	switch payload.Type {
	case domain.ChartBar:
		return "Data Trends"
	case domain.ChartPie:
		return "Data Distribution"
	default:
		return "Chart"
	}
}

func pick(dark bool, ifDark, ifLight string) string {
	if dark {
		return ifDark
	}
	return ifLight
}
