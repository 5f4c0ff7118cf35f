package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/finflow/types"
)

// ChartSeries is one plotted line or bar group.
type ChartSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// ChartSpec describes a chart to render.
type ChartSpec struct {
	Title  string        `json:"title"`
	Kind   string        `json:"kind,omitempty"` // line or bar
	XLabel string        `json:"x_label,omitempty"`
	YLabel string        `json:"y_label,omitempty"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
}

// Validate checks that every series matches the label count.
func (c ChartSpec) Validate() error {
	if len(c.Labels) == 0 || len(c.Series) == 0 {
		return types.NewError(types.ErrInvalidRequest, "chart needs labels and at least one series")
	}
	switch c.Kind {
	case "", "line", "bar":
	default:
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unsupported chart kind %q", c.Kind))
	}
	for _, s := range c.Series {
		if len(s.Values) != len(c.Labels) {
			return types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("series %q has %d values for %d labels", s.Name, len(s.Values), len(c.Labels)))
		}
	}
	return nil
}

// RenderMermaid renders the chart as a fenced Mermaid xychart block that
// markdown viewers display inline.
func (c ChartSpec) RenderMermaid() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	kind := c.Kind
	if kind == "" {
		kind = "line"
	}

	lo, hi := c.Series[0].Values[0], c.Series[0].Values[0]
	for _, s := range c.Series {
		for _, v := range s.Values {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\nxychart-beta\n")
	if c.Title != "" {
		fmt.Fprintf(&sb, "    title %s\n", strconv.Quote(c.Title))
	}
	quoted := make([]string, len(c.Labels))
	for i, l := range c.Labels {
		quoted[i] = strconv.Quote(l)
	}
	if c.XLabel != "" {
		fmt.Fprintf(&sb, "    x-axis %s [%s]\n", strconv.Quote(c.XLabel), strings.Join(quoted, ", "))
	} else {
		fmt.Fprintf(&sb, "    x-axis [%s]\n", strings.Join(quoted, ", "))
	}
	yLabel := c.YLabel
	if yLabel == "" {
		yLabel = "value"
	}
	fmt.Fprintf(&sb, "    y-axis %s %s --> %s\n", strconv.Quote(yLabel), formatNumber(lo), formatNumber(hi))
	for _, s := range c.Series {
		vals := make([]string, len(s.Values))
		for i, v := range s.Values {
			vals[i] = formatNumber(v)
		}
		fmt.Fprintf(&sb, "    %s [%s]\n", kind, strings.Join(vals, ", "))
	}
	sb.WriteString("```\n")
	return sb.String(), nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NewChartTool creates the chart_renderer tool.
func NewChartTool() Tool {
	schema := Schema{
		Name:        "chart_renderer",
		Description: "Render market data as a Mermaid chart block that can be embedded in a markdown report.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"kind": {"type": "string", "enum": ["line", "bar"]},
				"x_label": {"type": "string"},
				"y_label": {"type": "string"},
				"labels": {"type": "array", "items": {"type": "string"}},
				"series": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"name": {"type": "string"},
							"values": {"type": "array", "items": {"type": "number"}}
						}
					}
				}
			},
			"required": ["labels", "series"]
		}`),
	}

	return NewFunc(schema, func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var spec ChartSpec
		if err := json.Unmarshal(args, &spec); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "invalid chart arguments").WithCause(err)
		}
		out, err := spec.RenderMermaid()
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"markdown": out})
	})
}
