package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChartSpec_RenderMermaid(t *testing.T) {
	spec := ChartSpec{
		Title:  "TSLA close",
		Kind:   "bar",
		YLabel: "USD",
		Labels: []string{"Mon", "Tue"},
		Series: []ChartSeries{{Name: "close", Values: []float64{240.5, 251}}},
	}
	out, err := spec.RenderMermaid()
	require.NoError(t, err)

	want := "```mermaid\nxychart-beta\n" +
		"    title \"TSLA close\"\n" +
		"    x-axis [\"Mon\", \"Tue\"]\n" +
		"    y-axis \"USD\" 240.5 --> 251\n" +
		"    bar [240.5, 251]\n" +
		"```\n"
	assert.Equal(t, want, out)
}

func TestChartSpec_Validate(t *testing.T) {
	assert.Error(t, ChartSpec{}.Validate())
	assert.Error(t, ChartSpec{Labels: []string{"a"}, Series: []ChartSeries{{Values: []float64{1, 2}}}}.Validate())
	assert.Error(t, ChartSpec{Kind: "pie", Labels: []string{"a"}, Series: []ChartSeries{{Values: []float64{1}}}}.Validate())
}

func TestChartTool(t *testing.T) {
	out, err := NewChartTool().Call(context.Background(),
		json.RawMessage(`{"labels":["a","b"],"series":[{"name":"x","values":[1,2]}]}`))
	require.NoError(t, err)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Contains(t, resp["markdown"], "line [1, 2]")
}
