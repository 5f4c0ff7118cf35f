package workflow

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
)

// Mermaid renders the flow as a Mermaid flowchart. Start steps are drawn as
// stadiums, AND joins as rectangles and OR joins as rhombi.
func (f *Flow) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	for _, n := range f.steps {
		label := n.ID
		switch {
		case n.Kind == KindStart:
			fmt.Fprintf(&sb, "    %s([%q])\n", mermaidID(n.ID), label)
		case n.Combinator == JoinAny:
			fmt.Fprintf(&sb, "    %s{%q}\n", mermaidID(n.ID), label+" (OR)")
		default:
			fmt.Fprintf(&sb, "    %s[%q]\n", mermaidID(n.ID), label+" (AND)")
		}
	}
	for _, n := range f.steps {
		for _, p := range n.Predecessors {
			arrow := "-->"
			if n.Combinator == JoinAny {
				arrow = "-.->"
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", mermaidID(p), arrow, mermaidID(n.ID))
		}
	}
	return sb.String()
}

func mermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
}

var plotTemplate = template.Must(template.New("plot").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
</head>
<body>
<h1>{{.Name}}</h1>
<pre class="mermaid">
{{.Graph}}</pre>
<h2>Execution plan</h2>
<ol>{{range .Plan}}<li>{{.}}</li>{{end}}</ol>
<script>mermaid.initialize({ startOnLoad: true });</script>
</body>
</html>
`))

// WritePlot renders an HTML page containing the flow graph.
func (f *Flow) WritePlot(w io.Writer) error {
	return plotTemplate.Execute(w, struct {
		Name  string
		Graph string
		Plan  []string
	}{
		Name:  f.name,
		Graph: f.Mermaid(),
		Plan:  f.Plan(),
	})
}

// SavePlot writes the HTML plot to path.
func (f *Flow) SavePlot(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plot file: %w", err)
	}
	if err := f.WritePlot(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to render plot: %w", err)
	}
	return file.Close()
}
