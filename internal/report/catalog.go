package report

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/BaSui01/finflow/agent/crews"
	"github.com/BaSui01/finflow/config"
)

//go:embed catalogs
var builtinCatalogs embed.FS

// Crew names as they appear in logs and metrics.
const (
	NewsCrew       = "news_crew"
	VisualizerCrew = "visualizer_crew"
	ReportCrew     = "report_crew"
)

// Tasks whose artifacts feed the flow state.
const (
	taskNewsArticle   = "ai_news_write_task"
	taskVisualization = "visualization_task"
	taskFinalReport   = "news_merger_task"
)

// crewSpec pairs a crew with the catalog directory it is built from.
type crewSpec struct {
	dir  string
	spec crews.Spec
}

var crewSpecs = map[string]crewSpec{
	NewsCrew: {dir: "news", spec: crews.Spec{
		Name:    NewsCrew,
		Process: crews.ProcessSequential,
		Tasks:   []string{"retrieve_news_task", "website_scrape_task", taskNewsArticle},
	}},
	VisualizerCrew: {dir: "visualizer", spec: crews.Spec{
		Name:    VisualizerCrew,
		Process: crews.ProcessSequential,
		Tasks:   []string{"market_data_task", taskVisualization},
	}},
	ReportCrew: {dir: "report", spec: crews.Spec{
		Name:    ReportCrew,
		Process: crews.ProcessSequential,
		Tasks:   []string{"visualization_elaborator_task", taskFinalReport},
	}},
}

// Catalogs holds one agent/task catalog per crew.
type Catalogs map[string]*config.Catalog

// LoadCatalogs reads <dir>/{news,visualizer,report}/{agents,tasks}.yaml.
// An empty dir uses the catalogs compiled into the binary.
func LoadCatalogs(dir string) (Catalogs, error) {
	var fsys fs.FS
	root := "catalogs"
	if dir != "" {
		fsys = os.DirFS(dir)
		root = "."
	} else {
		fsys = builtinCatalogs
	}

	out := make(Catalogs, len(crewSpecs))
	for name, cs := range crewSpecs {
		cat, err := config.LoadCatalogFS(fsys, root+"/"+cs.dir)
		if err != nil {
			return nil, fmt.Errorf("crew %s: %w", name, err)
		}
		out[name] = cat
	}
	return out, nil
}
