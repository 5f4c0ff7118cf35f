package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/internal/history"
	"github.com/BaSui01/finflow/internal/report"
	"github.com/BaSui01/finflow/testutil"
	"github.com/BaSui01/finflow/workflow"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestResolveCredentials(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		preset     string
		wantModel  string
		wantSearch string
	}{
		{
			name:      "first candidate wins",
			env:       map[string]string{"GEMINI_API_KEY": "g", "GOOGLE_API_KEY": "x"},
			wantModel: "g",
		},
		{
			name:      "empty values are skipped",
			env:       map[string]string{"GEMINI_API_KEY": "", "GOOGLE_AI_API_KEY": "ai"},
			wantModel: "ai",
		},
		{
			name:       "config value is kept",
			env:        map[string]string{"GEMINI_API_KEY": "g", "SERPER_API_KEY": "s"},
			preset:     "from-file",
			wantModel:  "from-file",
			wantSearch: "s",
		},
		{
			name: "nothing set",
			env:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Model.APIKey = tt.preset
			resolveCredentials(cfg, envMap(tt.env))
			assert.Equal(t, tt.wantModel, cfg.Model.APIKey)
			assert.Equal(t, tt.wantSearch, cfg.Search.APIKey)
		})
	}
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger := initLogger(config.LogConfig{Level: "debug", Format: format, OutputPaths: []string{"stderr"}})
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	}

	logger := initLogger(config.LogConfig{Level: "bogus", Format: "json"})
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}

func TestPlot(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, DefaultPlotFile)
	def := filepath.Join(dir, "report_flow.yaml")

	require.NoError(t, plot(out, def))

	html, err := os.ReadFile(out)
	require.NoError(t, err)
	for _, step := range []string{report.StepVisualizer, report.StepNews, report.StepReport} {
		assert.Contains(t, string(html), step)
	}

	loaded, err := workflow.LoadFlowDefinition(def)
	require.NoError(t, err)
	assert.Equal(t, report.FlowName, loaded.Name)
	assert.Len(t, loaded.Steps, 3)

	jsonDef := filepath.Join(dir, "report_flow.json")
	require.NoError(t, plot(out, jsonDef))
	_, err = workflow.LoadFlowDefinition(jsonDef)
	assert.NoError(t, err)

	assert.Error(t, plot(out, filepath.Join(dir, "report_flow.txt")))
}

func TestOpenArtifactStore(t *testing.T) {
	ctx := testutil.TestContext(t)

	dir := filepath.Join(t.TempDir(), "assets")
	store, location, err := openArtifactStore(ctx, config.ArtifactsConfig{Dir: dir}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, dir, location)

	_, err = store.Commit(ctx, "writer", "report.md", artifacts.KindText, []byte("# Report"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "report.md"))
	assert.NoError(t, err)

	mem, location, err := openArtifactStore(ctx, config.ArtifactsConfig{URL: "mem://", Dir: dir}, zap.NewNop())
	require.NoError(t, err)
	defer mem.Close()
	assert.Equal(t, "mem://", location)
}

func TestPrintRunSummary(t *testing.T) {
	flow, err := report.NewFlow(config.DefaultRetryConfig(), report.Handlers{}, zap.NewNop())
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	res := &report.Result{
		Flow: &workflow.FlowResult{
			RunID:  "run-1",
			Flow:   report.FlowName,
			Status: workflow.FlowSucceeded,
			Steps: map[string]*workflow.StepOutcome{
				report.StepVisualizer: {Step: report.StepVisualizer, Status: workflow.StepAbsorbed, Attempts: 3, Error: "quota exceeded"},
				report.StepNews:       {Step: report.StepNews, Status: workflow.StepSucceeded, Attempts: 1},
				report.StepReport:     {Step: report.StepReport, Status: workflow.StepSucceeded, Attempts: 2},
			},
			StartedAt: start,
			EndedAt:   start.Add(90 * time.Second),
		},
		State: report.ReportState{FinalReport: "report.md"},
	}

	var buf bytes.Buffer
	printRunSummary(&buf, flow, res, "/tmp/assets")
	out := buf.String()

	assert.Contains(t, out, "Run run-1: succeeded (1m30s)")
	assert.Regexp(t, report.StepVisualizer+`\s+absorbed\s+attempts=3 error="quota exceeded"`, out)
	assert.Regexp(t, report.StepReport+`\s+succeeded\s+attempts=2`, out)
	assert.Contains(t, out, "Final report: report.md (in /tmp/assets)")

	res.State.FinalReport = ""
	delete(res.Flow.Steps, report.StepReport)
	buf.Reset()
	printRunSummary(&buf, flow, res, "/tmp/assets")
	assert.Regexp(t, report.StepReport+`\s+pending`, buf.String())
	assert.Contains(t, buf.String(), "Final report: not produced")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Equal(t, "No runs recorded.\n", buf.String())

	buf.Reset()
	printHistory(&buf, []*history.Record{
		{RunID: "run-2", Flow: report.FlowName, Status: "failed", StartedAt: time.Now(), Duration: 42 * time.Second},
		{RunID: "run-1", Flow: report.FlowName, Status: "succeeded", FinalReport: "report.md", StartedAt: time.Now(), Duration: time.Minute},
	})
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "RUN ID")
	assert.Contains(t, string(lines[1]), "42s")
	assert.Contains(t, string(lines[1]), "-")
	assert.Contains(t, string(lines[2]), "report.md")
}
