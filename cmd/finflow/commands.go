package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/internal/history"
	"github.com/BaSui01/finflow/internal/report"
	"github.com/BaSui01/finflow/llm/providers/gemini"
)

// DefaultPlotFile is where plot writes the HTML page by default.
const DefaultPlotFile = "ReportFlowPlot.html"

// =============================================================================
// 📈 plot 命令
// =============================================================================

func runPlot(args []string) {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	out := fs.String("out", DefaultPlotFile, "HTML output path")
	definition := fs.String("definition", "", "Also write the flow definition (.json, .yaml or .yml)")
	fs.Parse(args)

	exitOnError(plot(*out, *definition))
	fmt.Printf("Flow graph written to %s\n", *out)
	if *definition != "" {
		fmt.Printf("Flow definition written to %s\n", *definition)
	}
}

// plot exports the report flow graph. Handlers are left unbound.
func plot(out, definition string) error {
	flow, err := report.NewFlow(config.DefaultRetryConfig(), report.Handlers{}, zap.NewNop())
	if err != nil {
		return err
	}
	if err := flow.SavePlot(out); err != nil {
		return err
	}
	if definition == "" {
		return nil
	}

	switch strings.ToLower(filepath.Ext(definition)) {
	case ".json", ".yaml", ".yml":
	default:
		return fmt.Errorf("unsupported definition format %q (use .json or .yaml)", filepath.Ext(definition))
	}
	return flow.Definition().Save(definition)
}

// =============================================================================
// 🗂️ history 命令
// =============================================================================

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := configFlag(fs)
	limit := fs.Int("limit", 0, "Number of runs to list")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	exitOnError(err)
	if *limit <= 0 {
		*limit = cfg.History.Limit
	}
	if cfg.History.Driver == "" {
		exitOnError(fmt.Errorf("history.driver is not configured"))
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.History, logger)
	exitOnError(err)
	defer store.Close()

	records, err := store.List(ctx, *limit)
	exitOnError(err)
	printHistory(os.Stdout, records)
}

func printHistory(w io.Writer, records []*history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tFLOW\tSTATUS\tSTARTED\tDURATION\tFINAL REPORT")
	for _, rec := range records {
		final := rec.FinalReport
		if final == "" {
			final = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.RunID, rec.Flow, rec.Status,
			rec.StartedAt.Local().Format(report.PresentTimeLayout),
			rec.Duration.Round(time.Second), final)
	}
	tw.Flush()
}

// =============================================================================
// 🏥 check-model 命令
// =============================================================================

func runCheckModel(args []string) {
	fs := flag.NewFlagSet("check-model", flag.ExitOnError)
	configPath := configFlag(fs)
	prompt := fs.String("prompt", "Reply with the single word: ok", "Prompt to send")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	exitOnError(err)
	if cfg.Model.APIKey == "" {
		exitOnError(fmt.Errorf("no model API key: set one of %v", modelKeyEnv))
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Model.Timeout+10*time.Second)
	defer cancel()

	provider := gemini.New(cfg.Model, logger)
	latency, err := provider.HealthCheck(ctx)
	exitOnError(err)
	fmt.Printf("Endpoint reachable (%s)\n", latency.Round(time.Millisecond))

	answer, err := provider.Ping(ctx, *prompt)
	exitOnError(err)
	fmt.Printf("Model %s answered: %s\n", provider.Model(), strings.TrimSpace(answer))
}

