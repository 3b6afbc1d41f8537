package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"hdbinsights/app"
	"hdbinsights/config"
	"hdbinsights/logging"
	"hdbinsights/models"

	"github.com/samber/lo"
)

const defaultPreviewRows = 10

func main() {
	preview := flag.Int("rows", defaultPreviewRows, "number of result rows to print")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: ask [-rows N] <question>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	start := time.Now()
	turn, err := services.Agent.Ask(ctx, question)
	if err != nil {
		logger.Fatal().Err(err).Msg("Agent turn failed")
	}

	if services.Turns != nil {
		if _, err := services.Turns.RecordTurn(ctx, question, turn, time.Since(start)); err != nil {
			logger.Warn().Err(err).Msg("Turn history not recorded")
		}
	}

	printTurn(os.Stdout, turn.Output, *preview)
}

func printTurn(w io.Writer, out models.TurnOutput, previewRows int) {
	fmt.Fprintln(w, "Insights:")
	fmt.Fprintln(w, strings.ReplaceAll(out.Insight, `\n`, "\n"))

	if out.Visualisation != nil {
		fmt.Fprintf(w, "\nVisualisation: %s\n", *out.Visualisation)
	}

	if out.ResultDF == nil {
		return
	}

	fmt.Fprintf(w, "\nData (%d rows):\n", out.ResultDF.RowCount())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(out.ResultDF.Columns, "\t"))
	for _, row := range lo.Slice(out.ResultDF.Rows, 0, previewRows) {
		cells := lo.Map(row, func(v any, _ int) string {
			if v == nil {
				return ""
			}
			return fmt.Sprint(v)
		})
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()

	if hidden := out.ResultDF.RowCount() - previewRows; hidden > 0 {
		fmt.Fprintf(w, "... %d more rows\n", hidden)
	}
}
