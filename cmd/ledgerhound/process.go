package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ledgerhound/ledgerhound/internal/ingest"
	"github.com/ledgerhound/ledgerhound/internal/jobs"
	"github.com/ledgerhound/ledgerhound/internal/model"
)

func processCmd() *cobra.Command {
	var (
		format   string
		batchID  string
		currency string
	)

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Classify a bank-statement export",
		Long: `Parses a CSV or OFX statement export, submits the rows as a batch, and
reports per-row outcomes. Rows already classified in an earlier run are
skipped as duplicates; identical resubmissions of a whole file are detected
and not re-run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), args[0], format, batchID, currency)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "input format: csv or ofx (default: by file extension)")
	cmd.Flags().StringVar(&batchID, "batch-id", "", "batch id (default: derived from file contents)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency for CSV rows missing one (default: ingest.default_currency)")

	return cmd
}

func runProcess(ctx context.Context, path, format, batchID, currency string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if currency == "" {
		currency = settings.Ingest.DefaultCurrency
	}

	rows, rowErrs, err := parseStatement(path, format, currency)
	if err != nil {
		return err
	}
	for _, re := range rowErrs {
		fmt.Fprintf(os.Stderr, "rejected %s:%d: %v\n", filepath.Base(path), re.Line, re.Err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no parseable rows in %s", path)
	}

	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	oracleClient, err := initOracle(settings)
	if err != nil {
		return err
	}
	defer oracleClient.Close()

	orchestrator := initOrchestrator(store, oracleClient, settings)
	defer orchestrator.Close()

	job, err := orchestrator.Submit(ctx, batchID, rows)
	if err != nil {
		return err
	}
	fmt.Printf("Batch %s: %d rows\n", job.BatchID, len(rows))

	result, err := watchJob(ctx, orchestrator, job, len(rows))
	if err != nil && result == nil {
		return err
	}

	printSummary(result)
	if result.Status == model.BatchFailed {
		return fmt.Errorf("batch %s failed", result.BatchID)
	}
	return nil
}

func parseStatement(path, format, currency string) ([]model.TransactionRow, []ingest.RowError, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".ofx", ".qfx":
			format = "ofx"
		default:
			format = "csv"
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	switch format {
	case "csv":
		return ingest.NewCSVParser(ingest.CSVOptions{DefaultCurrency: currency}).Parse(f)
	case "ofx":
		return ingest.NewOFXParser().Parse(f)
	default:
		return nil, nil, fmt.Errorf("unknown format %q", format)
	}
}

// watchJob renders batch progress until the job is terminal. Interrupting
// the process requests cooperative cancellation and still waits for the
// in-flight rows to settle.
func watchJob(ctx context.Context, orchestrator *jobs.Orchestrator, job *jobs.Job, total int) (*model.BatchResult, error) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Classifying rows..."))

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	cancelRequested := false
	for {
		select {
		case <-job.Done():
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			return job.Result()
		case <-ctx.Done():
			if !cancelRequested {
				cancelRequested = true
				_ = orchestrator.Cancel(job.BatchID)
			}
		case <-ticker.C:
			progress, err := orchestrator.Poll(context.Background(), job.BatchID)
			if err == nil {
				_ = bar.Set(progress.ProcessedCount)
			}
		}
	}
}

func printSummary(result *model.BatchResult) {
	s := result.Summary
	fmt.Printf("\nBatch %s: %s\n", result.BatchID, result.Status)
	fmt.Printf("  classified:         %d\n", s.Processed)
	fmt.Printf("  from cache:         %d\n", s.CacheHits)
	fmt.Printf("  skipped duplicates: %d\n", s.SkippedDuplicate)
	fmt.Printf("  failed:             %d\n", s.Failed)
	if s.Processed+s.CacheHits > 0 {
		fmt.Printf("  avg confidence:     %.2f\n", s.AvgConfidence)
	}

	if len(s.ByCategory) > 0 {
		categories := make([]model.Category, 0, len(s.ByCategory))
		for c := range s.ByCategory {
			categories = append(categories, c)
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

		fmt.Println("  by category:")
		for _, c := range categories {
			fmt.Printf("    %-28s %d\n", c, s.ByCategory[c])
		}
	}

	for _, row := range result.Rows {
		if row.Outcome == model.OutcomeFailed {
			fmt.Fprintf(os.Stderr, "failed row %d (%s): %v\n", row.Index+1, row.Row.Description, row.Err)
		}
	}
}
