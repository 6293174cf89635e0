package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show the status of a submitted batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			settings, err := loadSettings()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			record, err := store.GetBatch(ctx, args[0])
			if err != nil {
				return fmt.Errorf("batch %s: %w", args[0], err)
			}

			s := record.Summary
			done := s.Processed + s.CacheHits + s.SkippedDuplicate + s.Failed
			fmt.Printf("Batch %s: %s (%d/%d rows)\n", record.ID, record.Status, done, record.TotalRows)
			fmt.Printf("  classified: %d, from cache: %d, skipped: %d, failed: %d\n",
				s.Processed, s.CacheHits, s.SkippedDuplicate, s.Failed)
			return nil
		},
	}
}
