package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerhound/ledgerhound/internal/cache"
	"github.com/ledgerhound/ledgerhound/internal/model"
)

func reclassifyCmd() *cobra.Command {
	var (
		category  string
		rationale string
	)

	cmd := &cobra.Command{
		Use:   "reclassify <fingerprint>",
		Short: "Force re-classification of an existing result",
		Long: `Replaces the classification for a fingerprint. The superseded result is
versioned, never destroyed; see 'results --versions'. This is the only way
to change an existing classification.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c := model.Category(category)
			if !model.ValidCategory(c) {
				return fmt.Errorf("unknown category %q (valid: %v)", category, model.Categories())
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fp := model.Fingerprint(args[0])
			resultCache := cache.New(store)

			err = resultCache.ForceReclassify(ctx, fp, &model.ClassificationResult{
				Category:     c,
				Confidence:   1.0,
				Rationale:    rationale,
				ClassifiedAt: time.Now().UTC(),
			})
			if err != nil {
				return err
			}

			fmt.Printf("Reclassified %s as %s\n", fp, c)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "new category (required)")
	cmd.Flags().StringVar(&rationale, "rationale", "manual reclassification", "rationale recorded with the new result")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}
