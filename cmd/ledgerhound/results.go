package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ledgerhound/ledgerhound/internal/model"
	"github.com/ledgerhound/ledgerhound/internal/service"
)

func resultsCmd() *cobra.Command {
	var (
		category string
		vendorID int64
		versions string
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List persisted classification results",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			if versions != "" {
				return printVersions(cmd, store, versions)
			}

			var records []service.Record
			switch {
			case category != "":
				c := model.Category(category)
				if !model.ValidCategory(c) {
					return fmt.Errorf("unknown category %q (valid: %v)", category, model.Categories())
				}
				records, err = store.ListByCategory(ctx, c)
			case vendorID != 0:
				records, err = store.ListByVendor(ctx, vendorID)
			default:
				return fmt.Errorf("one of --category or --vendor is required")
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FINGERPRINT\tCATEGORY\tCONFIDENCE\tVENDOR\tCLASSIFIED")
			for _, rec := range records {
				fmt.Fprintf(w, "%.16s\t%s\t%.2f\t%s\t%s\n",
					rec.Fingerprint,
					rec.Result.Category,
					rec.Result.Confidence,
					rec.Result.VendorName,
					rec.Result.ClassifiedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "list results in this category")
	cmd.Flags().Int64Var(&vendorID, "vendor", 0, "list results for this vendor id")
	cmd.Flags().StringVar(&versions, "versions", "", "list all versions for this fingerprint")

	return cmd
}

func printVersions(cmd *cobra.Command, store service.Storage, fp string) error {
	versions, err := store.ListClassificationVersions(cmd.Context(), model.Fingerprint(fp))
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("no classification for fingerprint %s", fp)
	}

	for i, v := range versions {
		marker := "superseded"
		if i == len(versions)-1 {
			marker = "current"
		}
		fmt.Printf("%d. [%s] %s (%.2f) %s\n", i+1, marker, v.Category, v.Confidence, v.Rationale)
	}
	return nil
}
