package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func vendorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Manage the vendor registry",
	}

	cmd.AddCommand(vendorsListCmd())
	return cmd
}

func vendorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known vendors with their aliases",
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

			vendors, err := store.GetAllVendors(ctx)
			if err != nil {
				return err
			}
			if len(vendors) == 0 {
				fmt.Println("No vendors yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVENDOR\tUSES\tALIASES")
			for _, v := range vendors {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
					v.ID, v.CanonicalName, v.UseCount, strings.Join(v.Aliases, ", "))
			}
			return w.Flush()
		},
	}
}
