package commands

import (
	"context"
	"log/slog"

	"propdata-backend/lib/table"

	"github.com/spf13/cobra"
)

var uprnFlags struct {
	batch  int
	offset int
	pages  int
	table  string
}

func init() {
	uprnCmd.PersistentFlags().IntVar(&uprnFlags.batch, "batch", 100, "The number of addresses sent to the docker per request.")
	uprnCmd.PersistentFlags().StringVar(&uprnFlags.table, "table", "temp_uprn", "The table matched addresses are appended to.")
	uprnListingCmd.Flags().IntVar(&uprnFlags.offset, "offset", 0, "The number of unmatched addresses to skip.")
	uprnListingCmd.Flags().IntVar(&uprnFlags.pages, "pages", 1, "The number of batches to match, 0 keeps going until no unmatched address is left.")

	uprnCmd.AddCommand(uprnListingCmd)
	uprnCmd.AddCommand(uprnSoldCmd)
	rootCmd.AddCommand(uprnCmd)
}

var uprnCmd = &cobra.Command{
	Use:   "uprn",
	Short: "Matches unmatched addresses to UPRNs with the address matching docker.",
}

func matchAndPersist(ctx context.Context, addresses table.Batch) (int64, error) {
	res, err := app.matcher.FindUPRN(ctx, addresses)
	if err != nil {
		return 0, err
	}
	return app.sink.Persist(ctx, res.Batch, uprnFlags.table)
}

var uprnListingCmd = &cobra.Command{
	Use:   "listing [--batch <n>] [--offset <n>] [--pages <n>] [--table <name>]",
	Short: "Matches listing addresses and appends the matches to a table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var total int64
		for page := 0; uprnFlags.pages == 0 || page < uprnFlags.pages; page++ {
			offset := uprnFlags.offset + page*uprnFlags.batch
			addresses, err := app.reader.UnmatchedListingAddresses(ctx, uprnFlags.batch, offset)
			if err != nil {
				return err
			}
			if addresses.Len() == 0 {
				break
			}

			written, err := matchAndPersist(ctx, addresses)
			if err != nil {
				return err
			}
			total += written
			slog.Info("matched page", "offset", offset, "sent", addresses.Len(), "written", written)

			if addresses.Len() < uprnFlags.batch {
				break
			}
		}
		slog.Info("uprn matching done", "table", uprnFlags.table, "written", total)
		return nil
	},
}

var uprnSoldCmd = &cobra.Command{
	Use:   "sold [--batch <n>] [--table <name>]",
	Short: "Matches sold property addresses and appends the matches to a table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		addresses, err := app.reader.UnmatchedSoldAddresses(ctx, uprnFlags.batch)
		if err != nil {
			return err
		}
		if addresses.Len() == 0 {
			slog.Info("no unmatched sold addresses")
			return nil
		}

		written, err := matchAndPersist(ctx, addresses)
		if err != nil {
			return err
		}
		slog.Info("uprn matching done", "table", uprnFlags.table, "sent", addresses.Len(), "written", written)
		return nil
	},
}
