package commands

import (
	"propdata-backend/lib/table"

	"github.com/spf13/cobra"
)

var addressFlags struct {
	batch  int
	offset int
	all    bool
	out    outputFlags
}

func init() {
	addressesCmd.PersistentFlags().IntVar(&addressFlags.batch, "batch", 100, "The number of addresses to read.")
	addressesListingCmd.Flags().IntVar(&addressFlags.offset, "offset", 0, "The number of unmatched addresses to skip.")
	addressesSoldCmd.Flags().BoolVar(&addressFlags.all, "all", false, "Read every unmatched address instead of one batch.")
	addressFlags.out.register(addressesListingCmd)
	addressFlags.out.register(addressesSoldCmd)

	addressesCmd.AddCommand(addressesListingCmd)
	addressesCmd.AddCommand(addressesSoldCmd)
	rootCmd.AddCommand(addressesCmd)
}

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Reads addresses that have not been matched to a UPRN yet.",
}

var addressesListingCmd = &cobra.Command{
	Use:   "listing [--batch <n>] [--offset <n>]",
	Short: "Reads listing addresses without a UPRN.",
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := app.reader.UnmatchedListingAddresses(cmd.Context(), addressFlags.batch, addressFlags.offset)
		if err != nil {
			return err
		}
		return output(cmd.Context(), batch, addressFlags.out)
	},
}

var addressesSoldCmd = &cobra.Command{
	Use:   "sold [--batch <n> | --all]",
	Short: "Reads sold property addresses without a UPRN.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var batch table.Batch
		var err error
		if addressFlags.all {
			batch, err = app.reader.AllUnmatchedSoldAddresses(cmd.Context())
		} else {
			batch, err = app.reader.UnmatchedSoldAddresses(cmd.Context(), addressFlags.batch)
		}
		if err != nil {
			return err
		}
		return output(cmd.Context(), batch, addressFlags.out)
	},
}
