package commands

import (
	"os"
	"time"

	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var transactionFlags struct {
	ids  []int64
	from string
	to   string
}

func init() {
	transactionsCmd.Flags().Int64SliceVar(&transactionFlags.ids, "ids", nil, "The sold property ids to read transactions for.")
	transactionsCmd.Flags().StringVar(&transactionFlags.from, "from", "2021-01-01", "The first sale date to include (YYYY-MM-DD).")
	transactionsCmd.Flags().StringVar(&transactionFlags.to, "to", "2021-12-31", "The last sale date to include (YYYY-MM-DD).")
	transactionsCmd.MarkFlagRequired("ids")
	rootCmd.AddCommand(transactionsCmd)
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions --ids <id,...> [--from <date>] [--to <date>]",
	Short: "Prints the sale history of sold properties.",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDate(transactionFlags.from)
		if err != nil {
			return err
		}
		to, err := parseDate(transactionFlags.to)
		if err != nil {
			return err
		}

		history, err := app.reader.Transactions(cmd.Context(), transactionFlags.ids, from, to)
		if err != nil {
			return err
		}

		t := pretty.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(pretty.Row{"Sold id", "Price", "Sold date"})
		for _, sold := range history {
			for i, tx := range sold.Transactions {
				id := any("")
				if i == 0 {
					id = sold.SoldID
				}
				t.AppendRow(pretty.Row{id, tx.Price, tx.SoldDate.Format(time.DateOnly)})
			}
			t.AppendSeparator()
		}
		t.SetStyle(pretty.StyleRounded)
		t.Render()
		return nil
	},
}
