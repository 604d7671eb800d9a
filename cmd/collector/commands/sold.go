package commands

import (
	"time"

	"github.com/spf13/cobra"
)

type dateRange struct {
	start string
	end   string
}

func (d *dateRange) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.start, "start", "2022-04-01", "Properties sold on or after this date (YYYY-MM-DD).")
	cmd.Flags().StringVar(&d.end, "end", "", "When set, reads Sold_date BETWEEN end AND start, so end must be the earlier date.")
}

func (d dateRange) parse() (time.Time, *time.Time, error) {
	start, err := parseDate(d.start)
	if err != nil {
		return time.Time{}, nil, err
	}
	if d.end == "" {
		return start, nil, nil
	}
	end, err := parseDate(d.end)
	if err != nil {
		return time.Time{}, nil, err
	}
	return start, &end, nil
}

type outputFlags struct {
	table string
	limit int
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.table, "out", "", "Append the result to this table instead of printing it.")
	cmd.Flags().IntVar(&o.limit, "limit", 50, "The maximum number of rows to print, 0 prints everything.")
}

var soldFlags struct {
	dates dateRange
	out   outputFlags
}

func init() {
	soldFlags.dates.register(soldCmd)
	soldFlags.out.register(soldCmd)
	rootCmd.AddCommand(soldCmd)
}

var soldCmd = &cobra.Command{
	Use:   "sold [--start <date>] [--end <date>]",
	Short: "Reads sold properties from the sold view by sale date.",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := soldFlags.dates.parse()
		if err != nil {
			return err
		}
		batch, err := app.reader.ReadDateRange(cmd.Context(), start, end)
		if err != nil {
			return err
		}
		return output(cmd.Context(), batch, soldFlags.out)
	},
}
