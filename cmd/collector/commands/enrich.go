package commands

import (
	"context"
	"log/slog"

	"propdata-backend/lib/table"
	"propdata-backend/services/matcher"

	"github.com/spf13/cobra"
)

type enrichFunc func(ctx context.Context, batch table.Batch) (matcher.Response, error)

// enrichCommand reads sold properties by date, runs them through a docker
// and outputs the merged rows.
func enrichCommand(use, short string, enrich func() enrichFunc) *cobra.Command {
	var dates dateRange
	var out outputFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			start, end, err := dates.parse()
			if err != nil {
				return err
			}
			sold, err := app.reader.ReadDateRange(ctx, start, end)
			if err != nil {
				return err
			}
			if sold.Len() == 0 {
				slog.Info("no sold properties in range")
				return nil
			}

			res, err := enrich()(ctx, sold)
			if err != nil {
				return err
			}
			if res.Warning != nil {
				slog.Warn("partial match", "requested", res.Warning.Requested, "returned", res.Warning.Returned)
			}
			return output(ctx, res.Batch, out)
		},
	}
	dates.register(cmd)
	out.register(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(enrichCommand(
		"mobile [--start <date>] [--end <date>]",
		"Adds mobile and internet coverage to sold properties by postcode.",
		func() enrichFunc { return app.matcher.MobileInternet },
	))
	rootCmd.AddCommand(enrichCommand(
		"schools [--start <date>] [--end <date>]",
		"Adds nearby schools, transport and metro stations to sold properties by coordinates.",
		func() enrichFunc { return app.matcher.SchoolTransportMetro },
	))
}
