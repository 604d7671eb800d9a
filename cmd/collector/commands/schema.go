package commands

import (
	"log/slog"

	"propdata-backend/services/store/db"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
}

// meant for local sqlite/libsql copies, the production listing database
// already has these tables.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Creates the listing tables the collector reads in the configured database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, stmt := range db.Statements() {
			_, err := app.db.ExecContext(cmd.Context(), stmt)
			if err != nil {
				return err
			}
		}
		slog.Info("schema applied", "driver", app.config.Database.Driver, "statements", len(db.Statements()))
		return nil
	},
}
