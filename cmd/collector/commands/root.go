package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"propdata-backend/lib/configutil"
	configdb "propdata-backend/lib/configutil/database"
	"propdata-backend/lib/serviceutil"
	"propdata-backend/lib/telemetry"
	"propdata-backend/services/matcher"
	"propdata-backend/services/reconcile"
	"propdata-backend/services/store"

	"github.com/spf13/cobra"
)

type Config struct {
	Database  configdb.Struct       `json:"database"`
	Tables    store.Tables          `json:"tables"`
	Matcher   matcher.Config        `json:"matcher"`
	Sink      reconcile.SinkOptions `json:"sink"`
	Telemetry telemetry.Config      `json:"telemetry"`
}

func (c *Config) Validate() error {
	err := c.Database.Validate()
	if err != nil {
		return err
	}
	return c.Matcher.Validate()
}

// state is what every subcommand works with, it is set up once before the
// subcommand runs.
type state struct {
	config  Config
	db      *sql.DB
	reader  store.Reader
	matcher matcher.Client
	sink    reconcile.Sink
	tel     telemetry.Telemetry
}

var (
	configPath string
	envFiles   []string
	verbose    bool
	app        state
)

var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "collector reads the listing database, sends records to the matching dockers and writes the results back.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "The config file to read, <name>.local.<ext> next to it overrides it.")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "Dotenv files to load before reading the config.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging, this also turns on matcher request dumps.")
}

func setup(ctx context.Context) error {
	telemetry.InitSlog(verbose)

	err := configutil.LoadDotenv(envFiles...)
	if err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}

	config, err := configutil.ReadConfig[Config](configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	app.config = config

	app.tel, err = telemetry.Setup(ctx, "collector", config.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	if app.tel.MeterProvider != nil {
		err = telemetry.RecordProcessStats(ctx, time.Second*30)
		if err != nil {
			slog.Warn("process stats are unavailable", "err", err)
		}
	}

	app.db, err = config.Database.OpenDB()
	if err != nil {
		return err
	}
	err = app.db.PingContext(ctx)
	if err != nil {
		slog.Warn("database did not answer ping", "driver", config.Database.Driver, "err", err)
	}

	api := telemetry.SlogAPI{}
	app.reader = store.NewReader(app.db, config.Tables, api)
	app.sink = reconcile.NewSink(app.db, config.Sink, api)
	app.matcher, err = matcher.NewClient(config.Matcher, api)
	if err != nil {
		return err
	}
	return nil
}

func teardown() {
	if app.db != nil {
		err := app.db.Close()
		if err != nil {
			slog.Warn("failed to close database", "err", err)
		}
		app.db = nil
	}
	err := app.tel.Shutdown(context.Background())
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	app.tel = telemetry.Telemetry{}
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		teardown()
		serviceutil.Fatal("collector failed", err)
	}
}
