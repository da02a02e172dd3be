// Command venue-intel-pipeline drives the venue intelligence data flow end
// to end: Google Places seeding, the nightly raw/merged/trimmed/delta/gold
// pass with budgeted LLM extraction, spot materialization, the daily report,
// and the HTTP bridge that applies curator decisions.
package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/prompts"
	"venue-intel-pipeline/pkg/config"
	"venue-intel-pipeline/pkg/container"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/events"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/store"
)

var rootCmd = &cobra.Command{
	Use:   "venue-intel-pipeline",
	Short: "Venue intelligence ETL: seed venues, run the pipeline, serve curation callbacks",
	Long: `venue-intel-pipeline maintains a venue intelligence dataset. Venues are
seeded from Google Places, their websites fetched and distilled through the
raw / merged / trimmed / delta / gold stages, promising changes extracted by
a budgeted LLM pass, and the results materialized as spots that curators
approve or deny through the chat-admin callback bridge.

Relational state lives in MySQL (DATABASE_URL); file state lives under
DATA_DIR (default ./data). Pipeline knobs load from data/config/config.json
and reload while serve mode is up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errs.Is(err, errs.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// App bundles the dependencies the subcommands share. The container wires
// construction order; database-backed pieces resolve lazily so commands that
// only read the data directory never open a connection.
type App struct {
	c      *container.Container
	cfg    *config.Config
	log    *logging.Logger
	layout datadir.Layout

	db      *store.Store
	journal *events.SQLEventStore
	prompts *prompts.Manager
}

func newApp() (*App, error) {
	c := container.New()

	_ = c.Provide(func() *config.Config { return config.Load() }, true)
	_ = c.Provide(func(cfg *config.Config) (*logging.Logger, error) {
		lc := logging.DefaultLogConfig()
		lc.Level = logging.ParseLevel(cfg.LogLevel)
		if cfg.LogFormat != "" {
			lc.Format = cfg.LogFormat
		}
		lc.EnableFile = cfg.EnableFileLogging
		lc.FilePath = cfg.LogFile
		return logging.NewLogger(lc)
	}, true)
	_ = c.Provide(func(cfg *config.Config) datadir.Layout { return datadir.New(cfg.DataDir) }, true)
	_ = c.Provide(func(cfg *config.Config) (*store.Store, error) {
		return store.NewWithConfig(cfg.DatabaseURL, cfg)
	}, true)
	_ = c.Provide(func(db *store.Store) *events.SQLEventStore {
		return events.NewSQLEventStore(db)
	}, true)
	_ = c.Provide(func(cfg *config.Config) (*prompts.Manager, error) {
		return prompts.NewManager(cfg.PromptDir)
	}, true)

	app := &App{c: c}
	if err := c.Resolve(&app.cfg); err != nil {
		return nil, err
	}
	if err := app.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := c.Resolve(&app.log); err != nil {
		return nil, err
	}
	app.log.Debug("configuration loaded", logging.Any("config", app.cfg.GetConfigSummary()))
	if err := c.Resolve(&app.layout); err != nil {
		return nil, err
	}
	if err := app.layout.EnsureTree(); err != nil {
		return nil, err
	}
	return app, nil
}

// Store opens the MySQL store on first use and ensures the schema exists.
func (a *App) Store(ctx context.Context) (*store.Store, error) {
	if a.db == nil {
		if err := a.c.Resolve(&a.db); err != nil {
			return nil, err
		}
		if err := a.db.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return a.db, nil
}

// Journal returns the SQL-backed domain event journal.
func (a *App) Journal(ctx context.Context) (*events.SQLEventStore, error) {
	if a.journal == nil {
		if _, err := a.Store(ctx); err != nil {
			return nil, err
		}
		if err := a.c.Resolve(&a.journal); err != nil {
			return nil, err
		}
	}
	return a.journal, nil
}

// Prompts returns the template manager, embedded templates plus any
// PROMPT_DIR overrides.
func (a *App) Prompts() (*prompts.Manager, error) {
	if a.prompts == nil {
		if err := a.c.Resolve(&a.prompts); err != nil {
			return nil, err
		}
	}
	return a.prompts, nil
}

func (a *App) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.log != nil {
		_ = a.log.Close()
	}
}
