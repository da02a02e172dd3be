package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/seeder"
	"venue-intel-pipeline/pkg/geography"
	"venue-intel-pipeline/pkg/store"
)

var seedConfirm bool

var seedCmd = &cobra.Command{
	Use:   "seed-venues",
	Short: "Discover venues through Google Places and upsert them",
	Long: `Discover venues area by area through the Google Places API and upsert them
into the venue table. Existing venues are refreshed, never duplicated, and a
blank provider field never overwrites a stored one.

Seeding spends real provider quota, so it is double-gated: the --confirm flag
and GOOGLE_PLACES_ENABLED=true (the exact string) must both be present.`,
	RunE: runSeedVenues,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().BoolVar(&seedConfirm, "confirm", false, "arm the seeder; GOOGLE_PLACES_ENABLED=true is also required")
}

func runSeedVenues(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := seeder.Gate(seedConfirm, app.cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	set, err := geography.LoadAreas(app.layout.AreasPath())
	if err != nil {
		return err
	}
	db, err := app.Store(ctx)
	if err != nil {
		return err
	}
	client, err := seeder.NewClient(app.cfg, app.log)
	if err != nil {
		return err
	}

	now := time.Now()
	stats, err := seeder.New(set, db, client, 0, 0, app.log).Run(ctx, now)
	if err != nil {
		return err
	}

	fmt.Printf("Seed pass complete: %d areas, %d requests, %d candidates, %d detailed, %d upserted (%d new)\n",
		stats.Areas, stats.Requests, stats.Candidates, stats.Detailed, stats.Upserted, stats.Created)
	if stats.CapExhausted {
		fmt.Println("Daily request cap exhausted; remaining areas wait for the next pass.")
	}
	if stats.ProviderLimited {
		fmt.Println("Provider rate limit hit; the pass ended early.")
	}
	// The stored counter covers the whole day, not just this pass, so a rerun
	// shows how much budget the earlier passes already burned.
	if spent, err := db.GetCounter(ctx, seeder.RequestCounterPrefix+now.Format("20060102")); err == nil && spent > 0 {
		fmt.Printf("Provider requests charged today: %d of %d\n", spent, constants.SeederDailyRequestCapDefault)
	}
	printInventory(ctx, db, set)
	return nil
}

// printInventory summarizes the venue table after the pass. A configured
// area with zero venues usually means a bad polygon or an exhausted cap,
// worth noticing the day it happens.
func printInventory(ctx context.Context, db *store.Store, set *geography.AreaSet) {
	vs, err := db.VenueStats(ctx)
	if err != nil {
		return
	}
	fmt.Printf("Inventory: %d venues, %d active, %d with a website, %d unassigned, %d excluded\n",
		vs.Total, vs.Active, vs.WithSite, vs.Unassigned, vs.Excluded)
	if n := vs.Active - vs.WithSite; n > 0 {
		fmt.Printf("  %d active venues have no website; the fetcher will never see them\n", n)
	}
	var empty []string
	for _, a := range set.Areas {
		if vs.ByArea[a.Name] == 0 {
			empty = append(empty, a.Name)
		}
	}
	if len(empty) > 0 {
		fmt.Printf("  areas with no venues yet: %s\n", strings.Join(empty, ", "))
	}
}
