// Command sdlcheck is an offline diagnostic for the resumption store,
// grounded on the teacher's cmd/dbcheck: a small subcommand CLI that
// opens the store directly (no running sdl-core process involved) and
// reports or repairs its contents.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/config"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl/store"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl/store/jsonfile"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl/store/postgres"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	st, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open resumption storage")
	}
	defer closeStorage()

	cmd := "count"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "count":
		runCount(ctx, st)
	case "at-risk":
		runAtRisk(ctx, st, log)
	case "dump":
		runDump(ctx, st)
	case "prune":
		dryRun := !(len(os.Args) > 2 && os.Args[2] == "apply")
		runPrune(ctx, st, dryRun)
	case "meta":
		runMeta(ctx, st)
	default:
		fmt.Printf("unknown subcommand %q\n", cmd)
		fmt.Println("usage: sdlcheck [count|at-risk|dump|prune [apply]|meta]")
		os.Exit(1)
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Storage, func(), error) {
	if !cfg.UseDBForResumption {
		s, err := jsonfile.Open(cfg.ResumptionJSONPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open json resumption store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}

	databaseURL := cfg.DatabaseURL
	var embedded *postgres.EmbeddedServer
	if cfg.EmbeddedPostgres {
		embedded = postgres.NewEmbeddedServer(postgres.EmbeddedConfig{DataPath: "./resumption-pgdata"})
		if err := embedded.Start(); err != nil {
			return nil, nil, fmt.Errorf("start embedded postgres: %w", err)
		}
		databaseURL = postgres.DatabaseURL(0)
	}

	s, err := postgres.Open(ctx, databaseURL, log)
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, nil, fmt.Errorf("open postgres resumption store: %w", err)
	}
	return s, func() {
		_ = s.Close()
		if embedded != nil {
			_ = embedded.Stop()
		}
	}, nil
}

// runCount prints how many resumption records the store currently holds.
func runCount(ctx context.Context, st store.Storage) {
	all, err := st.LoadAll(ctx)
	if err != nil {
		fmt.Printf("failed to load records: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("resumption records: %d\n", len(all))
}

// runAtRisk reports records that fail the same validation resumectl
// runs before restoring them, without needing a live ApplicationManager.
func runAtRisk(ctx context.Context, st store.Storage, log zerolog.Logger) {
	ctl := resumectl.NewController(st, resumectl.Options{Logger: log})
	atRisk, err := ctl.ApplicationsAtRisk(ctx)
	if err != nil {
		fmt.Printf("failed to evaluate records: %v\n", err)
		os.Exit(1)
	}
	if len(atRisk) == 0 {
		fmt.Println("no at-risk records")
		return
	}
	fmt.Printf("%d at-risk record(s):\n", len(atRisk))
	for _, id := range atRisk {
		fmt.Printf("  %s\n", id)
	}
}

// runDump prints a one-line summary of every saved record.
func runDump(ctx context.Context, st store.Storage) {
	all, err := st.LoadAll(ctx)
	if err != nil {
		fmt.Printf("failed to load records: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%-32s %-20s %-10s %-8s %s\n", "policy_app_id", "device_mac", "hmi_app_id", "media", "time_stamp")
	for _, rec := range all {
		fmt.Printf("%-32s %-20s %-10d %-8t %s\n", rec.PolicyAppID, rec.DeviceMAC, rec.HMIAppID, rec.IsMedia, rec.TimeStamp.Format("2006-01-02T15:04:05Z07:00"))
	}
}

// runPrune deletes records that fail Validate, printing what it would
// delete unless invoked as "sdlcheck prune apply".
func runPrune(ctx context.Context, st store.Storage, dryRun bool) {
	all, err := st.LoadAll(ctx)
	if err != nil {
		fmt.Printf("failed to load records: %v\n", err)
		os.Exit(1)
	}
	var pruned int
	for _, rec := range all {
		r := rec
		if err := r.Validate(); err == nil {
			continue
		}
		if dryRun {
			fmt.Printf("would delete %s / %s\n", r.DeviceMAC, r.PolicyAppID)
			pruned++
			continue
		}
		if err := st.DeleteApplication(ctx, r.DeviceMAC, r.PolicyAppID); err != nil {
			fmt.Printf("failed to delete %s / %s: %v\n", r.DeviceMAC, r.PolicyAppID, err)
			continue
		}
		fmt.Printf("deleted %s / %s\n", r.DeviceMAC, r.PolicyAppID)
		pruned++
	}
	if dryRun && pruned > 0 {
		fmt.Println("re-run as `sdlcheck prune apply` to delete these")
	}
	if pruned == 0 {
		fmt.Println("nothing to prune")
	}
}

// runMeta prints the module-wide resumption metadata record.
func runMeta(ctx context.Context, st store.Storage) {
	meta, err := st.LoadMeta(ctx)
	if err != nil {
		fmt.Printf("failed to load meta: %v\n", err)
		os.Exit(1)
	}
	printMeta(meta)
}

func printMeta(meta appmodel.Meta) {
	fmt.Printf("last_ign_off_time: %s\n", meta.LastIgnOffTime.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Printf("preloaded:         %t\n", meta.Preloaded)
	fmt.Printf("ccpu_version:      %s\n", meta.CCPUVersion)
	fmt.Printf("wers_country:      %s\n", meta.WERSCountry)
	fmt.Printf("language:          %s\n", meta.Language)
	fmt.Printf("vin:               %s\n", meta.VIN)
}
