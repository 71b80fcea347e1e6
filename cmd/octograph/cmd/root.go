package cmd

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	_ "github.com/mattn/go-sqlite3"

	"octograph/internal/config"
	"octograph/internal/httpcache"
	"octograph/internal/influx"
	"octograph/internal/octopus"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "octograph",
	Short: "Imports Octopus Energy consumption and tariff cost data into InfluxDB",
}

var (
	configFile string
	fromDate   string
	toDate     string
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "octograph.yaml", "Path of the YAML configuration file.")
	rootCmd.PersistentFlags().StringVar(&fromDate, "from-date", "yesterday", "Start date (YYYY-MM-DD), 'yesterday', or 'latest' to resume from the last stored point.")
	rootCmd.PersistentFlags().StringVar(&toDate, "to-date", "tomorrow", "End date (YYYY-MM-DD, exclusive), 'yesterday' or 'tomorrow'.")
}

// app bundles everything a subcommand needs once the config is loaded.
type app struct {
	cfg    *config.Config
	loader *octopus.Loader
	store  *influx.Store
}

// mustSetupFromFlags wires the API client (with the optional sqlite response
// cache), the loader, and the InfluxDB store. Failures here are fatal.
func mustSetupFromFlags(ctx context.Context) (*app, func()) {
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	httpClient := http.DefaultClient
	var cacheDB *sql.DB
	if cfg.Cache.Path != "" {
		cacheDB, err = sql.Open("sqlite3", cfg.Cache.Path)
		if err != nil {
			log.Fatalf("Failed to open cache DB (%q): %v", cfg.Cache.Path, err)
		}
		transport, err := httpcache.New(ctx, cacheDB, http.DefaultTransport)
		if err != nil {
			log.Fatalf("Cache: %v", err)
		}
		httpClient = &http.Client{Transport: transport}
		log.Infof("Response caching enabled at %s", cfg.Cache.Path)
	}

	client := &octopus.Client{
		BaseURL:    cfg.Octopus.APIPrefix,
		Key:        cfg.Octopus.APIKey,
		HTTPClient: httpClient,
	}
	loader := &octopus.Loader{
		Client: client,
		Opts: octopus.NormalizeOptions{
			IncludedMeters: cfg.Octopus.IncludedMeters,
			GasGenerations: cfg.GasGenerations(),
			LowStartHour:   cfg.Octopus.UnitRateLowStart,
			LowEndHour:     cfg.Octopus.UnitRateLowEnd,
			PaymentMethod:  cfg.Octopus.PaymentMethod,
		},
		Logger: log.Default(),
	}

	store := influx.New(cfg.InfluxDB.URL, cfg.InfluxDB.Token, cfg.InfluxDB.Org, cfg.InfluxDB.Bucket)

	a := &app{cfg: cfg, loader: loader, store: store}
	return a, func() {
		store.Close()
		if cacheDB != nil {
			if err := cacheDB.Close(); err != nil {
				log.Warnf("close cache DB: %v", err)
			}
		}
	}
}
