package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/homemade/tap-clover/tap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func run(cmd *cobra.Command, opts options) error {
	logger, err := tap.NewConsoleLogger(opts.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %w", err)
	}
	tap.SetLogger(logger)
	defer logger.Sync()

	graph, err := tap.NewStreamGraph(tap.CloverStreams())
	if err != nil {
		return err
	}

	if opts.discover {
		catalog, err := tap.Discover(graph, tap.DefaultSchemas())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	}

	selected, err := selectedStreams(opts)
	if err != nil {
		return err
	}

	if opts.docs {
		var cfg tap.Config
		if opts.configPath != "" {
			if cfg, err = tap.LoadConfig(opts.configPath, tap.JSONCompositeEnvVar{Parent: tap.DefaultCompositeEnvVar}); err != nil {
				return err
			}
		}
		csv, err := tap.GenerateStreamDocumentation(graph, &tap.SyncContext{Config: cfg, Selected: selected}).FormatCSV()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), csv)
		return err
	}

	if opts.configPath == "" {
		return errors.New("--config is required unless --discover or --docs is set")
	}
	cfg, err := tap.LoadConfig(opts.configPath, tap.JSONCompositeEnvVar{Parent: tap.DefaultCompositeEnvVar})
	if err != nil {
		return err
	}

	state := tap.NewState()
	if opts.statePath != "" {
		if state, err = tap.LoadState(opts.statePath); err != nil {
			return err
		}
	}

	sc := &tap.SyncContext{
		Config:         cfg,
		ConfigPath:     opts.configPath,
		RecordRequests: opts.recordRequests != "",
		RecordDir:      opts.recordRequests,
		Selected:       selected,
	}

	var store tap.CredentialStore
	if !cfg.Sandbox() {
		store = tap.NewFileCredentialStore(opts.configPath)
	}
	auth, err := tap.NewAuthenticator(cfg, store, sc.APIBuilder)
	if err != nil {
		return err
	}

	driver, err := tap.NewDriver(sc, graph, tap.NewSingerWriter(cmd.OutOrStdout()), tap.DriverOptions{
		Authenticator: auth,
		State:         state,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sync",
		zap.String("merchant_id", cfg.MerchantID),
		zap.String("base_url", cfg.BaseURL()),
		zap.Strings("streams", selected))
	if err = driver.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("sync interrupted")
		}
		return err
	}
	logger.Info("sync complete")
	return nil
}

// selectedStreams merges --select with the streams selected in --catalog.
func selectedStreams(opts options) ([]string, error) {
	var result []string
	for _, name := range opts.selected {
		result = append(result, tap.NormalizeStreamName(name))
	}
	if opts.catalogPath != "" {
		catalog, err := tap.LoadCatalog(opts.catalogPath)
		if err != nil {
			return nil, err
		}
		selected := catalog.Selected()
		if len(selected) == 0 {
			return nil, fmt.Errorf("catalog %s selects no streams", opts.catalogPath)
		}
		result = append(result, selected...)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}
