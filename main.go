package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"healthdeck/internal/config"
	"healthdeck/internal/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "healthdeck",
		Short:         "Service health monitoring dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("HEALTHDECK_CONFIG", "healthdeck.yaml"),
		"path to the YAML configuration file")

	root.AddCommand(serveCmd(), cleanupCmd(), probeCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return cfg, err
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
