package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/selfupdate/internal/app"
	"github.com/yz4230/selfupdate/internal/config"
	"github.com/yz4230/selfupdate/internal/updater"
)

var rootFlags struct {
	verbose bool
	config  string
	json    bool
}

var rootCmd = &cobra.Command{
	Use:   "selfupdate",
	Short: "Keep a deployed git checkout up to date and roll it back when needed",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if rootFlags.verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
	},
	SilenceUsage: true,
}

// loadConfig reads the configuration selected by --config and the
// environment.
func loadConfig() (*config.Config, error) {
	return config.Load(rootFlags.config)
}

// newInjector wires the application and fails early on an invalid restart
// configuration.
func newInjector() (*do.Injector, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	injector := app.NewInjector(cfg, log.Logger)
	if _, err := do.Invoke[*updater.Controller](injector); err != nil {
		return nil, nil, err
	}
	return injector, cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.config, "config", "c", "", fmt.Sprintf("Config file (YAML); %s_* environment variables override it", config.EnvPrefix))
	rootCmd.PersistentFlags().BoolVar(&rootFlags.json, "json", false, "Print results as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
