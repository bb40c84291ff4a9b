// Package main implements the scorehider command: one-shot hiding of SAT
// scores in HTML files, range table checks, and the page session server.
package main

import (
	"fmt"
	"os"

	"github.com/cybergodev/scorehider"
	"github.com/cybergodev/scorehider/internal/config"
	"github.com/cybergodev/scorehider/internal/logging"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath   string
	settingsPath string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "scorehider",
		Short: "Hide SAT scores behind click-to-reveal placeholders",
		Long: `scorehider finds SAT scores (400-1600) in HTML and replaces them with
placeholders that reveal the score on click, with a reaction that depends on
how the score compares to the configured ranges.

Configuration is read from a YAML file (--config) and SCOREHIDER_* environment
variables. Range and sound settings live in a separate JSON or YAML file
(--settings).`,
		Version:      version,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	pf.StringVarP(&opts.settingsPath, "settings", "s", "", "path to the range and sound settings file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newHideCmd(opts))
	cmd.AddCommand(newClassifyCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// load reads the configuration and applies the flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.settingsPath != "" {
		cfg.Settings.Path = o.settingsPath
	}
	if o.logLevel != "" {
		if _, err := logging.ParseLevel(o.logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// settings loads the settings file named by cfg, or returns nil for the
// built-in defaults.
func (o *rootOptions) settings(cfg *config.Config) (*scorehider.Settings, error) {
	if cfg.Settings.Path == "" {
		return nil, nil
	}
	s, err := config.LoadSettings(cfg.Settings.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings %s: %w", cfg.Settings.Path, err)
	}
	return &s, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the scorehider version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scorehider %s\n", version)
		},
	}
}
