// Package cli wires the crev commands.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/crev/internal/config"
	"github.com/sprite-ai/crev/internal/logutil"
	"github.com/sprite-ai/crev/internal/service"
	"github.com/sprite-ai/crev/internal/workspace"
)

var (
	configPath string
	logLevel   string
	logFile    string

	cfg         *config.Config
	logger      = zerolog.Nop()
	closeLogger = func() {}

	rootCmd = &cobra.Command{
		Use:   "crev",
		Short: "Review and test code against a review service",
		Long: `crev submits a source file to a review service, maps the returned
findings onto the file as line decorations, and runs the configured
test cases against it.`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = c

	file := logFile
	// stderr belongs to bubbletea while the review TUI is up.
	if file == "" && cmd.Name() == reviewCmd.Name() {
		file = logutil.DefaultFile()
	}

	l, closer, err := logutil.New(logLevel, file)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	logger = l
	closeLogger = closer
	log.Logger = l

	logger.Debug().Str("config", configPath).Str("command", cmd.Name()).Msg("starting")
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	closeLogger()
	return nil
}

func newClient() *service.Client {
	return service.New(service.Options{
		BaseURL:     cfg.Service.BaseURL,
		Timeout:     cfg.Service.Timeout,
		RateLimit:   cfg.Service.RateLimit,
		Burst:       cfg.Service.Burst,
		CPUTime:     cfg.Service.CPUTime,
		MemoryLimit: cfg.Service.MemoryLimit,
		Logger:      logger,
	})
}

func workspaceOptions() workspace.Options {
	return workspace.Options{
		Assignment:   cfg.ModelAssignment(),
		Timeout:      cfg.Service.Timeout,
		ClearOnStart: cfg.ClearOnStart(),
		ClearOnEdit:  cfg.Review.ClearOnEdit,
		Logger:       logger,
	}
}
