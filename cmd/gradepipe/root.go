package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"GradePipeline/internal/app"
	"GradePipeline/internal/config"
	"GradePipeline/internal/logging"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gradepipe",
	Short: "Grade LMS submissions against their rubric with a reviewed AI pipeline",
	Long: `gradepipe grades every submission of an assignment against the
assignment's rubric. A primary grader scores the work, a fairness reviewer
audits each grade against the submitted document, and the results are
exported for human review before they are posted back to the LMS.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $GRADEPIPE_CONFIG)")
}

// loadConfig resolves .env, the config file and environment overrides.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	_ = godotenv.Load()
	return config.LoadFile(configPath)
}

// buildApp loads configuration, lets the command adjust it, then wires the
// application.
func buildApp(ctx context.Context, adjust func(*config.Config)) (*app.Application, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}

	logger := logging.NewWithFormat(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	application.Start(ctx)
	return application, logger, nil
}
