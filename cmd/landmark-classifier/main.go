// Package main contains the landmark-classifier CLI commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	landmarks "github.com/menta2k/landmark-classifier"
	"github.com/menta2k/landmark-classifier/internal/config"
	"github.com/menta2k/landmark-classifier/internal/logger"
)

var (
	cfgFile string
	version = "dev"
	cfg     *config.Config
	log     logrus.FieldLogger = logrus.StandardLogger()

	rootCmd = &cobra.Command{
		Use:   "landmark-classifier",
		Short: "Recognize landmarks in photographs",
		Long: `landmark-classifier labels photographs of well-known landmarks using an
ONNX Runtime model or a vision language model served by Ollama or llama.cpp.

Images can be classified from the command line or over HTTP.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

// flagKeys maps command flags to the config keys they override
var flagKeys = map[string]string{
	"model-asset": "classifier.model_asset",
	"models-dir":  "classifier.asset_dir",
	"ort-lib":     "classifier.shared_library_path",
	"threads":     "classifier.num_threads",
	"max-results": "classifier.max_results",
	"threshold":   "classifier.score_threshold",
	"backend":     "engine.backend",
	"url":         "engine.url",
	"model":       "engine.model",
	"addr":        "server.addr",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/landmark-classifier/config.json)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this rotated file")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkVisionCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	// Only the running command's flags are bound, so commands sharing a
	// flag name do not shadow each other.
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			_ = viper.BindPFlag(key, f)
		}
	})

	loaded, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	l, err := logger.Init(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	log = l

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "landmark-classifier %s (library %s)\n", version, landmarks.GetVersion())
		},
	}
}
