package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mediachat/internal/config"
	"mediachat/internal/helper"
)

const defaultConfigPath = "./configs/config.yaml"

var configPath string

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	root := &cobra.Command{
		Use:           "mediachat",
		Short:         "Chat with text, PDFs, images and audio",
		Long:          "mediachat routes questions to a chat model, a PDF knowledge base, a vision model or a speech pipeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config.yaml")

	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("mediachat failed")
		os.Exit(1)
	}
}

// loadConfig reads the config and sets up logging. With toFile set, logs go
// to the configured file under the cache root and the returned closer must
// be closed on exit.
func loadConfig(toFile bool) (*config.Config, io.Closer, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Log.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	if !toFile {
		log.Debug().Str("config", configPath).Msg("Loaded config")
		return cfg, io.NopCloser(nil), nil
	}

	if err := helper.CreateFolder(cfg.Cache.Root); err != nil {
		return nil, nil, err
	}
	logPath := filepath.Join(cfg.Cache.Root, cfg.Log.File)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}).With().Caller().Logger()
	log.Debug().Str("config", configPath).Msg("Loaded config")
	return cfg, f, nil
}
