package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mediachat/internal/metrics"
	"mediachat/internal/session"
	"mediachat/internal/tui"
)

func chatCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logFile, err := loadConfig(true)
			if err != nil {
				return err
			}
			defer logFile.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				metrics.Serve(ctx, metricsAddr)
			}

			ctrl, err := session.NewFromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := ctrl.Close(); err != nil {
					log.Warn().Err(err).Msg("Error closing session")
				}
			}()

			log.Info().Str("chat_model", cfg.ChatLLM.Model).Str("vqa", cfg.VQA.Provider).Msg("Starting chat")
			_, err = tea.NewProgram(tui.New(ctx, ctrl), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}
