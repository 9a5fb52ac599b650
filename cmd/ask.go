package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mediachat/internal/models"
	"mediachat/internal/session"
)

func askCmd() *cobra.Command {
	var (
		pdfs     []string
		image    string
		audio    string
		speakOut string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(false)
			if err != nil {
				return err
			}
			speak := speakOut != ""
			cfg.Audio.SpeakResponses = &speak

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl, err := session.NewFromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := ctrl.Close(); err != nil {
					log.Warn().Err(err).Msg("Error closing session")
				}
			}()

			if len(pdfs) > 0 {
				uploads, err := session.ReadUploads(pdfs, session.PDFExtensions...)
				if err != nil {
					return err
				}
				ctrl.UploadPDFs(uploads)
			}
			if err := attach(image, session.ImageExtensions, ctrl.AttachImage); err != nil {
				return err
			}
			if err := attach(audio, session.AudioExtensions, ctrl.AttachAudio); err != nil {
				return err
			}

			turn, err := ctrl.Submit(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("%s: %w", models.Kind(err), err)
			}
			if turn == nil {
				return fmt.Errorf("empty question")
			}
			printTurn(cmd, turn)
			if turn.KnowledgeErr != nil {
				log.Warn().Err(turn.KnowledgeErr).Msg("Answered without updating the knowledge base")
			}
			if turn.SpeechErr != nil {
				log.Warn().Err(turn.SpeechErr).Msg("No spoken answer")
			}
			// synthesized files are removed when the session closes
			if speakOut != "" && turn.AudioPath != "" {
				if err := copyFile(turn.AudioPath, speakOut); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Audio: %s\n", speakOut)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&pdfs, "pdf", nil, "PDF files to answer from (enables PDF chat)")
	cmd.Flags().StringVar(&image, "image", "", "image to ask about (.jpg, .jpeg, .png)")
	cmd.Flags().StringVar(&audio, "audio", "", "audio file to ask about (.wav, .mp3)")
	cmd.Flags().StringVar(&speakOut, "speak-out", "", "write the spoken answer to this .mp3 file")
	return cmd
}

func attach(path string, exts []string, set func(*models.Upload)) error {
	if path == "" {
		return nil
	}
	up, err := session.ReadUpload(path, exts...)
	if err != nil {
		return err
	}
	set(&up)
	return nil
}

func printTurn(cmd *cobra.Command, turn *session.Turn) {
	out := cmd.OutOrStdout()
	if turn.TranscriptionErr != nil {
		fmt.Fprintf(out, "Could not transcribe audio (%s): %v\n", models.Kind(turn.TranscriptionErr), turn.TranscriptionErr)
		return
	}
	if turn.Transcript != "" {
		fmt.Fprintf(out, "Transcript: %s\n\n", turn.Transcript)
	}
	fmt.Fprintln(out, turn.Answer)
	if len(turn.Sources) > 0 {
		fmt.Fprintf(out, "\nSources: %s\n", strings.Join(turn.Sources, ", "))
	}
	if turn.Degraded {
		fmt.Fprintln(out, "(answered without document context)")
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
