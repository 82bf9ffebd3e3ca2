package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/pkg/ingest"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var (
		file        string
		date        string
		meetingType string
		fileType    string
		diarize     bool
		model       string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run a meeting file through extraction, cleaning and indexing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meetingDate, err := time.Parse(models.DateLayout, strings.TrimSpace(date))
			if err != nil {
				return fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", date)
			}
			mt, err := models.ParseMeetingType(meetingType)
			if err != nil {
				return err
			}
			ft, err := models.ParseFileType(fileType)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("diarize") {
				cfg.Speech.Diarize = diarize
			}
			if cmd.Flags().Changed("model") {
				cfg.Speech.Model = model
			}
			if ft == models.Audio {
				cfg.Speech.Enabled = true
			}

			artifact := models.Artifact{
				MeetingDate:  meetingDate,
				MeetingType:  mt,
				FileType:     ft,
				Content:      data,
				OriginalName: filepath.Base(file),
				MimeType:     mime.TypeByExtension(strings.ToLower(filepath.Ext(file))),
			}

			return ctx.withApp(cmd.Context(), func(app *App) error {
				pipeline, err := app.Pipeline(cmd.Context())
				if err != nil {
					return err
				}
				color.New(color.FgBlue).Fprintf(cmd.OutOrStdout(), "Ingesting %s as %s\n", artifact.OriginalName, artifact.BaseName(models.StageRaw))
				res, err := runWithProgress(cmd.ErrOrStderr(), pipeline, func() (*ingest.PipelineResult, error) {
					return pipeline.Run(cmd.Context(), artifact)
				})
				return reportResult(cmd.OutOrStdout(), res, err)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a PDF or audio file")
	cmd.Flags().StringVar(&date, "date", "", "Meeting date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&meetingType, "meeting-type", "", "PlanningBoard (PB) or BoardOfCommissioners (BOC)")
	cmd.Flags().StringVar(&fileType, "file-type", "", "Agenda, Minutes or Audio")
	cmd.Flags().BoolVar(&diarize, "diarize", false, "Label speakers in audio transcripts")
	cmd.Flags().StringVar(&model, "model", "", "Speech model: best or nano")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("meeting-type")
	_ = cmd.MarkFlagRequired("file-type")
	return cmd
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	var stage, name string

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Restart ingestion from a stored dirty or clean text object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := models.Namespace(strings.ToLower(strings.TrimSpace(stage)))
			if ns != models.NamespaceDirty && ns != models.NamespaceClean {
				return fmt.Errorf("invalid --stage %q (want dirty or clean)", stage)
			}
			return ctx.withApp(cmd.Context(), func(app *App) error {
				pipeline, err := app.Pipeline(cmd.Context())
				if err != nil {
					return err
				}
				res, err := runWithProgress(cmd.ErrOrStderr(), pipeline, func() (*ingest.PipelineResult, error) {
					return pipeline.Reprocess(cmd.Context(), ns, name)
				})
				return reportResult(cmd.OutOrStdout(), res, err)
			})
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Namespace to start from: dirty or clean")
	cmd.Flags().StringVar(&name, "name", "", "Object name within the namespace")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runWithProgress(w io.Writer, pipeline *ingest.Pipeline, run func() (*ingest.PipelineResult, error)) (*ingest.PipelineResult, error) {
	bar := getProgressBar(w, len(ingest.Stages), "Starting")
	pipeline.OnStage = func(s ingest.Stage) {
		bar.Describe(color.BlueString("%s", strings.ReplaceAll(string(s), "_", " ")))
		_ = bar.Add(1)
	}
	defer func() { pipeline.OnStage = nil }()

	res, err := run()
	_ = bar.Finish()
	fmt.Fprintln(w)
	return res, err
}

func reportResult(w io.Writer, res *ingest.PipelineResult, err error) error {
	var partial *ingest.PartialIngestError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		color.New(color.FgYellow).Fprintf(w, "! %v\n", partial)
	default:
		return err
	}
	if res != nil {
		color.New(color.FgGreen).Fprintf(w, "✓ %s: %d chunks indexed\n", res.CleanName, res.Chunks)
		fmt.Fprintf(w, "  meeting: %s | date: %s | file: %s\n", res.Identity.MeetingType, res.Identity.MeetingDate, res.Identity.FileType)
	}
	return err
}
