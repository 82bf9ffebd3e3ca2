package main

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/pkg/scraper"
)

func newHarvestCommand(ctx *commandContext) *cobra.Command {
	var (
		baseURL     string
		meetingType string
		depth       int
		limit       int
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Crawl an agenda page for meeting PDFs and ingest them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, err := models.ParseMeetingType(meetingType)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("depth") {
				depth = cfg.Scraper.MaxDepth
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			spinner := getSpinner(errOut, "Crawling "+baseURL)
			s, err := scraper.NewWithConfig(scraper.ScraperConfig{
				BaseURL:        baseURL,
				MaxDepth:       depth,
				RateLimit:      cfg.Scraper.RateLimit,
				IgnorePatterns: cfg.Scraper.IgnorePatterns,
				OnProgress: func(page string) {
					spinner.Describe(color.CyanString("Crawling %s", page))
				},
			}, ctx.log)
			if err != nil {
				return fmt.Errorf("failed to initialize scraper: %w", err)
			}

			docs, err := s.Scrape(cmd.Context())
			_ = spinner.Finish()
			fmt.Fprintln(errOut)
			if err != nil {
				return fmt.Errorf("failed to crawl %s: %w", baseURL, err)
			}

			usable := selectDocuments(out, docs)
			if limit > 0 && len(usable) > limit {
				usable = usable[:limit]
			}
			color.New(color.FgGreen).Fprintf(out, "✓ Found %d meeting documents (%d usable)\n", len(docs), len(usable))

			if dryRun {
				for _, d := range usable {
					fmt.Fprintf(out, "  %s %-7s %s\n", d.MeetingDate.Format(models.DateLayout), d.FileType, d.URL)
				}
				return nil
			}
			if len(usable) == 0 {
				return nil
			}

			return ctx.withApp(cmd.Context(), func(app *App) error {
				pipeline, err := app.Pipeline(cmd.Context())
				if err != nil {
					return err
				}

				bar := getProgressBar(errOut, len(usable), "Ingesting meeting documents")
				var failed int
				for _, d := range usable {
					if err := cmd.Context().Err(); err != nil {
						return err
					}
					data, err := s.Fetch(cmd.Context(), d)
					if err != nil {
						failed++
						color.New(color.FgRed).Fprintf(out, "✗ %s: %v\n", d.URL, err)
						_ = bar.Add(1)
						continue
					}
					artifact := models.Artifact{
						MeetingDate:  d.MeetingDate,
						MeetingType:  mt,
						FileType:     d.FileType,
						Content:      data,
						OriginalName: documentName(d.URL),
						MimeType:     "application/pdf",
					}
					res, err := pipeline.Run(cmd.Context(), artifact)
					_ = bar.Add(1)
					if err != nil {
						failed++
						color.New(color.FgRed).Fprintf(out, "✗ %s: %v\n", artifact.RawName(), err)
						continue
					}
					color.New(color.FgGreen).Fprintf(out, "✓ %s: %d chunks\n", res.CleanName, res.Chunks)
				}
				_ = bar.Finish()
				fmt.Fprintln(errOut)

				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(usable))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "Agenda center page to crawl")
	cmd.Flags().StringVar(&meetingType, "meeting-type", "", "PlanningBoard (PB) or BoardOfCommissioners (BOC)")
	cmd.Flags().IntVar(&depth, "depth", 0, "Link depth to follow (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Ingest at most this many documents")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be ingested without ingesting")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("meeting-type")
	return cmd
}

// selectDocuments keeps documents whose date and type could be inferred.
func selectDocuments(w io.Writer, docs []models.Document) []models.Document {
	usable := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if !d.HasDate() || d.FileType == "" {
			color.New(color.FgYellow).Fprintf(w, "! skipping %s: could not infer meeting date or file type\n", d.URL)
			continue
		}
		usable = append(usable, d)
	}
	return usable
}

// documentName gives a harvested link a file name with a .pdf extension.
func documentName(link string) string {
	name := "document"
	if u, err := url.Parse(link); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		name = path.Base(u.Path)
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
