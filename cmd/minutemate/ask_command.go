package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/pkg/answer"
)

func newAskCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var stream bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about indexed meetings; without a question, start a chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := models.SearchMode(strings.ToLower(strings.TrimSpace(mode)))
			if m != "" && m != models.SearchKeyword && m != models.SearchVector {
				return fmt.Errorf("invalid --mode %q (want keyword or vector)", mode)
			}
			return ctx.withApp(cmd.Context(), func(app *App) error {
				prompts := app.Prompts(m)
				out := cmd.OutOrStdout()

				if len(args) > 0 {
					askOnce(cmd, prompts, strings.Join(args, " "), stream)
					return nil
				}

				color.New(color.FgCyan).Fprintln(out, "\nAsk about your town's meetings (type 'exit' to quit)")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				userPrompt := color.New(color.FgGreen)
				for {
					userPrompt.Fprint(out, "\nYou: ")
					if !scanner.Scan() {
						break
					}
					query := strings.TrimSpace(scanner.Text())
					if strings.EqualFold(query, "exit") {
						break
					}
					if query == "" {
						continue
					}
					askOnce(cmd, prompts, query, stream)
				}
				return scanner.Err()
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Retrieval mode: keyword or vector (default from config)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the answer as it is released")
	return cmd
}

func askOnce(cmd *cobra.Command, prompts *answer.PromptProcessor, question string, stream bool) {
	out := cmd.OutOrStdout()
	assistant := color.New(color.FgCyan)

	var resp models.PromptResponse
	if stream {
		assistant.Fprint(out, "Assistant: ")
		streamed := false
		resp = prompts.ProcessStream(cmd.Context(), question, func(tok string) error {
			streamed = true
			_, err := io.WriteString(out, tok)
			return err
		})
		if !streamed {
			fmt.Fprint(out, resp.GeneratedResponse)
		}
		fmt.Fprintln(out)
	} else {
		spinner := getSpinner(cmd.ErrOrStderr(), "Searching meeting records...")
		resp = prompts.Process(cmd.Context(), question)
		_ = spinner.Finish()
		fmt.Fprint(cmd.ErrOrStderr(), "\r")
		assistant.Fprintf(out, "Assistant: %s\n", resp.GeneratedResponse)
	}

	printSources(out, resp)
}

func printSources(w io.Writer, resp models.PromptResponse) {
	if resp.ErrorCode != 0 {
		color.New(color.FgRed).Fprintf(w, "(error code %d)\n", resp.ErrorCode)
		return
	}
	if len(resp.Keywords) > 0 {
		fmt.Fprintf(w, "Keywords: %s\n", strings.Join(resp.Keywords, ", "))
	}
	if len(resp.ContextSegments) == 0 {
		return
	}
	fmt.Fprintln(w, "Sources:")
	for _, s := range resp.ContextSegments {
		fmt.Fprintf(w, "  [%d] %s %s %s (%s)\n", s.ChunkID, s.MeetingType, s.MeetingDate, s.FileType, s.SourceDocument)
	}
}
