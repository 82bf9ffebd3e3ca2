package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/minutemate/internal/models"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored objects grouped by meeting date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := models.Namespace(strings.ToLower(strings.TrimSpace(namespace)))
			if !ns.Valid() {
				return fmt.Errorf("invalid --namespace %q (want raw, dirty or clean)", namespace)
			}
			return ctx.withApp(cmd.Context(), func(app *App) error {
				groups, err := app.Objects.List(cmd.Context(), ns)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(groups) == 0 {
					color.New(color.FgYellow).Fprintf(out, "No objects in %s\n", ns)
					return nil
				}

				keys := make([]string, 0, len(groups))
				for k := range groups {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				heading := color.New(color.FgBlue, color.Bold)
				for _, k := range keys {
					heading.Fprintln(out, k)
					for _, name := range groups[k] {
						fmt.Fprintf(out, "  %s\n", name)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", string(models.NamespaceClean), "raw, dirty or clean")
	return cmd
}
