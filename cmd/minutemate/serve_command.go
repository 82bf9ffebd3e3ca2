package main

import (
	"github.com/spf13/cobra"

	"github.com/xhad/minutemate/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port string
	var streaming bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the prompt API over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *App) error {
				cfg := server.Config{
					Port:      app.Config.Server.Port,
					Streaming: app.Config.Server.Streaming,
				}
				if cmd.Flags().Changed("port") {
					cfg.Port = port
				}
				if cmd.Flags().Changed("stream") {
					cfg.Streaming = streaming
				}
				return server.New(cfg, app.Prompts(""), app.Log).Run(cmd.Context())
			})
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Port to listen on (default from config)")
	cmd.Flags().BoolVar(&streaming, "stream", false, "Stream answers over the WebSocket endpoint")
	return cmd
}
