package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediadesk/internal/api"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bindFlag string
	var originsFlag []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversion and transcription API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metrics := api.NewMetrics("")
			a, err := ctx.openApp(runCtx, metrics.Observe)
			if err != nil {
				return err
			}
			defer a.Close()

			bind := strings.TrimSpace(bindFlag)
			if bind == "" {
				bind = a.cfg.Paths.APIBind
			}
			srv := api.NewServer(api.Options{
				Coordinator:    a.coord,
				Metrics:        metrics,
				Catalog:        a.catalog,
				MaxUploadBytes: a.cfg.MaxInputBytes(),
				AllowedOrigins: originsFlag,
				Logger:         a.logger,
			})
			if err := srv.Start(runCtx, bind); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", srv.Addr())

			<-runCtx.Done()
			srv.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&bindFlag, "bind", "", "Listen address (defaults to paths.api_bind)")
	cmd.Flags().StringSliceVar(&originsFlag, "allow-origin", nil, "Browser origins allowed to call the API")
	return cmd
}
