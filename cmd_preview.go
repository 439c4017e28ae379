package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/soocke/framering-go/app"
)

func newPreviewCmd(c *cli) *cobra.Command {
	var autoStart bool
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Open a window showing the newest retained frame",
		Long: `Open a Tk window over the frame ring. Recording can be toggled, the
capture options edited between recordings and the preview stepped back
through the retained frames.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			met := c.exporter()
			rec := c.newRecorder(met)
			shutdown := c.serve(rec, met)
			defer shutdown()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			c.startDebug(ctx, rec)

			app.NewApp("framering", c.cfg, c.logger, rec, c.cfgPath, autoStart).Start()
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoStart, "start", true, "start recording when the window opens")
	return cmd
}
