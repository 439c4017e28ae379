package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newRecordCmd(c *cli) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record into the frame ring until interrupted",
		Long: `Record the configured target into the frame ring. Recording stops on
SIGINT/SIGTERM or after --duration; the retained frames are summarized
before the session closes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.record(cmd, duration)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")
	return cmd
}

func (c *cli) record(cmd *cobra.Command, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	met := c.exporter()
	rec := c.newRecorder(met)
	if err := rec.Start(); err != nil {
		return err
	}
	defer rec.Stop()
	sess := rec.Session()

	shutdown := c.serve(rec, met)
	defer shutdown()
	c.startDebug(ctx, rec)

	select {
	case <-ctx.Done():
		c.logger.Info("record.stop", "reason", context.Cause(ctx).Error())
	case <-sess.Done():
		// Closed underneath us by a fatal error.
		return fmt.Errorf("record: %w", sess.Err())
	}

	sum, err := rec.Summary()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s: %s\n", sess.ID(), sum)
	return nil
}
