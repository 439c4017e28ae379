package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/soocke/framering-go/config"
	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/domain/gpu"
	"github.com/soocke/framering-go/domain/source"
)

// cli carries the state shared by every command once flags are parsed.
type cli struct {
	v       *viper.Viper
	cfgPath string
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}
	root := &cobra.Command{
		Use:   "framering",
		Short: "Keep the last seconds of a screen capture in memory",
		Long: `framering captures a window or monitor into a time-bounded,
memory-budgeted ring of frames. Recent frames can be inspected over HTTP
or in a preview window while recording continues.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.cfgPath, "config", "c", "framering.json", "config file")
	pf.StringVar(&c.envFile, "env-file", ".env", "dotenv file with FRAMERING_* overrides")
	pf.Bool("debug", false, "log memory and goroutine stats periodically")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "json or text")

	pf.Float64("buffer-seconds", 0, "seconds of frames to retain")
	pf.Int("memory-budget-mb", 0, "memory budget of the ring in MiB")
	pf.Int("target-fps", 0, "capture frame rate")
	pf.Int("staging-slots", 0, "GPU staging buffers (0 = default)")
	pf.Int("readback-workers", 0, "readback workers (0 = default)")
	pf.Float64("hard-ceiling-factor", 0, "pinned memory ceiling as a multiple of the budget")
	pf.Bool("include-cursor", false, "draw the cursor into captured frames")
	pf.Bool("border-required", false, "request the capture border")
	pf.Bool("keep-frames-on-resize", false, "keep retained frames when the target is resized")

	pf.Uint64("monitor", 0, "monitor handle (0 = primary)")
	pf.Uint64("window", 0, "window handle; wins over --monitor")
	pf.Bool("synthetic", false, "record a generated test pattern instead of the screen")
	pf.Int("synthetic-width", 0, "synthetic frame width")
	pf.Int("synthetic-height", 0, "synthetic frame height")
	pf.String("metrics-addr", "", "serve /metrics, /stats and /frames on this address")

	pf.VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "env-file":
			return
		}
		_ = c.v.BindPFlag(f.Name, f)
	})

	root.AddCommand(newRecordCmd(c), newPreviewCmd(c), newConfigCmd(c))
	return root
}

// load reads the dotenv file, the config file and the flag/env overlay, in
// that order of increasing precedence.
func (c *cli) load(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	cfg, err := config.Load(c.cfgPath)
	if err != nil {
		return err
	}
	config.Overlay(cfg, c.v)
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return nil
}

// target picks the backend and target described by the config.
func (c *cli) target() (capture.Backend, capture.Target) {
	dev := gpu.NewSoftwareDevice()
	if c.cfg.Synthetic {
		b := source.NewSyntheticBackend(c.logger, dev, c.cfg.SyntheticWidth, c.cfg.SyntheticHeight)
		return b, capture.Target{Kind: capture.TargetMonitor, Handle: 1}
	}
	desktop := source.NewDesktop(c.logger, dev)
	if c.cfg.Window != 0 {
		return desktop, capture.Target{Kind: capture.TargetWindow, Handle: uintptr(c.cfg.Window)}
	}
	hmon := uintptr(c.cfg.Monitor)
	if hmon == 0 {
		hmon = source.PrimaryMonitor()
	}
	return desktop, capture.Target{Kind: capture.TargetMonitor, Handle: hmon}
}
