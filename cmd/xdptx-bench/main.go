// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command xdptx-bench drives the TX driver against a loopback ring and
// reports throughput.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"code.hybscloud.com/xdptx/internal/logging"
)

var logger = logging.New("main")

func newRootCommand() *cobra.Command {
	cfg := DefaultConfig()
	var cfgPath string

	cmd := &cobra.Command{
		Use:          "xdptx-bench",
		Short:        "Benchmark the AF_XDP TX driver on a loopback ring",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgPath != "" {
				fc, err := LoadFileConfig(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.Info("configuration", zap.Any("config", cfg))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := Run(ctx, cfg, logger)
			logger.Info("bench finished",
				zap.Uint64("packets", res.Packets),
				zap.Duration("duration", res.Duration),
				zap.Float64("pps", res.PPS()),
				zap.Uint64("iterations", res.Stats.Iterations),
				zap.Uint64("transmitted", res.Stats.Transmitted),
				zap.Uint64("starved", res.Stats.Starved),
				zap.Uint64("yields", res.Stats.Yields),
				zap.Error(err),
			)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgPath, "config", "", "TOML config file")
	flags.IntVar(&cfg.Packets, "packets", cfg.Packets, "number of packets to transmit")
	flags.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "outgoing queue capacity")
	flags.IntVar(&cfg.RingSize, "ring-size", cfg.RingSize, "TX ring size (power of 2)")
	flags.IntVar(&cfg.MaxBatch, "max-batch", cfg.MaxBatch, "largest producer batch")
	flags.IntVar(&cfg.FrameSize, "frame-size", cfg.FrameSize, "UMEM frame size (power of 2)")
	flags.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations, "driver iterations before yielding")
	flags.DurationVar(&cfg.MaxDelay, "max-delay", cfg.MaxDelay, "longest random pause between producer batches")
	return cmd
}

func main() {
	defer logger.Sync()
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
