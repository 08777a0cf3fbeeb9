package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"powchain/config"
	"powchain/logging"
	"powchain/simulate"
)

func clusterCmd() *cobra.Command {
	var (
		size        int
		basePort    int
		minInterval time.Duration
		maxInterval time.Duration
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Run a local cluster of nodes driven by mining bots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logLevel, logging.FormatText, os.Stderr)
			if err != nil {
				return err
			}

			bot := simulate.DefaultBotConfig()
			bot.MinInterval, bot.MaxInterval = minInterval, maxInterval

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := simulate.StartCluster(ctx, simulate.ClusterConfig{
				Size:     size,
				BasePort: basePort,
				Node:     *config.Default(),
				Bot:      bot,
			}, logger)
			if err != nil {
				return err
			}
			for _, n := range c.Nodes {
				logger.Info().Str("node", n.NodeID()).Str("addr", n.Addr()).Msg("Cluster member")
			}

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return c.Stop(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&size, "size", 4, "Number of nodes")
	cmd.Flags().IntVar(&basePort, "base-port", 19000, "Port of the first node, 0 for random ports")
	cmd.Flags().DurationVar(&minInterval, "min-interval", 10*time.Second, "Shortest delay between bot rounds")
	cmd.Flags().DurationVar(&maxInterval, "max-interval", 2*time.Minute, "Longest delay between bot rounds")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	return cmd
}
