package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"powchain/blockchain"
	"powchain/config"
	"powchain/logging"
	"powchain/node"
	"powchain/p2p"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "powchain",
		Short: "Proof-of-work ledger node",
	}
	cmd.AddCommand(runCmd(), inspectCmd(), clusterCmd(), scriptsCmd())
	return cmd
}

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return runNode(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a config file (yaml, toml or json)")
	flags.String("node-id", "", "Node identifier (generated if empty)")
	flags.StringP("listen-address", "l", ":5000", "HTTP listen address")
	flags.StringSlice("peers", nil, "Initial peer addresses")
	flags.String("storage", string(config.MemoryStorage), "Chain storage: memory or badger")
	flags.String("data-dir", "", "Badger data directory")
	flags.Duration("resolve-interval", 5*time.Second, "Interval between reconciliation rounds")
	flags.Duration("fetch-timeout", p2p.DefaultFetchTimeout, "Timeout for one peer chain fetch")
	flags.Float64("mining-reward", 1, "Amount paid to this node for each mined block")
	flags.String("log-level", "info", "Log level")
	flags.String("log-format", "text", "Log format: text or json")
	return cmd
}

func runNode(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	n, err := node.NewFullNode(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create node")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start node")
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
	case serveErr = <-n.Done():
		if serveErr != nil {
			logger.Error().Err(serveErr).Msg("API server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Unclean shutdown")
		return err
	}
	return serveErr
}

func inspectCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "inspect <address>",
		Short: "Fetch and validate a node's chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := p2p.NormalizeAddress(args[0])
			if err != nil {
				return err
			}

			logger, err := logging.New("warn", "text", os.Stderr)
			if err != nil {
				return err
			}
			fetcher := p2p.NewHTTPFetcher(timeout, logger)

			resp, ok := fetcher.FetchChain(cmd.Context(), addr)
			if !ok {
				return fmt.Errorf("could not fetch chain from %s", addr)
			}
			return printChain(cmd, addr, resp)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", p2p.DefaultFetchTimeout, "Fetch timeout")
	return cmd
}

func printChain(cmd *cobra.Command, addr string, resp p2p.ChainResponse) error {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(out, "%s %s\n", bold("Node"), addr)
	fmt.Fprintf(out, "%s %s (reported %s)\n", bold("Length"),
		humanize.Comma(int64(len(resp.Chain))), humanize.Comma(int64(resp.Length)))

	for i := range resp.Chain {
		b := &resp.Chain[i]
		ts := time.Unix(0, int64(b.Timestamp*float64(time.Second)))
		fmt.Fprintf(out, "  #%-6d proof=%-10d txs=%-4d %s %s\n",
			b.Index, b.Proof, len(b.Transactions), dim(humanize.Time(ts)), dim(blockchain.HashBlock(b)))
	}

	if !resp.Consistent() {
		color.New(color.FgYellow).Fprintln(out, "reported length does not match chain")
	}
	if err := blockchain.ValidateChain(resp.Chain); err != nil {
		color.New(color.FgRed).Fprintf(out, "INVALID: %v\n", err)
		return err
	}
	color.New(color.FgGreen).Fprintln(out, "valid")
	return nil
}
