package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortiblox/X1-Nimbus/pkg/gateway"
	"github.com/fortiblox/X1-Nimbus/pkg/node"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr          string
		grpcAddr      string
		blockInterval time.Duration
		noReceipts    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a dev node: gateway and block producer",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(os.Stderr)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Gateway.Addr = addr
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.Gateway.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("block-interval") {
				cfg.BlockInterval = blockInterval
			}
			if noReceipts {
				cfg.Receipts.Enabled = false
			}

			nc, err := cfg.NodeConfig(logger)
			if err != nil {
				return err
			}
			nc.OnError = func(err error) {
				logger.Error().Err(err).Msg("node error")
			}

			n, err := node.New(nc)
			if err != nil {
				return fmt.Errorf("create node: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("version", Version).Str("data_dir", cfg.DataDir).Msg("starting X1-Nimbus")
			if err := n.Start(ctx); err != nil {
				n.Stop()
				return err
			}

			<-ctx.Done()
			logger.Info().Msg("shutting down")
			return n.Stop()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8087", "Gateway HTTP listen address")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":8088", "Gateway gRPC listen address (empty disables)")
	cmd.Flags().DurationVar(&blockInterval, "block-interval", 2*time.Second, "Block interval")
	cmd.Flags().BoolVar(&noReceipts, "no-receipts", false, "Do not store receipts")
	return cmd
}

func newCallCmd() *cobra.Command {
	var (
		req     gateway.CallRequest
		remote  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Call a program method",
		Long: `Call a program method with tagged text arguments, e.g.

  nimbus call --address <program> --method Transfer --arg bytes.<to> --arg int64.5

Without --remote the call executes against the local data directory; with
--test it runs without committing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				resp *gateway.CallResponse
				err  error
			)
			if remote != "" {
				resp, err = callRemote(remote, timeout, &req)
			} else {
				resp, err = callLocal(cmd, &req)
			}
			if err != nil {
				return err
			}
			if err := printJSON(resp); err != nil {
				return err
			}
			if resp.ErrorCode != "" {
				return fmt.Errorf("%s: %s", resp.ErrorCode, resp.Error)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Address, "address", "", "Program address, hex or base58")
	f.StringVar(&req.Method, "method", "", "Method name")
	f.StringArrayVar(&req.Args, "arg", nil, "Tagged argument, repeatable")
	f.StringVar(&req.Sender, "sender", "", "Sender address (default void)")
	f.Uint64Var(&req.WattsLimit, "watts", 0, "Watts limit (0 = default)")
	f.Uint64Var(&req.Nonce, "nonce", 0, "Transaction nonce")
	f.BoolVar(&req.Test, "test", false, "Execute without committing")
	f.StringVar(&remote, "remote", "", "Gateway gRPC address to call instead of the local state")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "Remote call timeout")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("method")
	return cmd
}

func callLocal(cmd *cobra.Command, req *gateway.CallRequest) (*gateway.CallResponse, error) {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	nc, err := cfg.NodeConfig(logger)
	if err != nil {
		return nil, err
	}
	nc.GatewayEnabled = false

	n, err := node.New(nc)
	if err != nil {
		return nil, fmt.Errorf("open node: %w", err)
	}
	defer n.Stop()
	return n.Service().Call(req), nil
}

func callRemote(target string, timeout time.Duration, req *gateway.CallRequest) (*gateway.CallResponse, error) {
	client, err := gateway.Dial(target, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	defer client.Close()
	return client.Call(req)
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect world state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "root",
		Short: "Print the state root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(os.Stderr)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			world, err := openWorld(&cfg, logger)
			if err != nil {
				return err
			}
			defer world.Close()

			root, err := world.Root()
			if err != nil {
				return err
			}
			fmt.Println(root.Hex())
			return nil
		},
	})
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import a state snapshot",
	}

	run := func(op func(path string, w *state.World) (state.SnapshotHeader, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(os.Stderr)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			world, err := openWorld(&cfg, logger)
			if err != nil {
				return err
			}
			defer world.Close()

			start := time.Now()
			hdr, err := op(args[0], world)
			if err != nil {
				return err
			}
			logger.Info().
				Str("file", args[0]).
				Uint64("entries", hdr.Entries).
				Str("root", hdr.Root.Hex()).
				Dur("took", time.Since(start)).
				Msg(cmd.Name() + " complete")
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "export <file>",
			Short: "Write the committed state to a snapshot file",
			Args:  cobra.ExactArgs(1),
			RunE:  run(state.ExportSnapshot),
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Load a snapshot file into an empty state",
			Args:  cobra.ExactArgs(1),
			RunE:  run(state.ImportSnapshot),
		},
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("X1-Nimbus %s (%s)\n", Version, GitCommit)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
