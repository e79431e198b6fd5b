// Command vraftls-gatewayd is the editor-facing half of the system: it
// speaks LSP JSON-RPC over stdio to a single editor client, routes requests
// across the cluster of vraftlsd nodes, and proxies language intelligence
// requests to per-language analyzer processes. Bootstrap follows
// cmd/revad/main.go's shape, adapted from raw flag parsing to cobra/viper
// (SPEC_FULL.md §2); unlike vraftlsd it hosts no consensus groups of its
// own, and it has no transport that carries VFS commands to a remote
// group, so open buffers are not mirrored into any VFS.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vraftls/vraftls/internal/config"
	"github.com/vraftls/vraftls/pkg/gateway"
	"github.com/vraftls/vraftls/pkg/lspproxy"
	"github.com/vraftls/vraftls/pkg/router"
	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfspath"
)

func newLogger(cfg config.LogConfig) zerolog.Logger {
	var w interface {
		Write([]byte) (int, error)
	} = os.Stderr
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Int("pid", os.Getpid()).Logger()
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "vraftls-gatewayd",
		Short: "vraftls-gatewayd speaks LSP to an editor and routes to the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "/etc/vraftls/vraftls-gatewayd.toml", "path to the gateway's toml config file")
	return cmd
}

func run(ctx context.Context, configFile string) error {
	config.SetFile(configFile)
	if err := config.Read(); err != nil {
		return err
	}

	var logCfg config.LogConfig
	if err := config.Decode("log", &logCfg); err != nil {
		return err
	}
	logger := newLogger(logCfg)

	rtr, err := router.New()
	if err != nil {
		return err
	}
	defer rtr.Close()

	pool := lspproxy.NewPool(logger)
	defer pool.ShutdownAll(ctx)

	// No consensus group is ever local to the gateway process. spec.md §6
	// names only the node-to-node raft RPCs and the stdio LSP surface as
	// external interfaces; it does not specify a wire protocol for a
	// gateway to submit a VFS command to the node that owns a given path.
	// pkg/consensus.Client implements the raft RPCs themselves (dialed
	// node-to-node, exercised in pkg/consensus/client_test.go), but nothing
	// in this binary yet turns rtr's RouteDecision into an actual dial: a
	// document's CreateFile/UpdateFile never reaches a remote group today.
	// vfsLookup always reporting "no local state machine" is the honest
	// reflection of that gap, not a routing decision.
	vfsLookup := func(vfspath.Path) *vfs.StateMachine { return nil }

	gw := gateway.New(pool, rtr, vfsLookup, logger)
	srv := gateway.NewServer(gw, os.Stdin, os.Stdout, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info().Msg("gateway ready, serving LSP over stdio")
	return srv.Serve(ctx)
}

func main() {
	cmd := newRootCmd()
	cmd.SetContext(context.Background())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
