// Command vraftlsd runs one consensus node: it opens the configured
// consensus groups' durable storage, applies any log it already holds, and
// serves the raft HTTP RPC surface (spec.md §6) other nodes talk to. Bootstrap follows cmd/revad/main.go's shape, adapted from raw
// flag parsing to cobra/viper (SPEC_FULL.md §2).
package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vraftls/vraftls/internal/config"
	"github.com/vraftls/vraftls/internal/httpserver"
	"github.com/vraftls/vraftls/pkg/consensus"
	"github.com/vraftls/vraftls/pkg/vfs"
	"github.com/vraftls/vraftls/pkg/vfsid"
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
		Use:   "vraftlsd",
		Short: "vraftlsd runs one replicated-VFS consensus node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "/etc/vraftls/vraftlsd.toml", "path to the node's toml config file")
	cmd.Flags().Uint64("node-id", 0, "override node.node_id")
	cmd.Flags().String("data-dir", "", "override node.data_dir")
	_ = viper.BindPFlag("node.node_id", cmd.Flags().Lookup("node-id"))
	_ = viper.BindPFlag("node.data_dir", cmd.Flags().Lookup("data-dir"))

	return cmd
}

func run(configFile string) error {
	config.SetFile(configFile)
	if err := config.Read(); err != nil {
		return err
	}

	var logCfg config.LogConfig
	if err := config.Decode("log", &logCfg); err != nil {
		return err
	}
	logger := newLogger(logCfg)

	var nodeCfg config.NodeConfig
	if err := config.Decode("node", &nodeCfg); err != nil {
		return err
	}
	if v := viper.GetUint64("node.node_id"); v != 0 {
		nodeCfg.NodeID = v
	}
	if v := viper.GetString("node.data_dir"); v != "" {
		nodeCfg.DataDir = v
	}

	groups := make(map[vfsid.GroupID]*consensus.Group, len(nodeCfg.Groups))
	for _, id := range nodeCfg.Groups {
		gid := vfsid.GroupID(id)
		g, err := consensus.OpenGroup(nodeCfg.DataDir, gid, vfs.SystemClock{}, logger)
		if err != nil {
			return err
		}
		defer g.Close()
		groups[gid] = g
	}

	lookup := func(id vfsid.GroupID) (*consensus.Group, bool) {
		g, ok := groups[id]
		return g, ok
	}

	srv := httpserver.New(lookup, httpserver.CORSConfig{AllowedOrigins: nodeCfg.CORSOrigins}, logger)

	logger.Info().Str("addr", nodeCfg.ListenAddr).Int("groups", len(groups)).Msg("starting raft http server")
	return http.ListenAndServe(nodeCfg.ListenAddr, srv.Handler())
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
