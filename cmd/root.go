package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timrc-git/dist-id-shore/idnode"
	"github.com/timrc-git/dist-id-shore/transport"
)

var (
	debug      bool
	group      string
	ttl        int
	listenTime time.Duration
	stateDir   string
)

var rootCmd = &cobra.Command{
	Use:   "distid",
	Short: "Distributed unique-identifier generator",
	Long: `A distributed 64-bit identifier generator. Each node issues unique ids
without a central coordinator by combining a node id, a millisecond
timestamp, and a per-millisecond counter; peers coordinate over an IP
multicast group to detect duplicate node ids and to share high-water
timestamps across restarts and clock jumps.`,
}

// Execute runs the root command and exits with status 1 if it returns an
// error (for example, on invalid arguments).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&group, "group", transport.DefaultGroup, "multicast group address:port")
	rootCmd.PersistentFlags().IntVar(&ttl, "ttl", transport.DefaultTTL, "multicast TTL")
	rootCmd.PersistentFlags().DurationVar(&listenTime, "listen", idnode.DefaultListenTime, "startup listen window")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", idnode.DefaultStateDir, "directory for node state files")
}

// nodeConfig builds the node configuration from the global flags.
func nodeConfig() idnode.Config {
	cfg := idnode.DefaultConfig()
	cfg.Group = group
	cfg.TTL = ttl
	cfg.ListenTime = listenTime
	cfg.StateDir = stateDir
	return cfg
}
