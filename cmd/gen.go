package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/timrc-git/dist-id-shore/idnode"
	"github.com/timrc-git/dist-id-shore/logger"
)

const defaultIDCount = 1000000

var genCmd = &cobra.Command{
	Use:   "gen <node-id> [id-count]",
	Short: "Generate unique identifiers",
	Long: `Initialize a node and print identifiers as lowercase hexadecimal, one per
line, to stdout. Diagnostics go to stderr.

Examples:
  # One million ids from node 123
  distid gen 123

  # A smaller batch
  distid gen 123 5000`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runGen,
}

func init() {
	rootCmd.AddCommand(genCmd)
}

func runGen(cmd *cobra.Command, args []string) {
	logger.Init("", true)
	logger.SetDebug(debug)

	nodeID, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil || nodeID >= idnode.MaxNodes {
		logger.Errorf("invalid node id %q (want 0..%d)", args[0], idnode.MaxNodes-1)
		os.Exit(1)
	}
	count := uint64(defaultIDCount)
	if len(args) == 2 {
		count, err = strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			logger.Errorf("invalid id count %q", args[1])
			os.Exit(1)
		}
	}

	node, err := idnode.New(nodeConfig())
	if err != nil {
		logger.Errorf("create node: %v", err)
		os.Exit(2)
	}
	defer node.Close()

	if err := node.Initialize(uint16(nodeID)); err != nil {
		logger.Errorf("initialize: %v", err)
		os.Exit(2)
	}

	out := bufio.NewWriterSize(os.Stdout, 1<<20)
	for i := uint64(0); i < count; i++ {
		id, err := node.GetID()
		if err != nil {
			out.Flush()
			logger.Errorf("issue id: %v", err)
			os.Exit(2)
		}
		fmt.Fprintf(out, "%x\n", id)
	}
	if err := out.Flush(); err != nil {
		logger.Errorf("flush output: %v", err)
		os.Exit(2)
	}
}
