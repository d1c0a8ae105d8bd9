// Command axonctl is the offline operator CLI: status, wal inspect, and
// authority list all read the node's on-disk stores directly rather than
// over RPC, since the JSON-RPC/HTTP surface is explicitly out of core
// scope (spec §1) and axond exposes nothing an operator tool could dial.
// Structured as a small github.com/urfave/cli/v2 app in the idiom of
// cmd/evm-node's app/Commands layout (_examples/luxfi-evm).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/axonium/axon-core/config"
	"github.com/axonium/axon-core/consensuswal"
	"github.com/axonium/axon-core/store"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Value: "axond.yaml",
	Usage: "Path to the node's configuration file",
}

func main() {
	app := &cli.App{
		Name:  "axonctl",
		Usage: "axon-core operator CLI",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			statusCommand,
			walCommand,
			authorityCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	return config.Load(c.String("config"))
}

func openBlockStore(cfg config.Config) (*store.BlockStore, error) {
	return store.Open(filepath.Join(cfg.DataDir, "blocks"))
}

func openWALStore(cfg config.Config) (*consensuswal.LevelDBStore, error) {
	return consensuswal.OpenLevelDBStore(filepath.Join(cfg.DataDir, "wal"))
}

// colorize returns s wrapped in the given color function only when
// stdout is a real terminal, matching the teacher pack's
// fatih/color + mattn/go-isatty pairing for "no escape codes when piped".
func colorize(fn func(format string, a ...interface{}) string, s string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return s
	}
	return fn(s)
}

func newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	return table
}
