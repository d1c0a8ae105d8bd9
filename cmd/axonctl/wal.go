package main

import (
	"fmt"

	"github.com/axonium/axon-core/consensuswal"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var walCommand = &cli.Command{
	Name:  "wal",
	Usage: "Inspect the consensus write-ahead log",
	Subcommands: []*cli.Command{
		{
			Name:  "inspect",
			Usage: "Print the persisted consensus WAL record for a height",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "height", Required: true, Usage: "Height to inspect"},
			},
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c)
				if err != nil {
					return err
				}
				walStore, err := openWALStore(cfg)
				if err != nil {
					return err
				}
				defer walStore.Close()

				height := c.Uint64("height")
				record, ok, err := consensuswal.NewConsensusWAL(walStore).Load(height)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println(colorize(color.YellowString, fmt.Sprintf("no WAL record at height %d", height)))
					return nil
				}

				table := newTable("field", "value")
				table.Append([]string{"height", fmt.Sprintf("%d", record.Height)})
				table.Append([]string{"round", fmt.Sprintf("%d", record.Round)})
				table.Append([]string{"phase", record.Phase.String()})
				if len(record.LockHash) > 0 {
					table.Append([]string{"lock hash", fmt.Sprintf("%x", record.LockHash)})
				}
				if record.LastQC != nil {
					table.Append([]string{"last QC height", fmt.Sprintf("%d", record.LastQC.Height)})
					table.Append([]string{"last QC round", fmt.Sprintf("%d", record.LastQC.Round)})
					table.Append([]string{"last QC weight", fmt.Sprintf("%d", record.LastQC.VoteWeight)})
				}
				table.Render()
				return nil
			},
		},
	},
}
