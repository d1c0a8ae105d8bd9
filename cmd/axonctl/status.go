package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Print the highest committed height and its block/receipts summary",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		blocks, err := openBlockStore(cfg)
		if err != nil {
			return err
		}
		defer blocks.Close()

		height, ok, err := blocks.LatestHeight()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(colorize(color.YellowString, "no committed blocks yet"))
			return nil
		}

		block, _, err := blocks.GetBlockByHeight(height)
		if err != nil {
			return err
		}
		receipts, _, err := blocks.GetReceipts(height)
		if err != nil {
			return err
		}

		table := newTable("field", "value")
		table.Append([]string{"height", fmt.Sprintf("%d", height)})
		table.Append([]string{"proposer", block.Header.Proposer.Hex()})
		table.Append([]string{"state root", block.Header.StateRoot.Hex()})
		table.Append([]string{"receipts root", block.Header.ReceiptsRoot.Hex()})
		table.Append([]string{"tx count", fmt.Sprintf("%d", len(block.Txs))})
		table.Append([]string{"receipt count", fmt.Sprintf("%d", len(receipts))})
		table.Append([]string{"gas used", fmt.Sprintf("%d", block.Header.GasUsed)})
		table.Render()

		fmt.Println(colorize(color.GreenString, "ok"))
		return nil
	},
}
