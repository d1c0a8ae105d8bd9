package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

// authorityCommand prints the genesis authority list from the node's
// configuration file. Live epoch rotations are committed on-chain via
// the metadata system contract (spec §4.4) and are only authoritatively
// readable by replaying world state, which axonctl deliberately does not
// do — an offline tool has no business re-deriving consensus-critical
// state, only reporting what bootstrap config says.
var authorityCommand = &cli.Command{
	Name:  "authority",
	Usage: "Inspect the validator authority list",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "Print the genesis authority list",
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c)
				if err != nil {
					return err
				}
				validators, err := cfg.AuthorityList()
				if err != nil {
					return err
				}

				table := newTable("address", "propose weight", "vote weight")
				for _, v := range validators.Validators {
					table.Append([]string{v.Address.Hex(), fmt.Sprintf("%d", v.ProposeWeight), fmt.Sprintf("%d", v.VoteWeight)})
				}
				table.Render()

				fmt.Println(colorize(color.CyanString, fmt.Sprintf("total vote weight: %d", validators.TotalVoteWeight())))
				return nil
			},
		},
	},
}
