package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) chainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "List known chains",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = c.offline(func(cmd *cobra.Command, _ []string) error {
		for _, id := range c.app.Registry.IDs() {
			ch, err := c.app.Registry.Get(id)
			if err != nil {
				return err
			}
			marker := " "
			if id == c.app.Config.DefaultChainID {
				marker = "*"
			}
			rpc := "no rpc"
			if len(ch.RPCList) > 0 {
				rpc = strings.Join(ch.RPCList, ",")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-9d %-14s %s\n", marker, id, ch.Name, rpc)
		}
		return nil
	})
	return cmd
}
