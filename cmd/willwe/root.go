package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/willwe-xyz/willwe-app/internal/app"
)

type cli struct {
	opts app.Options
	app  *app.App
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{opts: app.Options{In: in, Out: out}}

	root := &cobra.Command{
		Use:           "willwe",
		Short:         "Submit WillWe protocol transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			a, err := app.New(c.opts)
			if err != nil {
				return errors.Wrap(err, "start")
			}
			c.app = a
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.close()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(in)
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.opts.ConfigPath, "config", "c", "configs/config.json", "config file (JSON or YAML)")
	flags.Uint64Var(&c.opts.ChainID, "chain", 0, "chain id (default from config)")
	flags.StringVarP(&c.opts.WalletName, "wallet", "w", "", "wallet name from the wallets file")
	flags.BoolVarP(&c.opts.AutoApprove, "yes", "y", false, "sign without asking for confirmation")
	flags.BoolVar(&c.opts.TUI, "tui", false, "show progress in the terminal UI (requires --yes)")
	flags.Float64Var(&c.opts.GasMultiplier, "gas-multiplier", 0, "scale gas estimates (default from config)")
	flags.Uint64Var(&c.opts.GasLimit, "gas-limit", 0, "fixed gas limit, skips estimation")

	root.AddCommand(
		c.allowanceCmd(),
		c.approveCmd(),
		c.mintCmd(),
		c.mintPathCmd(),
		c.burnCmd(),
		c.burnPathCmd(),
		c.spawnCmd(),
		c.spawnRootCmd(),
		c.membershipCmd(),
		c.signalCmd(),
		c.membraneCmd(),
		c.historyCmd(),
		c.chainsCmd(),
	)
	return root
}

// connected runs fn after attaching the configured chain and wallet.
func (c *cli) connected(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := c.app.Connect(cmd.Context()); err != nil {
			// PersistentPostRunE is skipped when RunE fails.
			_ = c.close()
			return errors.Wrap(err, "connect")
		}
		if err := fn(cmd, args); err != nil {
			_ = c.close()
			return err
		}
		return nil
	}
}

// offline runs fn without touching the chain.
func (c *cli) offline(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			_ = c.close()
			return err
		}
		return nil
	}
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	a := c.app
	c.app = nil
	return errors.Wrap(a.Close(), "shutdown")
}
