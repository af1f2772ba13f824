package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/willwe-xyz/willwe-app/internal/operations"
	"github.com/willwe-xyz/willwe-app/internal/transaction"
	"github.com/willwe-xyz/willwe-app/internal/willwe"
)

var errCancelled = errors.New("transaction cancelled in wallet")

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseNodeIDs(args []string) ([]*big.Int, error) {
	ids := make([]*big.Int, 0, len(args))
	for _, a := range args {
		id, err := willwe.ParseNodeID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseAmount converts a decimal string in token units to base units.
func parseAmount(s string, decimals uint8) (*big.Int, error) {
	v, err := transaction.ParseUnits(s, decimals)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", transaction.ErrInvalidAmount)
	}
	return v, nil
}

// describeResult turns a pipeline outcome into a summary line or an error.
func describeResult(label string, res transaction.Result, txURL func(common.Hash) string) (string, error) {
	switch res.Outcome {
	case transaction.OutcomeConfirmed:
		ref := ""
		if res.Tx != nil {
			ref = res.Tx.Hash().Hex()
			if url := txURL(res.Tx.Hash()); url != "" {
				ref = url
			}
		}
		var block uint64
		if res.Receipt != nil && res.Receipt.BlockNumber != nil {
			block = res.Receipt.BlockNumber.Uint64()
		}
		return fmt.Sprintf("%s confirmed in block %d: %s", label, block, ref), nil
	case transaction.OutcomeCancelled:
		return "", errors.Wrap(errCancelled, label)
	case transaction.OutcomeBusy:
		return "", errors.Wrap(transaction.ErrExecutorBusy, label)
	default:
		if res.Err != nil {
			return "", errors.Wrap(res.Err, label)
		}
		return "", errors.Errorf("%s failed", label)
	}
}

func (c *cli) txURL(h common.Hash) string {
	return c.app.Registry.TxURL(c.app.Chain.ID, h)
}

// submit runs one operation through the pipeline and reports its result.
func (c *cli) submit(cmd *cobra.Command, label string, op func(ctx context.Context, opts *transaction.Options) transaction.Result) error {
	return c.app.Run(cmd.Context(), func(ctx context.Context) (string, error) {
		return describeResult(label, op(ctx, c.app.TxOptions(label+" confirmed")), c.txURL)
	})
}

func decimalsFlag(cmd *cobra.Command) *int {
	return cmd.Flags().Int("decimals", -1, "token decimals (read from the token when omitted)")
}

// resolveDecimals prefers the flag and falls back to the token contract.
func (c *cli) resolveDecimals(ctx context.Context, token common.Address, flag int) (uint8, error) {
	if flag >= 0 {
		if flag > 255 {
			return 0, fmt.Errorf("decimals %d out of range", flag)
		}
		return uint8(flag), nil
	}
	return c.app.Tokens.Decimals(ctx, token)
}

func (c *cli) allowanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowance <token> [amount]",
		Short: "Show the WillWe allowance and balance for a token",
		Args:  cobra.RangeArgs(1, 2),
	}
	decimals := decimalsFlag(cmd)
	cmd.RunE = c.connected(func(cmd *cobra.Command, args []string) error {
		token, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		return c.app.Run(cmd.Context(), func(ctx context.Context) (string, error) {
			dec, err := c.resolveDecimals(ctx, token, *decimals)
			if err != nil {
				return "", errors.Wrap(err, "read decimals")
			}
			owner := c.app.Wallet.Address()
			balance, err := c.app.Tokens.BalanceOf(ctx, token, owner)
			if err != nil {
				return "", errors.Wrap(err, "read balance")
			}
			symbol, err := c.app.Tokens.Symbol(ctx, token)
			if err != nil {
				symbol = token.Hex()
			}

			spender := c.app.Chain.WillWeAddress
			if spender == (common.Address{}) {
				return "", errors.Wrap(operations.ErrContractNotConfigured, "willwe")
			}
			allowance, err := c.app.Tokens.Allowance(ctx, token, owner, spender)
			if err != nil {
				return "", errors.Wrap(err, "read allowance")
			}

			lines := []string{
				fmt.Sprintf("owner     %s", owner.Hex()),
				fmt.Sprintf("balance   %s %s", transaction.FormatUnits(balance, dec), symbol),
				fmt.Sprintf("allowance %s %s", transaction.FormatUnits(allowance, dec), symbol),
			}
			if link := c.app.Registry.AddressURL(c.app.Chain.ID, owner); link != "" {
				lines = append(lines, "explorer  "+link)
			}
			if len(args) > 1 {
				check, err := c.app.Ops.CheckApproval(ctx, token, args[1], &dec)
				if err != nil {
					return "", err
				}
				lines = append(lines, fmt.Sprintf("approval needed for %s: %t", args[1], check.NeedsApproval))
			}
			return strings.Join(lines, "\n"), nil
		})
	})
	return cmd
}

func (c *cli) approveCmd() *cobra.Command {
	var spender string
	var unlimited bool
	cmd := &cobra.Command{
		Use:   "approve <token> [amount]",
		Short: "Approve a spender (WillWe by default) for a token",
		Args:  cobra.RangeArgs(1, 2),
	}
	decimals := decimalsFlag(cmd)
	cmd.Flags().StringVar(&spender, "spender", "", "spender address (default: WillWe contract)")
	cmd.Flags().BoolVar(&unlimited, "unlimited", false, "approve the maximum uint256")
	cmd.RunE = c.connected(func(cmd *cobra.Command, args []string) error {
		token, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		to := c.app.Chain.WillWeAddress
		if spender != "" {
			if to, err = parseAddress(spender); err != nil {
				return err
			}
		}
		if to == (common.Address{}) {
			return errors.Wrap(operations.ErrContractNotConfigured, "willwe")
		}
		if !unlimited && len(args) < 2 {
			return errors.New("amount required unless --unlimited")
		}

		return c.app.Run(cmd.Context(), func(ctx context.Context) (string, error) {
			amount := new(big.Int).Set(math.MaxBig256)
			if !unlimited {
				dec, err := c.resolveDecimals(ctx, token, *decimals)
				if err != nil {
					return "", errors.Wrap(err, "read decimals")
				}
				if amount, err = parseAmount(args[1], dec); err != nil {
					return "", err
				}
			}
			res := c.app.Ops.Approve(ctx, token, to, amount, c.app.TxOptions("Approval confirmed"))
			return describeResult("Approval", res, c.txURL)
		})
	})
	return cmd
}

func (c *cli) mintCmd() *cobra.Command {
	var token string
	var unlimited bool
	cmd := &cobra.Command{
		Use:   "mint <node-id> <amount>",
		Short: "Mint into a node, approving its root token first when needed",
		Args:  cobra.ExactArgs(2),
	}
	decimals := decimalsFlag(cmd)
	cmd.Flags().StringVar(&token, "token", "", "root token of the node (derived for root nodes)")
	cmd.Flags().BoolVar(&unlimited, "unlimited", false, "approve the maximum uint256 instead of the exact amount")
	cmd.RunE = c.connected(func(cmd *cobra.Command, args []string) error {
		nodeID, err := willwe.ParseNodeID(args[0])
		if err != nil {
			return err
		}
		req := operations.MintRequest{
			NodeID:         nodeID,
			Amount:         args[1],
			Unlimited:      unlimited,
			ApproveOptions: c.app.TxOptions("Token approval confirmed"),
		}
		if token != "" {
			if req.Token, err = parseAddress(token); err != nil {
				return err
			}
		}
		if *decimals >= 0 {
			d, err := c.resolveDecimals(cmd.Context(), req.Token, *decimals)
			if err != nil {
				return err
			}
			req.Decimals = &d
		}

		return c.app.Run(cmd.Context(), func(ctx context.Context) (string, error) {
			res, err := c.app.Ops.MintWithApproval(ctx, req, c.app.TxOptions("Mint confirmed"))
			var lines []string
			if res.Approval != nil {
				line, aerr := describeResult("Approval", *res.Approval, c.txURL)
				if aerr != nil {
					return "", aerr
				}
				lines = append(lines, line)
			}
			if err != nil {
				return "", err
			}
			line, err := describeResult("Mint", res.Mint, c.txURL)
			if err != nil {
				return "", err
			}
			return strings.Join(append(lines, line), "\n"), nil
		})
	})
	return cmd
}

// amountCmd builds the node-plus-amount commands that skip approval.
func (c *cli) amountCmd(use, short, label string, op func(*operations.Clients) func(context.Context, *big.Int, *big.Int, *transaction.Options) transaction.Result) *cobra.Command {
	var decimals uint8
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().Uint8Var(&decimals, "decimals", 18, "decimals of the node token")
	cmd.RunE = c.connected(func(cmd *cobra.Command, args []string) error {
		nodeID, err := willwe.ParseNodeID(args[0])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[1], decimals)
		if err != nil {
			return err
		}
		return c.submit(cmd, label, func(ctx context.Context, opts *transaction.Options) transaction.Result {
			return op(c.app.Ops)(ctx, nodeID, amount, opts)
		})
	})
	return cmd
}

func (c *cli) mintPathCmd() *cobra.Command {
	return c.amountCmd("mint-path <target-node-id> <amount>", "Mint along the path from the root to a node", "Mint path",
		func(o *operations.Clients) func(context.Context, *big.Int, *big.Int, *transaction.Options) transaction.Result {
			return o.MintPath
		})
}

func (c *cli) burnCmd() *cobra.Command {
	return c.amountCmd("burn <node-id> <amount>", "Burn node tokens back into the parent", "Burn",
		func(o *operations.Clients) func(context.Context, *big.Int, *big.Int, *transaction.Options) transaction.Result {
			return o.Burn
		})
}

func (c *cli) burnPathCmd() *cobra.Command {
	return c.amountCmd("burn-path <target-node-id> <amount>", "Burn along the path from a node to the root", "Burn path",
		func(o *operations.Clients) func(context.Context, *big.Int, *big.Int, *transaction.Options) transaction.Result {
			return o.BurnPath
		})
}

func (c *cli) spawnCmd() *cobra.Command {
	var membrane string
	cmd := &cobra.Command{
		Use:   "spawn <parent-node-id>",
		Short: "Spawn a branch under a node",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&membrane, "membrane", "", "membrane id gating the new branch")
	cmd.RunE = c.connected(func(cmd *cobra.Command, args []string) error {
		parent, err := willwe.ParseNodeID(args[0])
		if err != nil {
			return err
		}
		if membrane == "" {
			return c.submit(cmd, "Spawn", func(ctx context.Context, opts *transaction.Options) transaction.Result {
				return c.app.Ops.SpawnBranch(ctx, parent, opts)
			})
		}
		membraneID, err := willwe.ParseNodeID(membrane)
		if err != nil {
			return err
		}
		return c.submit(cmd, "Spawn with membrane", func(ctx context.Context, opts *transaction.Options) transaction.Result {
			return c.app.Ops.SpawnBranchWithMembrane(ctx, parent, membraneID, opts)
		})
	})
	return cmd
}

func (c *cli) spawnRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spawn-root <token>",
		Short: "Spawn the root node of an ERC-20",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = c.connected(func(cmd *cobra.Command, args []string) error {
		token, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		return c.submit(cmd, "Spawn root", func(ctx context.Context, opts *transaction.Options) transaction.Result {
			return c.app.Ops.SpawnRootBranch(ctx, token, opts)
		})
	})
	return cmd
}

func (c *cli) membershipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "membership <node-id>",
		Short: "Mint a membership in a node",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = c.connected(func(cmd *cobra.Command, args []string) error {
		nodeID, err := willwe.ParseNodeID(args[0])
		if err != nil {
			return err
		}
		return c.submit(cmd, "Membership", func(ctx context.Context, opts *transaction.Options) transaction.Result {
			return c.app.Ops.MintMembership(ctx, nodeID, opts)
		})
	})
	return cmd
}

func (c *cli) signalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal <node-id> <signal> <signal> [signal...]",
		Short: "Send preference signals to a node",
		Args:  cobra.MinimumNArgs(3),
	}
	cmd.RunE = c.connected(func(cmd *cobra.Command, args []string) error {
		ids, err := parseNodeIDs(args)
		if err != nil {
			return err
		}
		return c.submit(cmd, "Signal", func(ctx context.Context, opts *transaction.Options) transaction.Result {
			return c.app.Ops.SendSignal(ctx, ids[0], ids[1:], opts)
		})
	})
	return cmd
}

func (c *cli) membraneCmd() *cobra.Command {
	var tokens, balances []string
	var meta string
	var decimals uint8
	cmd := &cobra.Command{
		Use:   "membrane",
		Short: "Create a membrane from token balance requirements",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringSliceVar(&tokens, "token", nil, "required token (repeatable)")
	cmd.Flags().StringSliceVar(&balances, "balance", nil, "required balance, one per --token")
	cmd.Flags().StringVar(&meta, "meta", "", "metadata CID")
	cmd.Flags().Uint8Var(&decimals, "decimals", 0, "decimals applied to every balance")
	cmd.RunE = c.connected(func(cmd *cobra.Command, _ []string) error {
		if len(tokens) != len(balances) {
			return fmt.Errorf("%d tokens but %d balances", len(tokens), len(balances))
		}
		addrs := make([]common.Address, len(tokens))
		amounts := make([]*big.Int, len(balances))
		for i := range tokens {
			var err error
			if addrs[i], err = parseAddress(tokens[i]); err != nil {
				return err
			}
			if amounts[i], err = transaction.ParseUnits(balances[i], decimals); err != nil {
				return err
			}
		}
		return c.submit(cmd, "Membrane", func(ctx context.Context, opts *transaction.Options) transaction.Result {
			return c.app.Ops.CreateMembrane(ctx, addrs, amounts, meta, opts)
		})
	})
	return cmd
}
