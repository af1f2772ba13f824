package operations

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/transaction"
	"github.com/willwe-xyz/willwe-app/internal/willwe"
)

// MintRequest mints Amount (a decimal string in token units) into NodeID.
// Token is the node's root ERC-20; for a root node it may be left zero and is
// derived from the id.
type MintRequest struct {
	NodeID    *big.Int
	Token     common.Address
	Amount    string
	Decimals  *uint8
	Unlimited bool
	// ApproveOptions configures the approval transaction when one is needed.
	ApproveOptions *transaction.Options
}

// MintWithApprovalResult reports both legs of a mint. Approval is nil when
// the allowance already covered the amount.
type MintWithApprovalResult struct {
	Check    transaction.ApprovalCheck
	Approval *transaction.Result
	Mint     transaction.Result
}

// MintToken resolves the ERC-20 a mint into req.NodeID spends.
func MintToken(req MintRequest) (common.Address, error) {
	if req.Token != (common.Address{}) {
		return req.Token, nil
	}
	token, ok := willwe.RootTokenAddress(req.NodeID)
	if !ok {
		return common.Address{}, fmt.Errorf("node %v is not a root node, its root token is required", req.NodeID)
	}
	return token, nil
}

// CheckApproval compares the WillWe allowance for token with amount.
func (c *Clients) CheckApproval(ctx context.Context, token common.Address, amount string, decimals *uint8) (transaction.ApprovalCheck, error) {
	if c.chain.WillWeAddress == (common.Address{}) {
		return transaction.ApprovalCheck{NeedsApproval: true},
			fmt.Errorf("willwe on chain %d: %w", c.chain.ID, ErrContractNotConfigured)
	}
	return c.gate.Check(ctx, transaction.ApprovalRequest{
		Owner:    c.signer.Address(),
		Spender:  c.chain.WillWeAddress,
		Token:    token,
		Amount:   amount,
		Decimals: decimals,
	})
}

// MintWithApproval approves the root token when the allowance is short, checks
// the allowance again and mints. The mint is only submitted on a fresh check
// that reports no approval is needed.
func (c *Clients) MintWithApproval(ctx context.Context, req MintRequest, opts *transaction.Options) (MintWithApprovalResult, error) {
	var res MintWithApprovalResult

	token, err := MintToken(req)
	if err != nil {
		return res, err
	}
	log := c.logger.With(
		zap.String("node_id", req.NodeID.String()),
		zap.String("token", token.Hex()),
		zap.String("amount", req.Amount))

	check, err := c.CheckApproval(ctx, token, req.Amount, req.Decimals)
	res.Check = check
	if err != nil {
		return res, err
	}

	if check.NeedsApproval {
		amount := check.RequiredAmount
		if req.Unlimited {
			amount = new(big.Int).Set(math.MaxBig256)
		}
		log.Info("Allowance too low, approving",
			zap.String("allowance", check.CurrentAllowance.String()),
			zap.String("approve", amount.String()))

		approveOpts := req.ApproveOptions
		if approveOpts == nil {
			approveOpts = &transaction.Options{SuccessMessage: "Token approval confirmed"}
		}
		approval := c.Approve(ctx, token, c.chain.WillWeAddress, amount, approveOpts)
		res.Approval = &approval
		if !approval.OK() {
			return res, fmt.Errorf("approval %s: %w", approval.Outcome, ErrApprovalRequired)
		}

		check, err = c.CheckApproval(ctx, token, req.Amount, req.Decimals)
		res.Check = check
		if err != nil {
			return res, err
		}
		if check.NeedsApproval {
			return res, fmt.Errorf("allowance %s still below %s: %w",
				check.CurrentAllowance, check.RequiredAmount, ErrApprovalRequired)
		}
	}

	if check.RequiredAmount == nil || check.RequiredAmount.Sign() == 0 {
		return res, fmt.Errorf("%w: nothing to mint", transaction.ErrInvalidAmount)
	}
	res.Mint = c.Mint(ctx, req.NodeID, check.RequiredAmount, opts)
	return res, nil
}
