// internal/transaction/approval.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidAmount = errors.New("invalid token amount")

// ApprovalRequest describes the token movement that must be covered by an
// ERC-20 allowance. Decimals is read from the token when nil.
type ApprovalRequest struct {
	Owner    common.Address
	Spender  common.Address
	Token    common.Address
	Amount   string
	Decimals *uint8
}

// ApprovalCheck is derived on every amount change and never cached.
type ApprovalCheck struct {
	CurrentAllowance *big.Int
	RequiredAmount   *big.Int
	NeedsApproval    bool
}

// ApprovalGate decides whether an approve transaction must precede an action.
type ApprovalGate struct {
	tokens TokenReader
	logger *zap.Logger
}

func NewApprovalGate(tokens TokenReader, logger *zap.Logger) *ApprovalGate {
	return &ApprovalGate{
		tokens: tokens,
		logger: logger.Named("approval-gate"),
	}
}

// Check reads the current allowance and compares it with the requested
// amount. On any read or parse failure the check reports NeedsApproval.
func (g *ApprovalGate) Check(ctx context.Context, req ApprovalRequest) (ApprovalCheck, error) {
	amount := strings.TrimSpace(req.Amount)
	if amount == "" || isZeroAmount(amount) {
		return ApprovalCheck{
			CurrentAllowance: new(big.Int),
			RequiredAmount:   new(big.Int),
		}, nil
	}

	var (
		allowance *big.Int
		decimals  uint8
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		a, err := g.tokens.Allowance(egCtx, req.Token, req.Owner, req.Spender)
		if err != nil {
			return fmt.Errorf("failed to read allowance: %w", err)
		}
		allowance = a
		return nil
	})
	if req.Decimals != nil {
		decimals = *req.Decimals
	} else {
		eg.Go(func() error {
			d, err := g.tokens.Decimals(egCtx, req.Token)
			if err != nil {
				return fmt.Errorf("failed to read decimals: %w", err)
			}
			decimals = d
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		g.logger.Warn("Approval check failed, requiring approval",
			zap.String("token", req.Token.Hex()),
			zap.Error(err))
		return ApprovalCheck{NeedsApproval: true}, err
	}

	required, err := ParseUnits(amount, decimals)
	if err != nil {
		return ApprovalCheck{CurrentAllowance: allowance, NeedsApproval: true}, err
	}

	check := ApprovalCheck{
		CurrentAllowance: allowance,
		RequiredAmount:   required,
		NeedsApproval:    allowance.Cmp(required) < 0,
	}
	g.logger.Debug("Approval checked",
		zap.String("token", req.Token.Hex()),
		zap.String("allowance", allowance.String()),
		zap.String("required", required.String()),
		zap.Bool("needs_approval", check.NeedsApproval))
	return check, nil
}

// ParseUnits converts a decimal string such as "100.5" into base units of a
// token with the given decimals. Fractions finer than the token supports are
// rejected rather than rounded.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	units := d.Shift(int32(decimals))
	if !units.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}
	return units.BigInt(), nil
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// parseAmount accepts plain non-negative decimals only: no sign, exponent or
// trailing dot.
func parseAmount(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" || strings.HasSuffix(amount, ".") || strings.TrimLeft(amount, "0123456789.") != "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return d, nil
}

func isZeroAmount(amount string) bool {
	d, err := parseAmount(amount)
	return err == nil && d.IsZero()
}
