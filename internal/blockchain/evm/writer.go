// internal/blockchain/evm/writer.go
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Signer holds the account that pays for transactions. SignTx blocks until
// the holder approves or declines.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Call is a contract write before gas and fees are filled in.
type Call struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// Msg converts the call into an estimation request from sender.
func (c Call) Msg(from common.Address) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: &c.To, Data: c.Data, Value: c.Value}
}

// Fees is the fee cap and tip for a dynamic-fee transaction. Tip is nil on
// chains without a base fee, where Cap is used as the legacy gas price.
type Fees struct {
	Cap *big.Int
	Tip *big.Int
}

// SuggestFees follows the usual wallet rule of 2*baseFee + tip.
func (c *Client) SuggestFees(ctx context.Context) (Fees, error) {
	head, err := c.HeaderByNumber(ctx, nil)
	if err != nil {
		return Fees{}, fmt.Errorf("fetch head: %w", err)
	}
	if head.BaseFee == nil {
		price, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return Fees{}, fmt.Errorf("suggest gas price: %w", err)
		}
		return Fees{Cap: price}, nil
	}
	tip, err := c.SuggestGasTipCap(ctx)
	if err != nil {
		return Fees{}, fmt.Errorf("suggest tip: %w", err)
	}
	feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return Fees{Cap: feeCap, Tip: tip}, nil
}

// WriteContract builds, signs and broadcasts call from signer and returns the
// transaction once a node accepted it.
func (c *Client) WriteContract(ctx context.Context, signer Signer, call Call) (*types.Transaction, error) {
	from := signer.Address()
	log := c.logger.With(zap.String("from", from.Hex()), zap.String("to", call.To.Hex()))

	if call.GasLimit == 0 {
		return nil, fmt.Errorf("gas limit not set for call to %s", call.To.Hex())
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	fees, err := c.SuggestFees(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.checkBalance(ctx, from, call.GasLimit, fees.Cap, value); err != nil {
		return nil, err
	}

	chainID := new(big.Int).SetUint64(c.chainID)
	var unsigned *types.Transaction
	if fees.Tip != nil {
		unsigned = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: fees.Tip,
			GasFeeCap: fees.Cap,
			Gas:       call.GasLimit,
			To:        &call.To,
			Value:     value,
			Data:      call.Data,
		})
	} else {
		unsigned = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: fees.Cap,
			Gas:      call.GasLimit,
			To:       &call.To,
			Value:    value,
			Data:     call.Data,
		})
	}

	signed, err := signer.SignTx(ctx, unsigned, chainID)
	if err != nil {
		return nil, err
	}
	if err := c.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	log.Debug("Transaction sent",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", call.GasLimit))
	return signed, nil
}

// checkBalance rejects a write the account cannot pay for before the wallet
// is asked to sign it.
func (c *Client) checkBalance(ctx context.Context, from common.Address, gas uint64, feeCap, value *big.Int) error {
	balance, err := c.BalanceAt(ctx, from, nil)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gas), feeCap)
	cost.Add(cost, value)
	if balance.Cmp(cost) < 0 {
		return NewProviderError("INSUFFICIENT_FUNDS",
			fmt.Sprintf("insufficient funds for gas * price + value: have %s want %s", balance, cost))
	}
	return nil
}
