// internal/blockchain/evm/erc20.go
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// ERC20ABI is the subset of the token interface the app calls.
var ERC20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Caller is the read-only slice of Client used for contract views.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenReader performs ERC-20 view calls.
type TokenReader struct {
	caller Caller
}

func NewTokenReader(caller Caller) *TokenReader {
	return &TokenReader{caller: caller}
}

func (t *TokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	if err := t.view(ctx, token, "allowance", &out, owner, spender); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *TokenReader) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	var out *big.Int
	if err := t.view(ctx, token, "balanceOf", &out, account); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *TokenReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	var out uint8
	if err := t.view(ctx, token, "decimals", &out); err != nil {
		return 0, err
	}
	return out, nil
}

func (t *TokenReader) Symbol(ctx context.Context, token common.Address) (string, error) {
	var out string
	if err := t.view(ctx, token, "symbol", &out); err != nil {
		return "", err
	}
	return out, nil
}

func (t *TokenReader) view(ctx context.Context, token common.Address, method string, out any, args ...any) error {
	data, err := ERC20ABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := t.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call %s on %s: %w", method, token.Hex(), err)
	}
	if err := ERC20ABI.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}
