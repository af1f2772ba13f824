// internal/transaction/types.go
package transaction

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultGasLimitMultiplier = 1.2
	DefaultTerminalDuration   = 5 * time.Second
)

// Outcome tags the result of one Execute call.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeCancelled
	OutcomeFailed
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	case OutcomeBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Result is returned by Execute instead of an error. Tx and Receipt are set
// when known; Err only for Failed.
type Result struct {
	Outcome Outcome
	Tx      *types.Transaction
	Receipt *types.Receipt
	Err     *ClassifiedError
}

// OK reports whether the transaction was confirmed.
func (r Result) OK() bool {
	return r.Outcome == OutcomeConfirmed
}

// Options configures a single Execute call.
type Options struct {
	SuccessMessage string
	ErrorMessage   string
	OnSuccess      func(Result)
	OnError        func(*ClassifiedError)
	// GasLimitMultiplier scales the on-chain estimate. Zero means 1.2.
	GasLimitMultiplier float64
	// GasLimit skips estimation when non-zero.
	GasLimit uint64
	// Operation labels logs, metrics and lifecycle events.
	Operation string
	// From is recorded in lifecycle events.
	From common.Address
}

// GasPolicy is handed to the factory so it can size the transaction.
type GasPolicy struct {
	Multiplier float64
	Limit      uint64
}

// TxFactory signs and broadcasts a transaction and returns it once the
// provider accepted it.
type TxFactory func(ctx context.Context, gas GasPolicy) (*types.Transaction, error)

// State is a snapshot of the executor lifecycle.
type State struct {
	IsSubmitting bool
	CurrentHash  *common.Hash
	Error        *ClassifiedError
}

// ReceiptWaiter blocks until hash is included in a block.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// ExplorerLinker builds block explorer links.
type ExplorerLinker interface {
	TxURL(chainID uint64, hash common.Hash) string
}

// GasEstimatorBackend is the provider capability used by GasEstimator.
type GasEstimatorBackend interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

// TokenReader reads ERC-20 state for ApprovalGate.
type TokenReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}
