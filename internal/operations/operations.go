// Package operations holds the WillWe actions a user can take. Each action
// packs its call and hands a factory to the transaction executor of its slot.
package operations

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/blockchain/evm"
	"github.com/willwe-xyz/willwe-app/internal/chain"
	"github.com/willwe-xyz/willwe-app/internal/transaction"
	"github.com/willwe-xyz/willwe-app/internal/willwe"
)

var (
	ErrContractNotConfigured = errors.New("contract address not configured")
	ErrApprovalRequired      = errors.New("token approval required")
)

// Slot groups operations that share one executor, the way one screen owns
// one submit button.
type Slot string

const (
	SlotApprove    Slot = "approve"
	SlotMint       Slot = "mint"
	SlotBurn       Slot = "burn"
	SlotSpawn      Slot = "spawn"
	SlotMembership Slot = "membership"
	SlotSignal     Slot = "signal"
	SlotMembrane   Slot = "membrane"
)

// Writer signs and broadcasts a contract call.
type Writer interface {
	WriteContract(ctx context.Context, signer evm.Signer, call evm.Call) (*types.Transaction, error)
}

// Config wires Clients. Executor is the template for every slot's executor.
type Config struct {
	Chain     chain.Chain
	Writer    Writer
	Estimator *transaction.GasEstimator
	Gate      *transaction.ApprovalGate
	Signer    evm.Signer
	Executor  transaction.ExecutorConfig
	Logger    *zap.Logger
}

// Clients exposes every WillWe action for one chain and one signer.
type Clients struct {
	chain     chain.Chain
	writer    Writer
	estimator *transaction.GasEstimator
	gate      *transaction.ApprovalGate
	signer    evm.Signer
	execCfg   transaction.ExecutorConfig
	logger    *zap.Logger

	mu        sync.Mutex
	executors map[Slot]*transaction.Executor
}

func New(cfg Config) *Clients {
	return &Clients{
		chain:     cfg.Chain,
		writer:    cfg.Writer,
		estimator: cfg.Estimator,
		gate:      cfg.Gate,
		signer:    cfg.Signer,
		execCfg:   cfg.Executor,
		logger:    cfg.Logger.Named("operations"),
		executors: make(map[Slot]*transaction.Executor),
	}
}

// Executor returns the executor owning slot, creating it on first use.
func (c *Clients) Executor(slot Slot) *transaction.Executor {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.executors[slot]
	if !ok {
		e = transaction.NewExecutor(c.execCfg)
		c.executors[slot] = e
	}
	return e
}

// Chain returns the chain the clients submit to.
func (c *Clients) Chain() chain.Chain {
	return c.chain
}

// Signer returns the account that pays for every action.
func (c *Clients) Signer() common.Address {
	return c.signer.Address()
}

func (c *Clients) Approve(ctx context.Context, token, spender common.Address, amount *big.Int, opts *transaction.Options) transaction.Result {
	return c.submit(ctx, SlotApprove, "approve", transaction.GasClassSimple, opts, func() (common.Address, []byte, error) {
		data, err := evm.PackApprove(spender, amount)
		return token, data, err
	})
}

func (c *Clients) Mint(ctx context.Context, nodeID, amount *big.Int, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotMint, willwe.MethodMint, opts, func() ([]byte, error) {
		return willwe.PackMint(nodeID, amount)
	})
}

func (c *Clients) MintPath(ctx context.Context, target, amount *big.Int, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotMint, willwe.MethodMintPath, opts, func() ([]byte, error) {
		return willwe.PackMintPath(target, amount)
	})
}

func (c *Clients) Burn(ctx context.Context, nodeID, amount *big.Int, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotBurn, willwe.MethodBurn, opts, func() ([]byte, error) {
		return willwe.PackBurn(nodeID, amount)
	})
}

func (c *Clients) BurnPath(ctx context.Context, target, amount *big.Int, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotBurn, willwe.MethodBurnPath, opts, func() ([]byte, error) {
		return willwe.PackBurnPath(target, amount)
	})
}

func (c *Clients) SpawnBranch(ctx context.Context, parent *big.Int, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotSpawn, willwe.MethodSpawnBranch, opts, func() ([]byte, error) {
		return willwe.PackSpawnBranch(parent)
	})
}

func (c *Clients) SpawnBranchWithMembrane(ctx context.Context, parent, membraneID *big.Int, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotSpawn, willwe.MethodSpawnBranchWithMembrane, opts, func() ([]byte, error) {
		return willwe.PackSpawnBranchWithMembrane(parent, membraneID)
	})
}

// SpawnRootBranch creates the root node for token. This is how a new entity
// enters the tree.
func (c *Clients) SpawnRootBranch(ctx context.Context, token common.Address, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotSpawn, willwe.MethodSpawnRootBranch, opts, func() ([]byte, error) {
		return willwe.PackSpawnRootBranch(token)
	})
}

func (c *Clients) MintMembership(ctx context.Context, nodeID *big.Int, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotMembership, willwe.MethodMintMembership, opts, func() ([]byte, error) {
		return willwe.PackMintMembership(nodeID)
	})
}

func (c *Clients) SendSignal(ctx context.Context, target *big.Int, signals []*big.Int, opts *transaction.Options) transaction.Result {
	return c.willWe(ctx, SlotSignal, willwe.MethodSendSignal, opts, func() ([]byte, error) {
		return willwe.PackSendSignal(target, signals)
	})
}

func (c *Clients) CreateMembrane(ctx context.Context, tokens []common.Address, balances []*big.Int, meta string, opts *transaction.Options) transaction.Result {
	method := willwe.MethodCreateMembrane
	return c.submit(ctx, SlotMembrane, string(method), method.GasClass(), opts, func() (common.Address, []byte, error) {
		if c.chain.MembranesAddress == (common.Address{}) {
			return common.Address{}, nil, fmt.Errorf("membranes on chain %d: %w", c.chain.ID, ErrContractNotConfigured)
		}
		data, err := willwe.PackCreateMembrane(tokens, balances, meta)
		return c.chain.MembranesAddress, data, err
	})
}

func (c *Clients) willWe(ctx context.Context, slot Slot, method willwe.Method, opts *transaction.Options, packFn func() ([]byte, error)) transaction.Result {
	return c.submit(ctx, slot, string(method), method.GasClass(), opts, func() (common.Address, []byte, error) {
		if c.chain.WillWeAddress == (common.Address{}) {
			return common.Address{}, nil, fmt.Errorf("willwe on chain %d: %w", c.chain.ID, ErrContractNotConfigured)
		}
		data, err := packFn()
		return c.chain.WillWeAddress, data, err
	})
}

// submit runs one action through the slot executor. Packing happens inside
// the factory so that every failure is reported through the same lifecycle.
func (c *Clients) submit(ctx context.Context, slot Slot, operation string, class transaction.GasClass, opts *transaction.Options, build func() (common.Address, []byte, error)) transaction.Result {
	o := transaction.Options{}
	if opts != nil {
		o = *opts
	}
	if o.Operation == "" {
		o.Operation = operation
	}
	from := c.signer.Address()
	o.From = from

	factory := func(ctx context.Context, gas transaction.GasPolicy) (*types.Transaction, error) {
		to, data, err := build()
		if err != nil {
			return nil, err
		}
		call := evm.Call{To: to, Data: data}
		call.GasLimit = c.estimator.Resolve(ctx, call.Msg(from), gas, class)
		return c.writer.WriteContract(ctx, c.signer, call)
	}

	c.logger.Debug("Submitting",
		zap.String("slot", string(slot)),
		zap.String("operation", o.Operation),
		zap.Uint64("chain_id", c.chain.ID))
	return c.Executor(slot).Execute(ctx, c.chain.ID, factory, &o)
}
