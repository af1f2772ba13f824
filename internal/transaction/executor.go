// internal/transaction/executor.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/events"
	"github.com/willwe-xyz/willwe-app/internal/notify"
)

var errNoTransaction = errors.New("transaction factory returned no transaction")

// Notifier is the slice of notify.Reporter the executor drives.
type Notifier interface {
	Show(n notify.Notification)
	Update(id string, patch func(*notify.Notification)) bool
	Close(id string)
}

// ExecutorConfig wires an Executor. Waiter, Notifier and Logger are required.
type ExecutorConfig struct {
	Waiter           ReceiptWaiter
	Notifier         Notifier
	Linker           ExplorerLinker
	Publisher        events.Publisher
	Metrics          *Metrics
	Logger           *zap.Logger
	TerminalDuration time.Duration
}

// Executor supervises one transaction at a time. Create one per logical
// operation slot; instances share nothing.
type Executor struct {
	waiter           ReceiptWaiter
	notifier         Notifier
	linker           ExplorerLinker
	publisher        events.Publisher
	metrics          *Metrics
	logger           *zap.Logger
	terminalDuration time.Duration

	mu    sync.Mutex
	state State
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.TerminalDuration <= 0 {
		cfg.TerminalDuration = DefaultTerminalDuration
	}
	return &Executor{
		waiter:           cfg.Waiter,
		notifier:         cfg.Notifier,
		linker:           cfg.Linker,
		publisher:        cfg.Publisher,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger.Named("tx-executor"),
		terminalDuration: cfg.TerminalDuration,
	}
}

// State returns a snapshot of the lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	if s.CurrentHash != nil {
		h := *s.CurrentHash
		s.CurrentHash = &h
	}
	return s
}

// lifecycle carries the per-call values shared by the stages of Execute.
type lifecycle struct {
	id      string
	chainID uint64
	opts    *Options
	start   time.Time
	tx      *types.Transaction
	receipt *types.Receipt
	link    string
	logger  *zap.Logger
}

// Execute runs factory through the full lifecycle: wallet confirmation,
// broadcast, one block confirmation and a terminal notification. It never
// returns an error; the outcome is tagged in Result.
func (e *Executor) Execute(ctx context.Context, chainID uint64, factory TxFactory, opts *Options) Result {
	if opts == nil {
		opts = &Options{}
	}
	if !e.begin() {
		e.logger.Warn("Execute rejected",
			zap.String("operation", opts.operation()),
			zap.Error(ErrExecutorBusy))
		return Result{Outcome: OutcomeBusy}
	}
	defer e.end()

	lc := &lifecycle{
		id:      uuid.New().String(),
		chainID: chainID,
		opts:    opts,
		start:   time.Now(),
	}
	lc.logger = e.logger.With(
		zap.String("lifecycle_id", lc.id),
		zap.String("operation", opts.operation()),
		zap.Uint64("chain_id", chainID))

	e.notifier.Show(notify.Notification{
		ID:          lc.id,
		Title:       "Confirm in wallet",
		Description: "Please confirm the transaction in your wallet",
		Status:      notify.StatusInfo,
	})
	e.publish(lc, events.TxSubmitted, nil)
	lc.logger.Debug("Awaiting wallet confirmation")

	tx, err := factory(ctx, GasPolicy{Multiplier: opts.multiplier(), Limit: opts.GasLimit})
	if err == nil && tx == nil {
		err = errNoTransaction
	}
	if err != nil {
		return e.handleError(lc, err)
	}

	lc.tx = tx
	hash := tx.Hash()
	e.setHash(hash)
	if e.linker != nil {
		lc.link = e.linker.TxURL(chainID, hash)
	}
	lc.logger = lc.logger.With(zap.String("tx_hash", hash.Hex()))
	e.notifier.Update(lc.id, func(n *notify.Notification) {
		n.Title = "Transaction Pending"
		n.Description = "Waiting for the transaction to be confirmed"
		n.Status = notify.StatusPending
		n.Link = lc.link
		n.Duration = 0
	})
	e.publish(lc, events.TxPending, nil)
	lc.logger.Info("Transaction broadcast", zap.Uint64("gas_limit", tx.Gas()))

	receipt, err := e.waiter.WaitForReceipt(ctx, hash)
	if err != nil {
		return e.handleError(lc, fmt.Errorf("failed to confirm transaction: %w", err))
	}
	lc.receipt = receipt
	if receipt.Status != types.ReceiptStatusSuccessful {
		return e.handleError(lc, fmt.Errorf("%w: reverted in block %v", ErrTransactionReverted, receipt.BlockNumber))
	}

	return e.confirm(lc)
}

func (e *Executor) confirm(lc *lifecycle) Result {
	description := lc.opts.SuccessMessage
	if description == "" {
		description = "Transaction confirmed successfully"
	}
	e.notifier.Close(lc.id)
	e.notifier.Show(notify.Notification{
		ID:          lc.id,
		Title:       "Transaction Confirmed",
		Description: description,
		Link:        lc.link,
		Status:      notify.StatusSuccess,
		Duration:    e.terminalDuration,
	})
	e.publish(lc, events.TxConfirmed, nil)
	e.metrics.ObserveOutcome(lc.opts.operation(), OutcomeConfirmed, "", lc.start)
	lc.logger.Info("Transaction confirmed",
		zap.Uint64("gas_used", lc.receipt.GasUsed),
		zap.Duration("elapsed", time.Since(lc.start)))

	result := Result{Outcome: OutcomeConfirmed, Tx: lc.tx, Receipt: lc.receipt}
	if lc.opts.OnSuccess != nil {
		lc.opts.OnSuccess(result)
	}
	return result
}

func (e *Executor) handleError(lc *lifecycle, err error) Result {
	classified := ClassifyError(err)

	if classified.Kind == KindUserRejected {
		e.notifier.Close(lc.id)
		e.notifier.Show(notify.Notification{
			ID:          lc.id,
			Title:       "Transaction Cancelled",
			Description: "You cancelled the transaction",
			Status:      notify.StatusWarning,
			Duration:    e.terminalDuration,
		})
		e.publish(lc, events.TxCancelled, classified)
		e.metrics.ObserveOutcome(lc.opts.operation(), OutcomeCancelled, classified.Kind, lc.start)
		lc.logger.Info("Transaction cancelled by user")
		return Result{Outcome: OutcomeCancelled}
	}

	e.setError(classified)
	description := lc.opts.ErrorMessage
	if description == "" {
		description = classified.Message
	}
	e.notifier.Close(lc.id)
	e.notifier.Show(notify.Notification{
		ID:          lc.id,
		Title:       "Transaction Failed",
		Description: description,
		Link:        lc.link,
		Status:      notify.StatusError,
		Duration:    e.terminalDuration,
	})
	e.publish(lc, events.TxFailed, classified)
	e.metrics.ObserveOutcome(lc.opts.operation(), OutcomeFailed, classified.Kind, lc.start)
	lc.logger.Error("Transaction failed",
		zap.String("kind", string(classified.Kind)),
		zap.Error(err))

	if lc.opts.OnError != nil {
		lc.opts.OnError(classified)
	}
	return Result{Outcome: OutcomeFailed, Tx: lc.tx, Receipt: lc.receipt, Err: classified}
}

func (e *Executor) publish(lc *lifecycle, t events.EventType, classified *ClassifiedError) {
	if e.publisher == nil {
		return
	}
	ev := events.TxEvent{
		BaseEvent:   events.NewBase(t),
		LifecycleID: lc.id,
		Operation:   lc.opts.operation(),
		ChainID:     lc.chainID,
		ExplorerURL: lc.link,
	}
	if lc.opts.From != (common.Address{}) {
		ev.From = lc.opts.From.Hex()
	}
	if lc.tx != nil {
		ev.Hash = lc.tx.Hash().Hex()
		ev.GasLimit = lc.tx.Gas()
	}
	if lc.receipt != nil {
		ev.GasUsed = lc.receipt.GasUsed
		if lc.receipt.BlockNumber != nil {
			ev.BlockNumber = lc.receipt.BlockNumber.Uint64()
		}
	}
	if classified != nil {
		ev.ErrorKind = string(classified.Kind)
		ev.ErrorMessage = classified.Message
	}
	if err := e.publisher.Publish(ev); err != nil {
		lc.logger.Warn("Failed to publish lifecycle event",
			zap.String("event_type", string(t)),
			zap.Error(err))
	}
}

func (e *Executor) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.IsSubmitting {
		return false
	}
	e.state = State{IsSubmitting: true}
	return true
}

func (e *Executor) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.IsSubmitting = false
	e.state.CurrentHash = nil
}

func (e *Executor) setHash(h common.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.CurrentHash = &h
}

func (e *Executor) setError(c *ClassifiedError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Error = c
}

func (o *Options) multiplier() float64 {
	if o.GasLimitMultiplier <= 0 {
		return DefaultGasLimitMultiplier
	}
	return o.GasLimitMultiplier
}

func (o *Options) operation() string {
	if o.Operation == "" {
		return "transaction"
	}
	return o.Operation
}
