// internal/storage/recorder.go
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/events"
	"github.com/willwe-xyz/willwe-app/internal/storage/models"
)

const defaultWriteTimeout = 5 * time.Second

// Recorder persists transaction lifecycle events as history rows.
type Recorder struct {
	store   Storage
	logger  *zap.Logger
	timeout time.Duration
}

func NewRecorder(store Storage, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger.Named("tx-recorder"),
		timeout: defaultWriteTimeout,
	}
}

// Subscribe attaches the recorder to every transaction event on bus.
func (r *Recorder) Subscribe(bus *events.Bus) events.Subscription {
	return bus.SubscribeAll(r,
		events.TxSubmitted,
		events.TxPending,
		events.TxConfirmed,
		events.TxFailed,
		events.TxCancelled,
	)
}

func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.TxEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	// Rows are still written while the bus drains on shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	row := FromEvent(ev)
	if err := r.store.SaveTransaction(ctx, row); err != nil {
		r.logger.Error("Failed to record transaction",
			zap.String("lifecycle_id", ev.LifecycleID),
			zap.String("status", row.Status),
			zap.Error(err))
		return err
	}
	return nil
}

// FromEvent maps a lifecycle event onto a history row.
func FromEvent(ev events.TxEvent) *models.Transaction {
	return &models.Transaction{
		LifecycleID:  ev.LifecycleID,
		Hash:         ev.Hash,
		ChainID:      ev.ChainID,
		FromAddress:  ev.From,
		Operation:    ev.Operation,
		Status:       strings.TrimPrefix(string(ev.Type()), "tx."),
		ErrorKind:    ev.ErrorKind,
		ErrorMessage: ev.ErrorMessage,
		GasLimit:     ev.GasLimit,
		GasUsed:      ev.GasUsed,
		BlockNumber:  ev.BlockNumber,
		ExplorerURL:  ev.ExplorerURL,
	}
}
