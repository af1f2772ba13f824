// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/willwe-xyz/willwe-app/internal/storage/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Storage persists transaction history.
type Storage interface {
	// SaveTransaction inserts tx or, when its lifecycle id is already
	// stored, overwrites the mutable columns.
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, hash string) (*models.Transaction, error)
	// ListTransactions returns newest first. An empty from lists every sender.
	ListTransactions(ctx context.Context, from string, limit, offset int) ([]*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, lifecycleID, status, errorMsg string) error
	RunMigrations(ctx context.Context) error
	Close() error
}
