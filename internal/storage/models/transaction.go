// internal/storage/models/transaction.go
package models

// Transaction statuses mirror the lifecycle event that last touched the row.
const (
	StatusSubmitted = "submitted"
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Transaction is one row of tx history, keyed by the lifecycle id the
// executor assigns before anything reaches the wallet.
type Transaction struct {
	BaseModel
	LifecycleID  string `gorm:"uniqueIndex;size:36;not null"`
	Hash         string `gorm:"index;size:66"`
	ChainID      uint64 `gorm:"index"`
	FromAddress  string `gorm:"index;size:42"`
	Operation    string `gorm:"size:64"`
	Status       string `gorm:"size:16"`
	ErrorKind    string `gorm:"size:32"`
	ErrorMessage string
	GasLimit     uint64
	GasUsed      uint64
	BlockNumber  uint64
	ExplorerURL  string
}

// Terminal reports whether no further lifecycle events are expected.
func (t *Transaction) Terminal() bool {
	switch t.Status {
	case StatusConfirmed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
