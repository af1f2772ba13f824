// internal/blockchain/evm/errors.go
package evm

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrNoEndpoints     = errors.New("no rpc endpoints available")
	ErrChainIDMismatch = errors.New("endpoint chain id mismatch")
)

// ProviderError is a client-side failure tagged with a symbolic code the
// transaction classifier understands.
type ProviderError struct {
	code string
	msg  string
}

func NewProviderError(code, msg string) *ProviderError {
	return &ProviderError{code: code, msg: msg}
}

func (e *ProviderError) Error() string { return e.msg }
func (e *ProviderError) Code() string  { return e.code }

// isTransportError reports whether err came from the connection rather than
// from a node that answered. Only transport errors move on to the next
// endpoint; a JSON-RPC error would be the same on every node.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	switch {
	case errors.As(err, &rpcErr),
		errors.Is(err, ethereum.NotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var coder interface{ Code() string }
	return !errors.As(err, &coder)
}
