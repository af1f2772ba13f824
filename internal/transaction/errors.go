// internal/transaction/errors.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorKind is the stable failure taxonomy of the pipeline.
type ErrorKind string

const (
	KindUserRejected      ErrorKind = "user_rejected"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindWouldRevert       ErrorKind = "would_revert"
	KindGasLimitExceeded  ErrorKind = "gas_limit_exceeded"
	KindNoncePending      ErrorKind = "nonce_pending"
	KindFeeTooLow         ErrorKind = "fee_too_low"
	KindUnknown           ErrorKind = "unknown"
)

// Provider error codes understood by the classifier. Numeric JSON-RPC codes
// are carried as their decimal string.
const (
	CodeUserRejected          = "4001"
	CodeActionRejected        = "ACTION_REJECTED"
	CodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	CodeUnpredictableGasLimit = "UNPREDICTABLE_GAS_LIMIT"
	CodeCallException         = "CALL_EXCEPTION"
	// CodeTimeout marks context expiry. No rule matches it, so it always
	// classifies as KindUnknown with the raw message.
	CodeTimeout = "TIMEOUT"
)

// rpcCodeExecutionReverted is the JSON-RPC error code geth returns for
// eth_call / eth_estimateGas reverts.
const rpcCodeExecutionReverted = 3

var (
	// ErrTransactionReverted is raised when a mined receipt reports failure.
	ErrTransactionReverted = errors.New("Transaction failed")
	// ErrExecutorBusy is reported when Execute is called while a submission is in flight.
	ErrExecutorBusy = errors.New("transaction already in progress")
)

const genericFailureMessage = "Transaction failed"

var kindMessages = map[ErrorKind]string{
	KindUserRejected:      "Transaction was rejected in the wallet",
	KindInsufficientFunds: "Insufficient funds to cover the amount and gas",
	KindWouldRevert:       "The contract rejected this transaction",
	KindGasLimitExceeded:  "Gas required exceeds the allowed limit",
	KindNoncePending:      "A previous transaction is still pending, wait for it to confirm",
	KindFeeTooLow:         "Replacement fee too low, raise the gas price and try again",
}

// NormalizedError is the provider-independent shape the classifier works on.
type NormalizedError struct {
	Code    string
	Message string
}

// ClassifiedError is a failure mapped onto the taxonomy. It is never mutated
// after construction.
type ClassifiedError struct {
	Kind    ErrorKind
	Message string
	Raw     error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Raw
}

// Coder is implemented by errors that carry a symbolic provider code.
type Coder interface {
	Code() string
}

type codeRule struct {
	codes []string
	kind  ErrorKind
}

type messageRule struct {
	substrings []string
	kind       ErrorKind
}

var (
	rejectionCodes    = []string{CodeUserRejected, CodeActionRejected}
	rejectionMessages = []string{"user rejected", "user denied"}
)

var (
	providerCodeRules = []codeRule{
		{codes: []string{CodeInsufficientFunds}, kind: KindInsufficientFunds},
		{codes: []string{CodeUnpredictableGasLimit}, kind: KindWouldRevert},
		{codes: []string{CodeCallException}, kind: KindWouldRevert},
	}
	providerMessageRules = []messageRule{
		{substrings: []string{"gas required exceeds allowance"}, kind: KindGasLimitExceeded},
		{substrings: []string{"insufficient funds"}, kind: KindInsufficientFunds},
		{substrings: []string{"nonce too low"}, kind: KindNoncePending},
		{substrings: []string{"replacement fee too low", "replacement transaction underpriced"}, kind: KindFeeTooLow},
	}
)

// Classify maps a normalized error onto the taxonomy. Rules are evaluated in
// order and the first match wins.
func Classify(n NormalizedError) ClassifiedError {
	msg := strings.ToLower(n.Message)

	if containsCode(rejectionCodes, n.Code) || containsAny(msg, rejectionMessages) {
		return newClassified(KindUserRejected)
	}
	for _, r := range providerCodeRules {
		if containsCode(r.codes, n.Code) {
			return newClassified(r.kind)
		}
	}
	for _, r := range providerMessageRules {
		if containsAny(msg, r.substrings) {
			return newClassified(r.kind)
		}
	}

	message := n.Message
	if message == "" {
		message = genericFailureMessage
	}
	return ClassifiedError{Kind: KindUnknown, Message: message}
}

func newClassified(kind ErrorKind) ClassifiedError {
	return ClassifiedError{Kind: kind, Message: kindMessages[kind]}
}

// Normalize flattens whatever the provider, signer or pipeline returned into
// a NormalizedError.
func Normalize(err error) NormalizedError {
	if err == nil {
		return NormalizedError{}
	}
	n := NormalizedError{Message: err.Error()}

	var coder Coder
	var rpcErr rpc.Error
	switch {
	case errors.Is(err, ErrTransactionReverted):
		n.Code = CodeCallException
	case errors.As(err, &coder):
		n.Code = coder.Code()
	case errors.As(err, &rpcErr):
		if rpcErr.ErrorCode() == rpcCodeExecutionReverted {
			n.Code = CodeCallException
		} else {
			n.Code = strconv.Itoa(rpcErr.ErrorCode())
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		n.Code = CodeTimeout
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := dataErr.ErrorData().(string); ok && reason != "" && !strings.Contains(n.Message, reason) {
			n.Message = n.Message + ": " + reason
		}
	}
	return n
}

// ClassifyError normalizes and classifies err, keeping err as Raw.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	c := Classify(Normalize(err))
	c.Raw = err
	return &c
}

// IsUserRejected reports whether err is a wallet-level rejection.
func IsUserRejected(err error) bool {
	c := ClassifyError(err)
	return c != nil && c.Kind == KindUserRejected
}

func containsCode(codes []string, code string) bool {
	if code == "" {
		return false
	}
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
