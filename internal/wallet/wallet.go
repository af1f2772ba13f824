// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"encoding/csv"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// RejectedCode is the EIP-1193 "user rejected request" code.
const RejectedCode = 4001

// RejectedError is returned when the holder declines to sign. It carries the
// same JSON-RPC code a browser wallet would.
type RejectedError struct{}

func (RejectedError) Error() string  { return "user rejected transaction" }
func (RejectedError) ErrorCode() int { return RejectedCode }

// SignRequest describes a transaction awaiting approval.
type SignRequest struct {
	From    common.Address
	To      *common.Address
	ChainID *big.Int
	Nonce   uint64
	Gas     uint64
	Value   *big.Int
	Data    []byte
}

// Confirmer asks the holder to approve a signature.
type Confirmer func(ctx context.Context, req SignRequest) (bool, error)

// AutoApprove signs without asking.
func AutoApprove(context.Context, SignRequest) (bool, error) { return true, nil }

// PromptConfirmer asks on out and reads y/N from in.
func PromptConfirmer(in io.Reader, out io.Writer) Confirmer {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, req SignRequest) (bool, error) {
		to := "contract creation"
		if req.To != nil {
			to = req.To.Hex()
		}
		fmt.Fprintf(out, "Sign transaction from %s to %s (chain %s, nonce %d, gas %d, %d bytes)? [y/N]: ",
			req.From.Hex(), to, req.ChainID, req.Nonce, req.Gas, len(req.Data))

		type answer struct {
			line string
			err  error
		}
		ch := make(chan answer, 1)
		go func() {
			line, err := reader.ReadString('\n')
			ch <- answer{line, err}
		}()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case a := <-ch:
			if a.err != nil && a.err != io.EOF {
				return false, a.err
			}
			switch strings.ToLower(strings.TrimSpace(a.line)) {
			case "y", "yes":
				return true, nil
			}
			return false, nil
		}
	}
}

// Wallet is an EVM externally owned account.
type Wallet struct {
	Name       string
	PrivateKey *ecdsa.PrivateKey
	address    common.Address
	confirm    Confirmer
}

// NewWallet parses a hex private key, with or without 0x.
func NewWallet(privateKeyHex string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return &Wallet{
		PrivateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		confirm:    AutoApprove,
	}, nil
}

// WithConfirmer sets the approval hook used by SignTx.
func (w *Wallet) WithConfirmer(c Confirmer) *Wallet {
	if c == nil {
		c = AutoApprove
	}
	w.confirm = c
	return w
}

// Address returns the account address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx asks the confirmer and signs tx for chainID.
func (w *Wallet) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	ok, err := w.confirm(ctx, SignRequest{
		From:    w.address,
		To:      tx.To(),
		ChainID: chainID,
		Nonce:   tx.Nonce(),
		Gas:     tx.Gas(),
		Value:   tx.Value(),
		Data:    tx.Data(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, RejectedError{}
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// String returns the checksummed address.
func (w *Wallet) String() string {
	return w.address.Hex()
}

// LoadWallets loads wallets from a CSV file with columns [Name, PrivateKeyHex].
// The first row is a header. Malformed rows are skipped.
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		w, err := NewWallet(record[1])
		if err != nil {
			continue
		}
		w.Name = name
		wallets[name] = w
	}
	return wallets, nil
}
