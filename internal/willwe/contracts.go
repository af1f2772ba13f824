// Package willwe encodes calls to the WillWe node tree and Membranes
// contracts.
package willwe

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/willwe-xyz/willwe-app/internal/transaction"
)

const willWeABIJSON = `[
{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"nodeId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"mintPath","stateMutability":"nonpayable","inputs":[{"name":"target","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"burn","stateMutability":"nonpayable","inputs":[{"name":"nodeId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"burnPath","stateMutability":"nonpayable","inputs":[{"name":"target","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"spawnBranch","stateMutability":"nonpayable","inputs":[{"name":"fid","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"spawnBranchWithMembrane","stateMutability":"nonpayable","inputs":[{"name":"fid","type":"uint256"},{"name":"membraneId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"spawnRootBranch","stateMutability":"nonpayable","inputs":[{"name":"fungible20","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"mintMembership","stateMutability":"nonpayable","inputs":[{"name":"fid","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"sendSignal","stateMutability":"nonpayable","inputs":[{"name":"targetNode","type":"uint256"},{"name":"signals","type":"uint256[]"}],"outputs":[]}
]`

const membranesABIJSON = `[
{"type":"function","name":"createMembrane","stateMutability":"nonpayable","inputs":[{"name":"tokens","type":"address[]"},{"name":"balances","type":"uint256[]"},{"name":"meta","type":"string"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	WillWeABI    = mustParse(willWeABIJSON)
	MembranesABI = mustParse(membranesABIJSON)
)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Method names a contract write the app can submit.
type Method string

const (
	MethodMint                    Method = "mint"
	MethodMintPath                Method = "mintPath"
	MethodBurn                    Method = "burn"
	MethodBurnPath                Method = "burnPath"
	MethodSpawnBranch             Method = "spawnBranch"
	MethodSpawnBranchWithMembrane Method = "spawnBranchWithMembrane"
	MethodSpawnRootBranch         Method = "spawnRootBranch"
	MethodMintMembership          Method = "mintMembership"
	MethodSendSignal              Method = "sendSignal"
	MethodCreateMembrane          Method = "createMembrane"
)

// GasClass is the fallback class used when estimating the method fails.
func (m Method) GasClass() transaction.GasClass {
	switch m {
	case MethodSpawnBranchWithMembrane:
		return transaction.GasClassBranchWithMembrane
	case MethodMintPath, MethodBurnPath, MethodSpawnBranch, MethodSpawnRootBranch,
		MethodSendSignal, MethodCreateMembrane:
		return transaction.GasClassMultiStep
	default:
		return transaction.GasClassSimple
	}
}

func PackMint(nodeID, amount *big.Int) ([]byte, error) {
	return pack(WillWeABI, MethodMint, nodeID, amount)
}

func PackMintPath(target, amount *big.Int) ([]byte, error) {
	return pack(WillWeABI, MethodMintPath, target, amount)
}

func PackBurn(nodeID, amount *big.Int) ([]byte, error) {
	return pack(WillWeABI, MethodBurn, nodeID, amount)
}

func PackBurnPath(target, amount *big.Int) ([]byte, error) {
	return pack(WillWeABI, MethodBurnPath, target, amount)
}

func PackSpawnBranch(parent *big.Int) ([]byte, error) {
	return pack(WillWeABI, MethodSpawnBranch, parent)
}

func PackSpawnBranchWithMembrane(parent, membraneID *big.Int) ([]byte, error) {
	return pack(WillWeABI, MethodSpawnBranchWithMembrane, parent, membraneID)
}

func PackSpawnRootBranch(token common.Address) ([]byte, error) {
	return pack(WillWeABI, MethodSpawnRootBranch, token)
}

func PackMintMembership(nodeID *big.Int) ([]byte, error) {
	return pack(WillWeABI, MethodMintMembership, nodeID)
}

// PackSendSignal encodes a signal for target. The first two slots carry the
// membrane and inflation preferences and the rest are child allocations in
// basis points.
func PackSendSignal(target *big.Int, signals []*big.Int) ([]byte, error) {
	if len(signals) < 2 {
		return nil, fmt.Errorf("signal needs membrane and inflation slots, got %d values", len(signals))
	}
	return pack(WillWeABI, MethodSendSignal, target, signals)
}

// PackCreateMembrane encodes a membrane requiring a minimum balance of each
// token. meta is usually an IPFS CID describing the entity.
func PackCreateMembrane(tokens []common.Address, balances []*big.Int, meta string) ([]byte, error) {
	if len(tokens) != len(balances) {
		return nil, fmt.Errorf("membrane has %d tokens but %d balances", len(tokens), len(balances))
	}
	return pack(MembranesABI, MethodCreateMembrane, tokens, balances, meta)
}

func pack(contract abi.ABI, m Method, args ...any) ([]byte, error) {
	data, err := contract.Pack(string(m), args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", m, err)
	}
	return data, nil
}

var maxAddress = new(big.Int).Lsh(big.NewInt(1), 160)

// RootTokenAddress returns the ERC-20 a root node was spawned from. Root node
// ids are the token address read as an integer; ok is false for branch ids.
func RootTokenAddress(nodeID *big.Int) (common.Address, bool) {
	if nodeID == nil || nodeID.Sign() <= 0 || nodeID.Cmp(maxAddress) >= 0 {
		return common.Address{}, false
	}
	return common.BigToAddress(nodeID), true
}

// NodeIDFromAddress is the root node id of token.
func NodeIDFromAddress(token common.Address) *big.Int {
	return new(big.Int).SetBytes(token.Bytes())
}

// ParseNodeID accepts a decimal id or a 0x hex id.
func ParseNodeID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid node id %q", s)
	}
	return id, nil
}
