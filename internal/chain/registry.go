// internal/chain/registry.go
package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownChain = errors.New("unknown chain")

// Chain describes one EVM network the client can talk to.
type Chain struct {
	ID               uint64
	Name             string
	RPCList          []string
	ExplorerURL      string
	WillWeAddress    common.Address
	MembranesAddress common.Address
}

// Known networks. Contract addresses come from configuration.
var defaults = map[uint64]Chain{
	1:        {ID: 1, Name: "Ethereum", ExplorerURL: "https://etherscan.io"},
	10:       {ID: 10, Name: "Optimism", ExplorerURL: "https://optimistic.etherscan.io"},
	8453:     {ID: 8453, Name: "Base", ExplorerURL: "https://basescan.org"},
	84532:    {ID: 84532, Name: "Base Sepolia", ExplorerURL: "https://sepolia.basescan.org"},
	11155111: {ID: 11155111, Name: "Sepolia", ExplorerURL: "https://sepolia.etherscan.io"},
}

// Registry resolves chain ids to network metadata.
type Registry struct {
	mu     sync.RWMutex
	chains map[uint64]Chain
}

// NewRegistry starts from the built-in networks and overlays the given
// chains. Empty fields of an overlay keep the built-in value.
func NewRegistry(chains ...Chain) *Registry {
	r := &Registry{chains: make(map[uint64]Chain, len(defaults)+len(chains))}
	for id, c := range defaults {
		r.chains[id] = c
	}
	for _, c := range chains {
		r.Register(c)
	}
	return r
}

// Register adds or merges a chain.
func (r *Registry) Register(c Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, ok := r.chains[c.ID]
	if !ok {
		base = Chain{ID: c.ID}
	}
	if c.Name != "" {
		base.Name = c.Name
	}
	if len(c.RPCList) > 0 {
		base.RPCList = append([]string(nil), c.RPCList...)
	}
	if c.ExplorerURL != "" {
		base.ExplorerURL = c.ExplorerURL
	}
	if c.WillWeAddress != (common.Address{}) {
		base.WillWeAddress = c.WillWeAddress
	}
	if c.MembranesAddress != (common.Address{}) {
		base.MembranesAddress = c.MembranesAddress
	}
	r.chains[c.ID] = base
}

// Get returns the chain registered under id.
func (r *Registry) Get(id uint64) (Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[id]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	return c, nil
}

// IDs lists registered chain ids in ascending order.
func (r *Registry) IDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TxURL builds "{explorer}/tx/{hash}". It returns "" when the chain has no
// explorer.
func (r *Registry) TxURL(chainID uint64, hash common.Hash) string {
	return r.explorerPath(chainID, "tx", hash.Hex())
}

// AddressURL builds "{explorer}/address/{addr}".
func (r *Registry) AddressURL(chainID uint64, addr common.Address) string {
	return r.explorerPath(chainID, "address", addr.Hex())
}

func (r *Registry) explorerPath(chainID uint64, kind, value string) string {
	c, err := r.Get(chainID)
	if err != nil || c.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/" + kind + "/" + value
}
