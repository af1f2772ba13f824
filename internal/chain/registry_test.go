package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IDs(t *testing.T) {
	r := NewRegistry(Chain{ID: 31337, Name: "Anvil"})
	assert.Equal(t, []uint64{1, 10, 8453, 31337, 84532, 11155111}, r.IDs())
}

func TestRegistry_RegisterMerges(t *testing.T) {
	r := NewRegistry(Chain{ID: 8453, RPCList: []string{"https://mainnet.base.org"}})

	base, err := r.Get(8453)
	require.NoError(t, err)
	assert.Equal(t, "Base", base.Name)
	assert.Equal(t, "https://basescan.org", base.ExplorerURL)
	assert.Equal(t, []string{"https://mainnet.base.org"}, base.RPCList)

	_, err = r.Get(999)
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestRegistry_ExplorerLinks(t *testing.T) {
	r := NewRegistry(
		Chain{ID: 31337, Name: "Anvil"},
		Chain{ID: 777, ExplorerURL: "https://scan.example/"},
	)
	hash := common.HexToHash("0x01")
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	assert.Equal(t, "https://basescan.org/tx/"+hash.Hex(), r.TxURL(8453, hash))
	assert.Equal(t, "https://scan.example/address/"+addr.Hex(), r.AddressURL(777, addr))
	assert.Empty(t, r.AddressURL(31337, addr), "no explorer configured")
	assert.Empty(t, r.TxURL(999, hash), "unknown chain")
}
