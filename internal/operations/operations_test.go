package operations

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/willwe-xyz/willwe-app/internal/blockchain/evm"
	"github.com/willwe-xyz/willwe-app/internal/chain"
	"github.com/willwe-xyz/willwe-app/internal/notify"
	"github.com/willwe-xyz/willwe-app/internal/transaction"
	"github.com/willwe-xyz/willwe-app/internal/wallet"
	"github.com/willwe-xyz/willwe-app/internal/willwe"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	willWeAddr    = common.HexToAddress("0x0000000000000000000000000000000000000ee1")
	membranesAddr = common.HexToAddress("0x0000000000000000000000000000000000000ee2")
	rootToken     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

// fakeChain plays the node: it accepts writes, tracks allowances and serves
// ERC-20 reads.
type fakeChain struct {
	mu         sync.Mutex
	nonce      uint64
	writes     []evm.Call
	allowance  *big.Int
	decimals   uint8
	estimate   uint64
	estimateOK bool
	writeErr   error
}

func (f *fakeChain) WriteContract(ctx context.Context, signer evm.Signer, call evm.Call) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	to := call.To
	unsigned := types.NewTx(&types.LegacyTx{Nonce: f.nonce, Gas: call.GasLimit, GasPrice: big.NewInt(1), To: &to, Data: call.Data})
	signed, err := signer.SignTx(ctx, unsigned, big.NewInt(8453))
	if err != nil {
		return nil, err
	}
	f.nonce++
	f.writes = append(f.writes, call)

	if method, err := evm.ERC20ABI.MethodById(call.Data[:4]); err == nil && method.Name == "approve" {
		args, _ := method.Inputs.Unpack(call.Data[4:])
		f.allowance = args[1].(*big.Int)
	}
	return signed, nil
}

func (f *fakeChain) WaitForReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if !f.estimateOK {
		return 0, errors.New("execution reverted")
	}
	return f.estimate, nil
}

func (f *fakeChain) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeChain) Decimals(context.Context, common.Address) (uint8, error) {
	return f.decimals, nil
}

func (f *fakeChain) calls() []evm.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]evm.Call(nil), f.writes...)
}

type recordingSink struct {
	mu    sync.Mutex
	shown []notify.Notification
}

func (s *recordingSink) Show(n notify.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, n)
}
func (s *recordingSink) Update(notify.Notification) {}
func (s *recordingSink) Close(string)               {}

func (s *recordingSink) byStatus(st notify.Status) []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Notification
	for _, n := range s.shown {
		if n.Status == st {
			out = append(out, n)
		}
	}
	return out
}

func newClients(t *testing.T, fc *fakeChain, signer evm.Signer) (*Clients, *recordingSink) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	sink := &recordingSink{}
	reporter := notify.NewReporter(sink, logger)
	t.Cleanup(reporter.Shutdown)

	return New(Config{
		Chain: chain.Chain{
			ID:               8453,
			WillWeAddress:    willWeAddr,
			MembranesAddress: membranesAddr,
		},
		Writer:    fc,
		Estimator: transaction.NewGasEstimator(fc, logger, nil),
		Gate:      transaction.NewApprovalGate(fc, logger),
		Signer:    signer,
		Executor: transaction.ExecutorConfig{
			Waiter:   fc,
			Notifier: reporter,
			Logger:   logger,
		},
		Logger: logger,
	}), sink
}

func newSigner(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewWallet(testKey)
	require.NoError(t, err)
	return w
}

func TestMintWithApproval_EndToEnd(t *testing.T) {
	fc := &fakeChain{allowance: big.NewInt(0), decimals: 18}
	clients, sink := newClients(t, fc, newSigner(t))
	nodeID := willwe.NodeIDFromAddress(rootToken)

	// The gate reports the shortfall before anything is submitted.
	check, err := clients.CheckApproval(context.Background(), rootToken, "50", nil)
	require.NoError(t, err)
	assert.True(t, check.NeedsApproval)

	res, err := clients.MintWithApproval(context.Background(), MintRequest{NodeID: nodeID, Amount: "50"}, &transaction.Options{SuccessMessage: "Minted 50"})
	require.NoError(t, err)

	fifty, _ := new(big.Int).SetString("50000000000000000000", 10)
	require.NotNil(t, res.Approval)
	assert.Equal(t, transaction.OutcomeConfirmed, res.Approval.Outcome)
	assert.False(t, res.Check.NeedsApproval)
	assert.Equal(t, 0, fifty.Cmp(res.Check.CurrentAllowance))
	assert.Equal(t, transaction.OutcomeConfirmed, res.Mint.Outcome)

	calls := fc.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, rootToken, calls[0].To)
	assert.Equal(t, willWeAddr, calls[1].To)
	assert.Equal(t, transaction.FallbackGasSimple, calls[1].GasLimit)

	mintArgs, err := willwe.WillWeABI.Methods["mint"].Inputs.Unpack(calls[1].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, 0, nodeID.Cmp(mintArgs[0].(*big.Int)))
	assert.Equal(t, 0, fifty.Cmp(mintArgs[1].(*big.Int)))

	var mintSuccess []notify.Notification
	for _, n := range sink.byStatus(notify.StatusSuccess) {
		if n.Description == "Minted 50" {
			mintSuccess = append(mintSuccess, n)
		}
	}
	assert.Len(t, mintSuccess, 1)
	assert.Empty(t, sink.byStatus(notify.StatusError))

	for _, slot := range []Slot{SlotApprove, SlotMint} {
		s := clients.Executor(slot).State()
		assert.False(t, s.IsSubmitting)
		assert.Nil(t, s.CurrentHash)
	}
}

func TestMintWithApproval_SkipsApprovalWhenCovered(t *testing.T) {
	fc := &fakeChain{allowance: new(big.Int).Lsh(big.NewInt(1), 100), decimals: 6}
	clients, _ := newClients(t, fc, newSigner(t))

	res, err := clients.MintWithApproval(context.Background(), MintRequest{NodeID: willwe.NodeIDFromAddress(rootToken), Amount: "10"}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Approval)
	assert.True(t, res.Mint.OK())
	assert.Len(t, fc.calls(), 1)
}

func TestMintWithApproval_Unlimited(t *testing.T) {
	fc := &fakeChain{allowance: big.NewInt(0), decimals: 6}
	clients, _ := newClients(t, fc, newSigner(t))

	_, err := clients.MintWithApproval(context.Background(), MintRequest{
		NodeID:    willwe.NodeIDFromAddress(rootToken),
		Amount:    "1",
		Unlimited: true,
	}, nil)
	require.NoError(t, err)

	args, err := evm.ERC20ABI.Methods["approve"].Inputs.Unpack(fc.calls()[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, 256, args[1].(*big.Int).BitLen())
}

func TestMintWithApproval_RejectedApprovalStopsMint(t *testing.T) {
	fc := &fakeChain{allowance: big.NewInt(0), decimals: 18}
	signer := newSigner(t).WithConfirmer(func(context.Context, wallet.SignRequest) (bool, error) {
		return false, nil
	})
	clients, sink := newClients(t, fc, signer)

	res, err := clients.MintWithApproval(context.Background(), MintRequest{NodeID: willwe.NodeIDFromAddress(rootToken), Amount: "5"}, nil)
	assert.ErrorIs(t, err, ErrApprovalRequired)
	require.NotNil(t, res.Approval)
	assert.Equal(t, transaction.OutcomeCancelled, res.Approval.Outcome)
	assert.Empty(t, fc.calls())
	assert.Len(t, sink.byStatus(notify.StatusWarning), 1)
}

func TestMintWithApproval_BranchNeedsToken(t *testing.T) {
	fc := &fakeChain{allowance: big.NewInt(0), decimals: 18}
	clients, _ := newClients(t, fc, newSigner(t))
	branch := new(big.Int).Lsh(big.NewInt(1), 200)

	_, err := clients.MintWithApproval(context.Background(), MintRequest{NodeID: branch, Amount: "5"}, nil)
	assert.Error(t, err)

	token, err := MintToken(MintRequest{NodeID: branch, Token: rootToken})
	require.NoError(t, err)
	assert.Equal(t, rootToken, token)
}

func TestMintWithApproval_ZeroAmount(t *testing.T) {
	fc := &fakeChain{allowance: big.NewInt(0), decimals: 18}
	clients, _ := newClients(t, fc, newSigner(t))

	_, err := clients.MintWithApproval(context.Background(), MintRequest{NodeID: willwe.NodeIDFromAddress(rootToken), Amount: "0"}, nil)
	assert.ErrorIs(t, err, transaction.ErrInvalidAmount)
	assert.Empty(t, fc.calls())
}

func TestOperations_GasClassFallbacks(t *testing.T) {
	fc := &fakeChain{}
	clients, _ := newClients(t, fc, newSigner(t))
	ctx := context.Background()
	one := big.NewInt(1)

	results := []transaction.Result{
		clients.Burn(ctx, one, one, nil),
		clients.BurnPath(ctx, one, one, nil),
		clients.MintPath(ctx, one, one, nil),
		clients.SpawnBranch(ctx, one, nil),
		clients.SpawnBranchWithMembrane(ctx, one, one, nil),
		clients.SpawnRootBranch(ctx, rootToken, nil),
		clients.MintMembership(ctx, one, nil),
		clients.SendSignal(ctx, one, []*big.Int{one, one, big.NewInt(10000)}, nil),
		clients.CreateMembrane(ctx, []common.Address{rootToken}, []*big.Int{one}, "meta", nil),
	}
	for _, r := range results {
		assert.True(t, r.OK())
	}

	want := []uint64{
		transaction.FallbackGasSimple,
		transaction.FallbackGasMultiStep,
		transaction.FallbackGasMultiStep,
		transaction.FallbackGasMultiStep,
		transaction.FallbackGasBranchWithMembrane,
		transaction.FallbackGasMultiStep,
		transaction.FallbackGasSimple,
		transaction.FallbackGasMultiStep,
		transaction.FallbackGasMultiStep,
	}
	calls := fc.calls()
	require.Len(t, calls, len(want))
	for i, c := range calls {
		assert.Equal(t, want[i], c.GasLimit, "call %d", i)
	}
	assert.Equal(t, membranesAddr, calls[8].To)
}

func TestOperations_EstimateAndExplicitLimit(t *testing.T) {
	fc := &fakeChain{estimate: 100000, estimateOK: true}
	clients, _ := newClients(t, fc, newSigner(t))
	one := big.NewInt(1)

	require.True(t, clients.Mint(context.Background(), one, one, nil).OK())
	require.True(t, clients.Mint(context.Background(), one, one, &transaction.Options{GasLimit: 400000}).OK())

	calls := fc.calls()
	assert.Equal(t, uint64(120000), calls[0].GasLimit)
	assert.Equal(t, uint64(400000), calls[1].GasLimit)
}

func TestOperations_PackFailureIsReported(t *testing.T) {
	fc := &fakeChain{}
	clients, sink := newClients(t, fc, newSigner(t))

	res := clients.SendSignal(context.Background(), big.NewInt(1), nil, nil)
	require.Equal(t, transaction.OutcomeFailed, res.Outcome)
	assert.Equal(t, transaction.KindUnknown, res.Err.Kind)
	assert.Len(t, sink.byStatus(notify.StatusError), 1)
	assert.Empty(t, fc.calls())
}

func TestOperations_MissingContract(t *testing.T) {
	fc := &fakeChain{}
	logger := zap.NewNop()
	clients := New(Config{
		Chain:     chain.Chain{ID: 1},
		Writer:    fc,
		Estimator: transaction.NewGasEstimator(fc, logger, nil),
		Gate:      transaction.NewApprovalGate(fc, logger),
		Signer:    newSigner(t),
		Executor:  transaction.ExecutorConfig{Waiter: fc, Notifier: notify.NewReporter(nil, logger), Logger: logger},
		Logger:    logger,
	})

	res := clients.SpawnBranch(context.Background(), big.NewInt(1), nil)
	require.Equal(t, transaction.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrContractNotConfigured)

	check, err := clients.CheckApproval(context.Background(), rootToken, "1", nil)
	assert.ErrorIs(t, err, ErrContractNotConfigured)
	assert.True(t, check.NeedsApproval)
}

func TestOperations_SlotsAreIndependent(t *testing.T) {
	clients, _ := newClients(t, &fakeChain{}, newSigner(t))
	assert.Same(t, clients.Executor(SlotMint), clients.Executor(SlotMint))
	assert.NotSame(t, clients.Executor(SlotMint), clients.Executor(SlotBurn))
}

func TestOperations_OperationLabelAndSender(t *testing.T) {
	fc := &fakeChain{}
	signer := newSigner(t)
	clients, _ := newClients(t, fc, signer)

	opts := &transaction.Options{}
	clients.Burn(context.Background(), big.NewInt(1), big.NewInt(1), opts)
	// Caller options are copied, never mutated.
	assert.Empty(t, opts.Operation)
	assert.Equal(t, signer.Address(), clients.Signer())
}
