package transaction

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubTokens struct {
	allowance    *big.Int
	decimals     uint8
	allowanceErr error
	decimalsErr  error
	reads        atomic.Int32
}

func (s *stubTokens) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	s.reads.Add(1)
	if s.allowanceErr != nil {
		return nil, s.allowanceErr
	}
	return new(big.Int).Set(s.allowance), nil
}

func (s *stubTokens) Decimals(context.Context, common.Address) (uint8, error) {
	s.reads.Add(1)
	return s.decimals, s.decimalsErr
}

func TestApprovalGate_Check(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		needs  bool
	}{
		{"equal", "100", false},
		{"below", "99.5", false},
		{"one unit above", "100.000001", true},
		{"far above", "1000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &stubTokens{allowance: big.NewInt(100_000_000), decimals: 6}
			gate := NewApprovalGate(tokens, zap.NewNop())

			check, err := gate.Check(context.Background(), ApprovalRequest{Amount: tt.amount})
			require.NoError(t, err)
			assert.Equal(t, tt.needs, check.NeedsApproval)
			assert.Equal(t, int64(100_000_000), check.CurrentAllowance.Int64())
		})
	}
}

func TestApprovalGate_EmptyOrZeroAmount(t *testing.T) {
	for _, amount := range []string{"", "   ", "0", "0.000", ".0"} {
		t.Run(amount, func(t *testing.T) {
			tokens := &stubTokens{allowance: big.NewInt(0), decimals: 18}
			gate := NewApprovalGate(tokens, zap.NewNop())

			check, err := gate.Check(context.Background(), ApprovalRequest{Amount: amount})
			require.NoError(t, err)
			assert.False(t, check.NeedsApproval)
			assert.Zero(t, tokens.reads.Load())
		})
	}
}

func TestApprovalGate_ReadFailureRequiresApproval(t *testing.T) {
	tests := []struct {
		name   string
		tokens *stubTokens
	}{
		{"allowance", &stubTokens{allowanceErr: errors.New("rpc down"), decimals: 18}},
		{"decimals", &stubTokens{allowance: big.NewInt(1e18), decimalsErr: errors.New("rpc down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewApprovalGate(tt.tokens, zap.NewNop())
			check, err := gate.Check(context.Background(), ApprovalRequest{Amount: "1"})
			assert.Error(t, err)
			assert.True(t, check.NeedsApproval)
		})
	}
}

func TestApprovalGate_InvalidAmountRequiresApproval(t *testing.T) {
	gate := NewApprovalGate(&stubTokens{allowance: big.NewInt(1e18), decimals: 2}, zap.NewNop())

	check, err := gate.Check(context.Background(), ApprovalRequest{Amount: "1.001"})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.True(t, check.NeedsApproval)
}

func TestApprovalGate_KnownDecimalsSkipRead(t *testing.T) {
	tokens := &stubTokens{allowance: big.NewInt(5), decimalsErr: errors.New("must not be read")}
	gate := NewApprovalGate(tokens, zap.NewNop())
	decimals := uint8(0)

	check, err := gate.Check(context.Background(), ApprovalRequest{Amount: "6", Decimals: &decimals})
	require.NoError(t, err)
	assert.True(t, check.NeedsApproval)
	assert.Equal(t, int32(1), tokens.reads.Load())
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{"100", 6, "100000000", false},
		{"100.000001", 6, "100000001", false},
		{"0.5", 18, "500000000000000000", false},
		{"9007199254740993.000000000000000001", 18, "9007199254740993000000000000000001", false},
		{"007", 0, "7", false},
		{".5", 1, "5", false},
		{"1.50", 1, "15", false},
		{"123456789012345678901234567890", 18, "123456789012345678901234567890000000000000000000", false},
		{"1.0000001", 6, "", true},
		{"1.", 6, "", true},
		{"-1", 6, "", true},
		{"1e3", 6, "", true},
		{"1.2.3", 6, "", true},
		{"", 6, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FormatUnits(v, 18))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "42", FormatUnits(big.NewInt(42), 0))
	assert.Equal(t, "-0.5", FormatUnits(big.NewInt(-5), 1))
	assert.Equal(t, "0", FormatUnits(nil, 18))
}
