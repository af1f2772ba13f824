package transaction

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type mockEstimator struct {
	mock.Mock
}

func (m *mockEstimator) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(uint64), args.Error(1)
}

func TestApplyMultiplier(t *testing.T) {
	tests := []struct {
		name       string
		estimate   uint64
		multiplier float64
		want       uint64
	}{
		{"default", 100000, 1.2, 120000},
		{"zero means default", 100000, 0, 120000},
		{"negative means default", 100000, -3, 120000},
		{"floors", 33333, 1.5, 49999},
		{"identity", 21000, 1, 21000},
		{"rounds multiplier to hundredths", 100000, 1.234, 123000},
		{"large values stay exact", 1 << 60, 1.2, 1383505805528216371},
		{"overflow saturates", math.MaxUint64, 2, math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyMultiplier(tt.estimate, tt.multiplier))
		})
	}
}

func TestGasEstimator_Estimate(t *testing.T) {
	backend := new(mockEstimator)
	backend.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(100000), nil)

	g := NewGasEstimator(backend, zap.NewNop(), nil)
	assert.Equal(t, uint64(120000), g.Estimate(context.Background(), ethereum.CallMsg{}, 1.2, GasClassSimple))
	backend.AssertExpectations(t)
}

func TestGasEstimator_FallbackPerClass(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	for _, class := range []GasClass{GasClassSimple, GasClassMultiStep, GasClassBranchWithMembrane} {
		t.Run(class.String(), func(t *testing.T) {
			backend := new(mockEstimator)
			backend.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(0), errors.New("execution reverted"))

			g := NewGasEstimator(backend, zap.NewNop(), metrics)
			assert.Equal(t, class.Fallback(), g.Estimate(context.Background(), ethereum.CallMsg{}, 1.2, class))
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.gasFallbacks.WithLabelValues(class.String())))
		})
	}

	assert.Equal(t, uint64(300000), GasClassSimple.Fallback())
	assert.Equal(t, uint64(500000), GasClassMultiStep.Fallback())
	assert.Equal(t, uint64(1000000), GasClassBranchWithMembrane.Fallback())
}

func TestGasEstimator_ResolveExplicitLimit(t *testing.T) {
	backend := new(mockEstimator)
	g := NewGasEstimator(backend, zap.NewNop(), nil)

	got := g.Resolve(context.Background(), ethereum.CallMsg{}, GasPolicy{Limit: 777000}, GasClassSimple)
	assert.Equal(t, uint64(777000), got)
	backend.AssertNotCalled(t, "EstimateGas", mock.Anything, mock.Anything)
}

func TestGasEstimator_ResolveEstimates(t *testing.T) {
	backend := new(mockEstimator)
	backend.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(200000), nil)
	g := NewGasEstimator(backend, zap.NewNop(), nil)

	got := g.Resolve(context.Background(), ethereum.CallMsg{}, GasPolicy{Multiplier: 1.5}, GasClassMultiStep)
	assert.Equal(t, uint64(300000), got)
}
