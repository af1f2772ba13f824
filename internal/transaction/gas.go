// internal/transaction/gas.go
package transaction

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"
)

// GasClass selects the fallback gas limit used when estimation fails.
type GasClass int

const (
	// GasClassSimple covers single-value calls: mint, burn, approve, membership.
	GasClassSimple GasClass = iota
	// GasClassMultiStep covers spawn, signal, membrane creation and path ops.
	GasClassMultiStep
	// GasClassBranchWithMembrane covers spawning a branch bound to a membrane.
	GasClassBranchWithMembrane
)

const (
	FallbackGasSimple             uint64 = 300_000
	FallbackGasMultiStep          uint64 = 500_000
	FallbackGasBranchWithMembrane uint64 = 1_000_000
)

// Fallback returns the conservative gas limit for the class.
func (c GasClass) Fallback() uint64 {
	switch c {
	case GasClassMultiStep:
		return FallbackGasMultiStep
	case GasClassBranchWithMembrane:
		return FallbackGasBranchWithMembrane
	default:
		return FallbackGasSimple
	}
}

func (c GasClass) String() string {
	switch c {
	case GasClassMultiStep:
		return "multi_step"
	case GasClassBranchWithMembrane:
		return "branch_with_membrane"
	default:
		return "simple"
	}
}

// GasEstimator turns an on-chain estimate into a bounded gas limit.
type GasEstimator struct {
	backend GasEstimatorBackend
	logger  *zap.Logger
	metrics *Metrics
}

func NewGasEstimator(backend GasEstimatorBackend, logger *zap.Logger, metrics *Metrics) *GasEstimator {
	return &GasEstimator{
		backend: backend,
		logger:  logger.Named("gas-estimator"),
		metrics: metrics,
	}
}

// Estimate asks the provider for an estimate and scales it by multiplier. Any
// estimation failure yields the class fallback instead of an error.
func (g *GasEstimator) Estimate(ctx context.Context, call ethereum.CallMsg, multiplier float64, class GasClass) uint64 {
	estimate, err := g.backend.EstimateGas(ctx, call)
	if err != nil {
		fallback := class.Fallback()
		g.logger.Warn("Gas estimation failed, using fallback",
			zap.String("class", class.String()),
			zap.Uint64("gas_limit", fallback),
			zap.Error(err))
		g.metrics.ObserveGasFallback(class)
		return fallback
	}

	limit := ApplyMultiplier(estimate, multiplier)
	g.logger.Debug("Gas estimated",
		zap.Uint64("estimate", estimate),
		zap.Float64("multiplier", multiplier),
		zap.Uint64("gas_limit", limit))
	return limit
}

// Resolve honours an explicit limit from the policy and estimates otherwise.
func (g *GasEstimator) Resolve(ctx context.Context, call ethereum.CallMsg, policy GasPolicy, class GasClass) uint64 {
	if policy.Limit > 0 {
		return policy.Limit
	}
	return g.Estimate(ctx, call, policy.Multiplier, class)
}

// ApplyMultiplier computes floor(estimate * round(multiplier*100) / 100) in
// integer arithmetic. A non-positive multiplier means the default.
func ApplyMultiplier(estimate uint64, multiplier float64) uint64 {
	if multiplier <= 0 {
		multiplier = DefaultGasLimitMultiplier
	}
	pct := int64(math.Round(multiplier * 100))

	limit := new(big.Int).SetUint64(estimate)
	limit.Mul(limit, big.NewInt(pct))
	limit.Quo(limit, big.NewInt(100))
	if !limit.IsUint64() {
		return math.MaxUint64
	}
	return limit.Uint64()
}
