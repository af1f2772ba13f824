// internal/blockchain/evm/client.go
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval    = time.Second
	DefaultDialAttempts    = 3
	DefaultFailureCooldown = 30 * time.Second
)

// Backend is the JSON-RPC surface the client needs. *ethclient.Client
// satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Endpoint pairs a backend with the URL it was dialed from.
type Endpoint struct {
	URL     string
	Backend Backend
}

// RPCObserver receives per-request timings and endpoint health changes.
type RPCObserver interface {
	ObserveRPC(method, endpoint string, duration time.Duration, err error)
	SetEndpointHealth(endpoint string, up bool)
}

// Config tunes polling and failover.
type Config struct {
	PollInterval time.Duration
	// ConfirmationTimeout bounds WaitForReceipt. Zero waits until ctx ends.
	ConfirmationTimeout time.Duration
	DialAttempts        uint
	FailureCooldown     time.Duration
	Observer            RPCObserver
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DialAttempts == 0 {
		c.DialAttempts = DefaultDialAttempts
	}
	if c.FailureCooldown <= 0 {
		c.FailureCooldown = DefaultFailureCooldown
	}
}

// Client is a failover JSON-RPC client for a single chain.
type Client struct {
	chainID   uint64
	endpoints []*endpoint
	config    Config
	logger    *zap.Logger
}

// NewClient builds a client over already connected endpoints.
func NewClient(chainID uint64, endpoints []Endpoint, logger *zap.Logger, cfg Config) *Client {
	cfg.setDefaults()
	eps := make([]*endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		eps = append(eps, &endpoint{url: e.URL, backend: e.Backend})
		if cfg.Observer != nil {
			cfg.Observer.SetEndpointHealth(e.URL, true)
		}
	}
	return &Client{
		chainID:   chainID,
		endpoints: eps,
		config:    cfg,
		logger:    logger.Named("evm-client"),
	}
}

// Dial connects to every url concurrently and keeps the endpoints that answer
// with the expected chain id.
func Dial(ctx context.Context, chainID uint64, urls []string, logger *zap.Logger, cfg Config) (*Client, error) {
	cfg.setDefaults()
	log := logger.Named("evm-dial")

	connected := make([]Endpoint, len(urls))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, url := range urls {
		eg.Go(func() error {
			ec, err := dialEndpoint(egCtx, url, chainID, cfg.DialAttempts)
			if err != nil {
				log.Warn("Endpoint unavailable", zap.String("url", url), zap.Error(err))
				return nil
			}
			connected[i] = Endpoint{URL: url, Backend: ec}
			return nil
		})
	}
	_ = eg.Wait()

	endpoints := make([]Endpoint, 0, len(urls))
	for _, e := range connected {
		if e.Backend != nil {
			endpoints = append(endpoints, e)
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrNoEndpoints)
	}
	log.Info("Connected", zap.Uint64("chain_id", chainID), zap.Int("endpoints", len(endpoints)))
	return NewClient(chainID, endpoints, logger, cfg), nil
}

func dialEndpoint(ctx context.Context, url string, chainID uint64, attempts uint) (*ethclient.Client, error) {
	return backoff.Retry(ctx, func() (*ethclient.Client, error) {
		ec, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, err
		}
		id, err := ec.ChainID(ctx)
		if err != nil {
			ec.Close()
			return nil, err
		}
		if id.Uint64() != chainID {
			ec.Close()
			return nil, backoff.Permanent(fmt.Errorf("%w: want %d, got %s", ErrChainIDMismatch, chainID, id))
		}
		return ec, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(attempts))
}

// ChainID returns the chain the client is bound to.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Close releases every endpoint.
func (c *Client) Close() {
	for _, e := range c.endpoints {
		e.backend.Close()
	}
}

// withOne runs f against endpoints in order, skipping ones in cooldown, until
// one succeeds or answers with a non-transport error.
func (c *Client) withOne(ctx context.Context, method string, f func(Backend) error) error {
	ready := make([]*endpoint, 0, len(c.endpoints))
	for _, e := range c.endpoints {
		if !e.failed() {
			ready = append(ready, e)
		}
	}
	if len(ready) == 0 {
		// All in cooldown, so act as if none are.
		ready = c.endpoints
	}
	if len(ready) == 0 {
		return ErrNoEndpoints
	}

	var errs []error
	for _, e := range ready {
		start := time.Now()
		err := f(e.backend)
		elapsed := time.Since(start)
		e.record(err == nil || !isTransportError(err), elapsed)
		c.observe(method, e.url, elapsed, err)
		if err == nil {
			return nil
		}
		if !isTransportError(err) || ctx.Err() != nil {
			return err
		}
		e.setFailed(c.config.FailureCooldown)
		if c.config.Observer != nil {
			c.config.Observer.SetEndpointHealth(e.url, false)
		}
		c.logger.Warn("Endpoint failed",
			zap.String("method", method),
			zap.String("url", e.url),
			zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) observe(method, url string, elapsed time.Duration, err error) {
	if c.config.Observer == nil {
		return
	}
	// A missing receipt is the normal answer while polling.
	if errors.Is(err, ethereum.NotFound) {
		err = nil
	}
	c.config.Observer.ObserveRPC(method, url, elapsed, err)
}

func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (gas uint64, err error) {
	return gas, c.withOne(ctx, "eth_estimateGas", func(b Backend) error {
		gas, err = b.EstimateGas(ctx, call)
		return err
	})
}

func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) (res []byte, err error) {
	return res, c.withOne(ctx, "eth_call", func(b Backend) error {
		res, err = b.CallContract(ctx, call, blockNumber)
		return err
	})
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (nonce uint64, err error) {
	return nonce, c.withOne(ctx, "eth_getTransactionCount", func(b Backend) error {
		nonce, err = b.PendingNonceAt(ctx, account)
		return err
	})
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (tip *big.Int, err error) {
	return tip, c.withOne(ctx, "eth_maxPriorityFeePerGas", func(b Backend) error {
		tip, err = b.SuggestGasTipCap(ctx)
		return err
	})
}

func (c *Client) SuggestGasPrice(ctx context.Context) (price *big.Int, err error) {
	return price, c.withOne(ctx, "eth_gasPrice", func(b Backend) error {
		price, err = b.SuggestGasPrice(ctx)
		return err
	})
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (hdr *types.Header, err error) {
	return hdr, c.withOne(ctx, "eth_getBlockByNumber", func(b Backend) error {
		hdr, err = b.HeaderByNumber(ctx, number)
		return err
	})
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (bal *big.Int, err error) {
	return bal, c.withOne(ctx, "eth_getBalance", func(b Backend) error {
		bal, err = b.BalanceAt(ctx, account, blockNumber)
		return err
	})
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.withOne(ctx, "eth_sendRawTransaction", func(b Backend) error {
		return b.SendTransaction(ctx, tx)
	})
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (r *types.Receipt, err error) {
	return r, c.withOne(ctx, "eth_getTransactionReceipt", func(b Backend) error {
		r, err = b.TransactionReceipt(ctx, hash)
		return err
	})
}

// WaitForReceipt polls until hash is included in a block, which is one
// confirmation. Lookup errors are logged and retried; only ctx or the
// configured confirmation timeout end the wait.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	log := c.logger.With(zap.String("tx_hash", hash.Hex()))
	return backoff.Retry(ctx, func() (*types.Receipt, error) {
		r, err := c.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, ethereum.NotFound
		}
		return r, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.config.PollInterval)),
		backoff.WithMaxElapsedTime(c.config.ConfirmationTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			if errors.Is(err, ethereum.NotFound) {
				return
			}
			log.Warn("Receipt lookup failed", zap.Duration("retry_in", next), zap.Error(err))
		}),
	)
}

// Stats reports per-endpoint health.
func (c *Client) Stats() []EndpointStats {
	out := make([]EndpointStats, 0, len(c.endpoints))
	for _, e := range c.endpoints {
		out = append(out, e.stats())
	}
	return out
}

// EndpointStats is a snapshot of one endpoint's health.
type EndpointStats struct {
	URL          string
	SuccessCount uint64
	ErrorCount   uint64
	AvgLatency   time.Duration
	Failed       bool
}

type endpoint struct {
	url     string
	backend Backend

	mu           sync.RWMutex
	failedUntil  time.Time
	successCount uint64
	errorCount   uint64
	latency      time.Duration
}

func (e *endpoint) setFailed(cooldown time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedUntil = time.Now().Add(cooldown)
}

func (e *endpoint) failed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return time.Now().Before(e.failedUntil)
}

func (e *endpoint) record(success bool, latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if success {
		e.successCount++
	} else {
		e.errorCount++
	}
	if e.latency == 0 {
		e.latency = latency
	} else {
		e.latency = (e.latency + latency) / 2
	}
}

func (e *endpoint) stats() EndpointStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EndpointStats{
		URL:          e.url,
		SuccessCount: e.successCount,
		ErrorCount:   e.errorCount,
		AvgLatency:   e.latency,
		Failed:       time.Now().Before(e.failedUntil),
	}
}
