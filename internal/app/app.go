// Package app wires configuration, chain access, the signer and the
// transaction pipeline into one runnable unit for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/blockchain/evm"
	"github.com/willwe-xyz/willwe-app/internal/chain"
	"github.com/willwe-xyz/willwe-app/internal/config"
	"github.com/willwe-xyz/willwe-app/internal/events"
	"github.com/willwe-xyz/willwe-app/internal/export"
	"github.com/willwe-xyz/willwe-app/internal/notify"
	"github.com/willwe-xyz/willwe-app/internal/operations"
	"github.com/willwe-xyz/willwe-app/internal/storage"
	"github.com/willwe-xyz/willwe-app/internal/storage/postgres"
	"github.com/willwe-xyz/willwe-app/internal/transaction"
	"github.com/willwe-xyz/willwe-app/internal/ui"
	"github.com/willwe-xyz/willwe-app/internal/utils/logger"
	"github.com/willwe-xyz/willwe-app/internal/utils/metrics"
	"github.com/willwe-xyz/willwe-app/internal/wallet"
)

var (
	ErrNoWallet = errors.New("no wallet selected")
	ErrNoRPC    = errors.New("no RPC endpoints configured")
)

const shutdownTimeout = 10 * time.Second

// Options are the per-invocation overrides the CLI collects from flags.
type Options struct {
	ConfigPath    string
	ChainID       uint64
	WalletName    string
	AutoApprove   bool
	TUI           bool
	GasMultiplier float64
	GasLimit      uint64

	In  io.Reader
	Out io.Writer
}

// App owns every long-lived component. Build it with New, attach a chain
// with Connect and release it with Close.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *chain.Registry
	Bus      *events.Bus
	Reporter *notify.Reporter
	Store    storage.Storage
	Exporter *export.HistoryExporter

	Chain  chain.Chain
	Client *evm.Client
	Tokens *evm.TokenReader
	Wallet *wallet.Wallet
	Ops    *operations.Clients

	opts      Options
	session   *ui.Session
	promReg   *prometheus.Registry
	txMetrics *transaction.Metrics
	rpcStats  *metrics.Collector
	server    *http.Server
}

// New loads configuration and starts the chain-independent components:
// logging, the event bus, notification sinks, history storage and metrics.
func New(opts Options) (*App, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.GasMultiplier == 0 {
		opts.GasMultiplier = cfg.GasMultiplier
	}
	if opts.GasMultiplier < 1 {
		return nil, fmt.Errorf("gas multiplier %.2f is below 1", opts.GasMultiplier)
	}
	if opts.TUI && !opts.AutoApprove {
		return nil, errors.New("the terminal UI owns stdin, run it with --yes")
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	logCfg.Console = cfg.DebugLogging && !opts.TUI
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Bus:      events.NewBus(log.Logger, cfg.EventBuffer),
		Exporter: export.NewHistoryExporter(log.Named("export")),
		opts:     opts,
		promReg:  prometheus.NewRegistry(),
	}
	a.txMetrics = transaction.NewMetrics(a.promReg)
	a.rpcStats = metrics.NewCollector(a.promReg)

	var display notify.Sink = ui.NewTerminalSink(opts.Out)
	if opts.TUI {
		a.session = ui.NewSession(log.Logger)
		display = a.session
	}
	a.Reporter = notify.NewReporter(notify.MultiSink{
		notify.NewLogSink(log.Logger),
		notify.NewBusSink(a.Bus, log.Logger),
		display,
	}, log.Logger)

	if err := a.openStore(); err != nil {
		a.Logger.Warn("Transaction history disabled", zap.Error(err))
	}
	a.startMetricsServer()

	return a, nil
}

func (a *App) openStore() error {
	var (
		store *postgres.Store
		err   error
	)
	historyLog := a.Logger.WithComponent("history")
	switch {
	case a.Config.PostgresURL != "":
		store, err = postgres.NewStorage(a.Config.PostgresURL, historyLog)
	case a.Config.HistoryFile != "":
		store, err = postgres.NewSQLiteStorage(a.Config.HistoryFile, historyLog)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := store.RunMigrations(ctx); err != nil {
		_ = store.Close()
		return err
	}

	a.Store = store
	storage.NewRecorder(store, historyLog).Subscribe(a.Bus)
	return nil
}

func (a *App) startMetricsServer() {
	if a.Config.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{}))
	a.server = &http.Server{
		Addr:              a.Config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	a.Logger.Info("Serving metrics", zap.String("addr", a.Config.MetricsAddr))
}

// Connect dials the selected chain, loads the signer and builds the
// operation clients.
func (a *App) Connect(ctx context.Context) error {
	chainID := a.opts.ChainID
	if chainID == 0 {
		chainID = a.Config.DefaultChainID
	}
	ch, err := a.Registry.Get(chainID)
	if err != nil {
		return err
	}
	if len(ch.RPCList) == 0 {
		return fmt.Errorf("chain %d: %w", chainID, ErrNoRPC)
	}

	w, err := a.selectWallet()
	if err != nil {
		return err
	}
	if a.opts.AutoApprove {
		w = w.WithConfirmer(wallet.AutoApprove)
	} else {
		w = w.WithConfirmer(wallet.PromptConfirmer(a.opts.In, a.opts.Out))
	}

	chainLog := a.Logger.WithChain(ch.ID, ch.Name)
	client, err := evm.Dial(ctx, ch.ID, ch.RPCList, chainLog, evm.Config{
		PollInterval:        a.Config.ReceiptPollInterval(),
		ConfirmationTimeout: a.Config.ConfirmationTimeout(),
		DialAttempts:        uint(a.Config.DialAttempts),
		Observer:            a.rpcStats,
	})
	if err != nil {
		return err
	}

	a.Chain = ch
	a.Client = client
	a.Tokens = evm.NewTokenReader(client)
	a.Wallet = w
	a.Ops = operations.New(operations.Config{
		Chain:     ch,
		Writer:    client,
		Estimator: transaction.NewGasEstimator(client, chainLog, a.txMetrics),
		Gate:      transaction.NewApprovalGate(a.Tokens, chainLog),
		Signer:    w,
		Executor: transaction.ExecutorConfig{
			Waiter:           client,
			Notifier:         a.Reporter,
			Linker:           a.Registry,
			Publisher:        a.Bus,
			Metrics:          a.txMetrics,
			Logger:           chainLog,
			TerminalDuration: a.Config.NotificationDuration(),
		},
		Logger: chainLog,
	})

	a.Logger.Info("Connected",
		zap.Uint64("chain_id", ch.ID),
		zap.String("chain", ch.Name),
		zap.String("account", w.Address().Hex()))
	return nil
}

func (a *App) selectWallet() (*wallet.Wallet, error) {
	wallets, err := wallet.LoadWallets(a.Config.WalletsFile)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}

	name := a.opts.WalletName
	if name == "" {
		name = a.Config.DefaultWallet
	}
	if name != "" {
		w, ok := wallets[name]
		if !ok {
			return nil, fmt.Errorf("wallet %q: %w", name, ErrNoWallet)
		}
		return w, nil
	}
	if len(wallets) == 1 {
		for _, w := range wallets {
			return w, nil
		}
	}

	names := make([]string, 0, len(wallets))
	for n := range wallets {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("%w: pick one of %v with --wallet", ErrNoWallet, names)
}

// TxOptions builds Execute options with the invocation's gas overrides.
func (a *App) TxOptions(success string) *transaction.Options {
	return &transaction.Options{
		SuccessMessage:     success,
		GasLimitMultiplier: a.opts.GasMultiplier,
		GasLimit:           a.opts.GasLimit,
	}
}

// Run executes work, under the toast view when the TUI is enabled. The
// returned summary is printed once work succeeds.
func (a *App) Run(ctx context.Context, work func(ctx context.Context) (string, error)) error {
	if a.session != nil {
		return a.session.Run(ctx, work)
	}
	summary, err := work(ctx)
	if err != nil {
		return err
	}
	if summary != "" {
		fmt.Fprintln(a.opts.Out, summary)
	}
	return nil
}

// Close stops notifications, drains pending events into history and
// releases connections.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	a.Reporter.Shutdown()
	if err := a.Bus.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("event bus: %w", err))
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history store: %w", err))
		}
	}
	if a.Client != nil {
		a.Client.Close()
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := a.Logger.Sync(); err != nil && !os.IsNotExist(err) {
		a.Logger.Debug("Logger sync failed", zap.Error(err))
	}
	return errors.Join(errs...)
}
