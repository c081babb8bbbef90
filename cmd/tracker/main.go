package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-position-tracker/internal/classifier"
	"solana-position-tracker/internal/config"
	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/ingestion"
	"solana-position-tracker/internal/lifecycle"
	"solana-position-tracker/internal/logging"
	"solana-position-tracker/internal/observability"
	"solana-position-tracker/internal/pricing"
	"solana-position-tracker/internal/solana"
)

// options holds the parsed command line.
type options struct {
	mode       string
	configPath string
	wallet     string
	wallets    string
	maxSigs    int
	delay      time.Duration
	before     string
	resume     bool
	useMemory  bool
	format     string

	position   string
	profit     string
	pnlPercent string
	note       string
	remove     bool

	rpcEndpoint string
	wsEndpoint  string
	postgresDSN string
	metricsAddr string
	logLevel    string
}

func parseFlags() *options {
	o := &options{}
	flag.StringVar(&o.mode, "mode", "sync", "Mode: sync, resync, report, override, clear or watch")
	flag.StringVar(&o.configPath, "config", "", "Config file (default ./tracker.yaml when present)")
	flag.StringVar(&o.wallet, "wallet", "", "Wallet address")
	flag.StringVar(&o.wallets, "wallets", "", "Comma-separated wallets to watch (watch mode)")
	flag.IntVar(&o.maxSigs, "max-signatures", 0, "Signatures to process (0 uses the configured default)")
	flag.DurationVar(&o.delay, "delay", 0, "Minimum delay between transaction fetches (0 uses the configured default)")
	flag.StringVar(&o.before, "before", "", "Only process signatures older than this one")
	flag.BoolVar(&o.resume, "resume", false, "Continue from the stored sync cursor")
	flag.BoolVar(&o.useMemory, "use-memory", false, "Use in-memory storage instead of the configured backend")
	flag.StringVar(&o.format, "format", "json", "Report output: json, markdown or csv")

	flag.StringVar(&o.position, "position", "", "Position id (override mode)")
	flag.StringVar(&o.profit, "profit", "", "Realized profit in USD (override mode)")
	flag.StringVar(&o.pnlPercent, "pnl-percent", "", "Realized P&L percent (override mode, optional)")
	flag.StringVar(&o.note, "note", "", "Free-form note (override mode)")
	flag.BoolVar(&o.remove, "delete", false, "Delete the override instead of setting it")

	flag.StringVar(&o.rpcEndpoint, "rpc-endpoint", "", "Solana RPC HTTP endpoint (overrides config)")
	flag.StringVar(&o.wsEndpoint, "ws-endpoint", "", "Solana WebSocket endpoint (overrides config)")
	flag.StringVar(&o.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "Prometheus metrics HTTP address (overrides config; \"off\" disables)")
	flag.StringVar(&o.logLevel, "log-level", "", "Log level (overrides config)")

	flag.Parse()
	return o
}

// apply copies explicitly set flags over the loaded configuration.
func (o *options) apply(cfg *config.Config) {
	if o.rpcEndpoint != "" {
		cfg.RPC.HTTPEndpoint = o.rpcEndpoint
	}
	if o.wsEndpoint != "" {
		cfg.RPC.WSEndpoint = o.wsEndpoint
	}
	if o.postgresDSN != "" {
		cfg.Storage.PostgresDSN = o.postgresDSN
	}
	if o.metricsAddr == "off" {
		cfg.Metrics.Addr = ""
	} else if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.useMemory {
		cfg.Storage.Backend = config.BackendMemory
	}
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config:\n%v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	if cfg.Metrics.Addr != "" {
		srv := app.metricsServer(cfg.Metrics.Addr)
		go func() {
			logger.Info("starting metrics server", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	switch opts.mode {
	case "sync":
		err = app.runSync(ctx, opts, false)
	case "resync":
		err = app.runSync(ctx, opts, true)
	case "report":
		err = app.runReport(ctx, opts)
	case "override":
		err = app.runOverride(ctx, opts)
	case "clear":
		err = app.runClear(ctx, opts)
	case "watch":
		err = app.runWatch(ctx, opts, cfg)
	default:
		err = fmt.Errorf("unknown mode %q", opts.mode)
	}

	done <- err
	cancel()
	app.close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", zap.String("mode", opts.mode), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// app wires the tracker components.
type app struct {
	logger  *zap.Logger
	rpc     *solana.HTTPClient
	stores  *stores
	syncer  *ingestion.Syncer
	service *lifecycle.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	rpc := solana.NewHTTPClient(cfg.RPC.HTTPEndpoint,
		solana.WithTimeout(cfg.RPC.Timeout),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
		solana.WithLogger(logger))

	st, err := openStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	prices, err := newPriceLookup(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	syncer := ingestion.NewSyncer(ingestion.SyncerOptions{
		RPC:        rpc,
		Events:     st.events,
		Cursors:    st.cursors,
		Classifier: classifier.New(classifier.DefaultConfig()),
		Prices:     prices,
		Limits: ingestion.Limits{
			DefaultMaxSignatures: cfg.Sync.DefaultMaxSignatures,
			HardMaxSignatures:    cfg.Sync.HardMaxSignatures,
			DefaultDelay:         cfg.Sync.DefaultDelay,
			MinDelay:             cfg.Sync.MinDelay,
			Concurrency:          cfg.Sync.Concurrency,
			PageSize:             cfg.Sync.PageSize,
		},
		Logger: logger,
	})

	service := lifecycle.NewService(lifecycle.ServiceOptions{
		Events:    st.events,
		Overrides: st.overrides,
		Cursors:   st.cursors,
		Logger:    logger,
	})

	return &app{logger: logger, rpc: rpc, stores: st, syncer: syncer, service: service}, nil
}

func newPriceLookup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pricing.Lookup, error) {
	opts := pricing.LookupOptions{
		DefaultRate: decimal.NewFromFloat(cfg.Pricing.DefaultSOLUSD),
		CacheTTL:    cfg.Redis.PriceTTL,
		Logger:      logger,
	}
	if cfg.Pricing.Endpoint != "" {
		opts.Source = pricing.NewHTTPSource(cfg.Pricing.Endpoint, cfg.Pricing.Timeout)
	}

	if cfg.Redis.Addr != "" {
		client, err := pricing.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		opts.Cache = pricing.NewRedisCache(client, cfg.Redis.PriceKey)
	} else {
		opts.Cache = pricing.NewMemoryCache()
	}

	return pricing.NewLookup(opts), nil
}

func (a *app) close() {
	a.stores.Close()
}

func (a *app) metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := a.stores.events.Ping(ctx); err != nil {
			http.Error(w, "store: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if _, err := a.rpc.GetSlot(ctx); err != nil {
			http.Error(w, "rpc: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func (a *app) runSync(ctx context.Context, opts *options, resync bool) error {
	req := ingestion.SyncRequest{
		Wallet:            opts.wallet,
		MaxSignatures:     opts.maxSigs,
		InterRequestDelay: opts.delay,
		Before:            opts.before,
		Resume:            opts.resume,
	}

	var (
		stats *ingestion.SyncStats
		err   error
	)
	if resync {
		stats, err = a.syncer.Resync(ctx, req)
	} else {
		stats, err = a.syncer.Sync(ctx, req)
	}
	if stats != nil {
		if perr := printJSON(stats); perr != nil {
			return perr
		}
	}
	return err
}

func (a *app) runReport(ctx context.Context, opts *options) error {
	report, err := a.service.Report(ctx, opts.wallet)
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		return printJSON(report)
	case "markdown", "md":
		fmt.Print(lifecycle.RenderMarkdown(report))
		return nil
	case "csv":
		out, err := lifecycle.RenderCSV(report)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	default:
		return fmt.Errorf("unknown report format %q", opts.format)
	}
}

func (a *app) runOverride(ctx context.Context, opts *options) error {
	if opts.remove {
		if err := a.service.DeleteOverride(ctx, opts.wallet, opts.position); err != nil {
			return err
		}
		a.logger.Info("override deleted", zap.String("position_id", opts.position))
		return nil
	}

	profit, err := decimal.NewFromString(opts.profit)
	if err != nil {
		return fmt.Errorf("--profit: %w", err)
	}
	o := &domain.Override{
		WalletAddress: opts.wallet,
		PositionID:    opts.position,
		ProfitUSD:     profit,
		Note:          opts.note,
	}
	if opts.pnlPercent != "" {
		pct, err := decimal.NewFromString(opts.pnlPercent)
		if err != nil {
			return fmt.Errorf("--pnl-percent: %w", err)
		}
		o.PnLPercent = &pct
	}
	return a.service.SetOverride(ctx, o)
}

func (a *app) runClear(ctx context.Context, opts *options) error {
	n, err := a.service.Clear(ctx, opts.wallet)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"wallet": opts.wallet, "deleted": n})
}

func (a *app) runWatch(ctx context.Context, opts *options, cfg *config.Config) error {
	wallets := splitList(opts.wallets)
	if opts.wallet != "" {
		wallets = append(wallets, opts.wallet)
	}
	if len(wallets) == 0 {
		return errors.New("watch mode needs --wallet or --wallets")
	}
	if cfg.RPC.WSEndpoint == "" {
		return errors.New("watch mode needs rpc.ws_endpoint")
	}

	subscriber := solana.NewLogsSubscriber(cfg.RPC.WSEndpoint, nil, a.logger)
	watcher := ingestion.NewWatcher(ingestion.WatcherOptions{
		Source:        subscriber,
		Syncer:        a.syncer,
		Debounce:      cfg.Watch.Debounce,
		MaxSignatures: cfg.Watch.MaxSignatures,
		Logger:        a.logger,
	})
	if err := watcher.Watch(wallets...); err != nil {
		return err
	}

	// Catch up once before following live activity.
	for _, w := range wallets {
		if _, err := a.syncer.Sync(ctx, ingestion.SyncRequest{Wallet: w, Resume: true}); err != nil {
			a.logger.Warn("initial sync failed", zap.String("wallet", w), zap.Error(err))
		}
	}

	subErr := make(chan error, 1)
	go func() { subErr <- subscriber.Run(ctx) }()

	a.logger.Info("watching wallets", zap.Strings("wallets", wallets))
	err := watcher.Run(ctx)
	if serr := <-subErr; serr != nil && !errors.Is(serr, context.Canceled) {
		return serr
	}
	return err
}

func printJSON(v interface{}) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
