// Package main runs the Valence service: the HTTP API, the WebSocket event
// stream, and the scheduled split/forward runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/orbitearn/valence-protocol/internal/chain"
	"github.com/orbitearn/valence-protocol/internal/domain"
	"github.com/orbitearn/valence-protocol/internal/forwarder"
	"github.com/orbitearn/valence-protocol/internal/observability"
	"github.com/orbitearn/valence-protocol/internal/position"
	"github.com/orbitearn/valence-protocol/internal/server"
	"github.com/orbitearn/valence-protocol/internal/splitter"
	"github.com/orbitearn/valence-protocol/internal/storage"
	chstore "github.com/orbitearn/valence-protocol/internal/storage/clickhouse"
	"github.com/orbitearn/valence-protocol/internal/storage/memory"
	"github.com/orbitearn/valence-protocol/internal/storage/migrations"
	pgstore "github.com/orbitearn/valence-protocol/internal/storage/postgres"
	"github.com/orbitearn/valence-protocol/internal/stream"
)

func main() {
	// Load .env file if exists; system env vars win.
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("NODE_RPC_ENDPOINT"), "Node JSON-RPC endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and a static demo chain")
	owner := flag.String("owner", os.Getenv("OWNER_ADDRESS"), "Owner address (base58)")
	processor := flag.String("processor", os.Getenv("PROCESSOR_ADDRESS"), "Processor address (base58)")
	splitLibrary := flag.String("split-library", os.Getenv("SPLIT_LIBRARY_ADDRESS"), "Splitter library address (base58)")
	forwardLibrary := flag.String("forward-library", os.Getenv("FORWARD_LIBRARY_ADDRESS"), "Forwarder library address (base58)")
	positionLibrary := flag.String("position-library", os.Getenv("POSITION_LIBRARY_ADDRESS"), "Position manager library address (base58)")
	lendingProgram := flag.String("lending-program", os.Getenv("LENDING_PROGRAM"), "Lending venue program address (empty disables the venue)")
	vaultProgram := flag.String("vault-program", os.Getenv("VAULT_PROGRAM"), "Vault venue program address (empty disables the venue)")
	fixedTermProgram := flag.String("fixed-term-program", os.Getenv("FIXED_TERM_PROGRAM"), "Fixed-term venue program address (empty disables the venue)")
	splitInterval := flag.Duration("split-interval", 0, "Scheduled split interval (0 disables)")
	forwardInterval := flag.Duration("forward-interval", 0, "Scheduled forward interval (0 disables)")
	pretty := flag.Bool("log-pretty", false, "Human-readable log output")
	flag.Parse()

	logger := newLogger(*pretty)

	// Validate required flags
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal().Msg("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	if !*useMemory && *rpcEndpoint == "" {
		logger.Fatal().Msg("--rpc-endpoint is required (use --use-memory for the static demo chain)")
	}

	// Role and library addresses. Memory mode generates what was not given,
	// so a bare --use-memory run works out of the box.
	ownerAddr := resolveAddress(logger, *owner, "owner", *useMemory)
	processorAddr := resolveAddress(logger, *processor, "processor", *useMemory)
	splitLibAddr := resolveAddress(logger, *splitLibrary, "split-library", *useMemory)
	forwardLibAddr := resolveAddress(logger, *forwardLibrary, "forward-library", *useMemory)
	positionLibAddr := resolveAddress(logger, *positionLibrary, "position-library", *useMemory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatal().Err(err).Msg("create stores")
	}
	defer cleanup()

	// Chain access: live node or the static demo chain
	var (
		code   chain.CodeChecker
		ratios chain.RatioSource
	)
	if *rpcEndpoint != "" {
		client := chain.NewHTTPClient(*rpcEndpoint)
		code, ratios = client, client
	} else {
		static := chain.NewStatic()
		code, ratios = static, static
		logger.Warn().Msg("no rpc endpoint configured, dynamic-ratio policies will not validate")
	}

	metrics := observability.NewMetrics("valence")

	hub := stream.NewHub(stream.Options{
		Logger:  logger.With().Str("component", "stream").Logger(),
		Metrics: metrics,
	})
	defer hub.Close()

	splitEngine := splitter.New(splitter.Options{
		Logger:    logger.With().Str("component", "splitter").Logger(),
		Library:   splitLibAddr,
		Owner:     ownerAddr,
		Processor: processorAddr,
		Ledger:    stores.ledger,
		Policies:  stores.policies,
		Code:      code,
		Ratios:    ratios,
		Events:    stores.events,
		Metrics:   metrics,
		Publisher: hub,
	})

	fwdEngine := forwarder.New(forwarder.Options{
		Logger:    logger.With().Str("component", "forwarder").Logger(),
		Library:   forwardLibAddr,
		Owner:     ownerAddr,
		Processor: processorAddr,
		Ledger:    stores.ledger,
		Policies:  stores.policies,
		Events:    stores.events,
		Metrics:   metrics,
		Publisher: hub,
	})

	adapters, err := buildAdapters(*lendingProgram, *vaultProgram, *fixedTermProgram)
	if err != nil {
		logger.Fatal().Err(err).Msg("build venue adapters")
	}
	registry := position.NewRegistry(position.Options{
		Logger:    logger.With().Str("component", "position").Logger(),
		Library:   positionLibAddr,
		Processor: processorAddr,
		Ledger:    stores.ledger,
		Metrics:   metrics,
		Adapters:  adapters,
	})
	if err := ensureEscrowAccounts(ctx, stores.ledger, registry, ownerAddr, positionLibAddr); err != nil {
		logger.Fatal().Err(err).Msg("provision escrow accounts")
	}

	srv := server.New(server.Options{
		Logger:    logger.With().Str("component", "server").Logger(),
		Owner:     ownerAddr,
		Processor: processorAddr,
		Splitter:  splitEngine,
		Forwarder: fwdEngine,
		Positions: registry,
		Ledger:    stores.ledger,
		Policies:  stores.policies,
		Hub:       hub,
		Metrics:   metrics,
	})

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("received signal, initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Error().Str("signal", sig.String()).Msg("received second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	errCh := make(chan error, 3)

	go func() {
		logger.Info().Str("addr", *listenAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if *splitInterval > 0 {
		go func() {
			if err := srv.RunSplitScheduler(ctx, *splitInterval); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("split scheduler: %w", err)
			}
		}()
	}
	if *forwardInterval > 0 {
		go func() {
			if err := srv.RunForwardScheduler(ctx, *forwardInterval); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("forward scheduler: %w", err)
			}
		}()
	}

	// Wait for cancellation or component failure
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
	hub.Close()
	done <- runErr

	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("server error")
	}
	logger.Info().Msg("shutdown complete")
}

// appStores holds the storage implementations behind the service.
type appStores struct {
	ledger   storage.LedgerStore
	policies storage.PolicyStore
	events   storage.EventStore
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*appStores, func(), error) {
	if useMemory {
		stores := &appStores{
			ledger:   memory.NewLedgerStore(),
			policies: memory.NewPolicyStore(),
			events:   memory.NewEventStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL: accounts, balances, policies
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}

	// ClickHouse: run history. Migrations also ensure the database exists.
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
	}

	stores := &appStores{
		ledger:   pgstore.NewLedgerStore(pool),
		policies: pgstore.NewPolicyStore(pool),
		events:   chstore.NewEventStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// buildAdapters constructs one adapter per configured venue program.
func buildAdapters(lending, vault, fixedTerm string) ([]position.Adapter, error) {
	var adapters []position.Adapter

	if lending != "" {
		program, err := domain.ParseAddress(lending)
		if err != nil {
			return nil, fmt.Errorf("parse lending program: %w", err)
		}
		a, err := position.NewLendingAdapter(program)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if vault != "" {
		program, err := domain.ParseAddress(vault)
		if err != nil {
			return nil, fmt.Errorf("parse vault program: %w", err)
		}
		a, err := position.NewVaultAdapter(program)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if fixedTerm != "" {
		program, err := domain.ParseAddress(fixedTerm)
		if err != nil {
			return nil, fmt.Errorf("parse fixed-term program: %w", err)
		}
		a, err := position.NewFixedTermAdapter(program)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	return adapters, nil
}

// ensureEscrowAccounts provisions each venue's escrow account and grants the
// position library spend authority. Safe to run on every boot: existing
// accounts are kept and approvals are idempotent.
func ensureEscrowAccounts(ctx context.Context, ledger storage.LedgerStore, registry *position.Registry, owner, library domain.Address) error {
	for venue, escrow := range registry.Escrows() {
		err := ledger.CreateAccount(ctx, &domain.Account{
			Address:   escrow,
			Owner:     owner,
			CreatedAt: time.Now().UnixMilli(),
		})
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("create %s escrow: %w", venue, err)
		}
		if err := ledger.ApproveLibrary(ctx, escrow, library); err != nil {
			return fmt.Errorf("approve %s escrow: %w", venue, err)
		}
	}
	return nil
}

// resolveAddress parses a base58 address flag. Memory mode generates a fresh
// address when the flag is unset and logs it so API calls can use it.
func resolveAddress(logger zerolog.Logger, value, name string, generateOK bool) domain.Address {
	if value == "" {
		if !generateOK {
			logger.Fatal().Msgf("--%s is required", name)
		}
		addr, err := domain.NewAddress()
		if err != nil {
			logger.Fatal().Err(err).Msgf("generate %s address", name)
		}
		logger.Info().Str("address", addr.String()).Msgf("generated demo %s address", name)
		return addr
	}
	addr, err := domain.ParseAddress(value)
	if err != nil {
		logger.Fatal().Err(err).Msgf("parse --%s", name)
	}
	return addr
}

func newLogger(pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
