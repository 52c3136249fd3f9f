package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"

	clientconfig "github.com/lack0fcode/destructorbr/cmd/destructor-client/config"
	"github.com/lack0fcode/destructorbr/internal/assets"
	"github.com/lack0fcode/destructorbr/internal/burn"
	"github.com/lack0fcode/destructorbr/internal/chains"
	"github.com/lack0fcode/destructorbr/internal/constants"
	clienthttp "github.com/lack0fcode/destructorbr/internal/http"
	"github.com/lack0fcode/destructorbr/internal/indexer"
	"github.com/lack0fcode/destructorbr/internal/selection"
	"github.com/lack0fcode/destructorbr/internal/session"
	"github.com/lack0fcode/destructorbr/internal/signer"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	log.Info(constants.AppName,
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := clientconfig.Load()
	if err != nil {
		log.Fatal("failed to parse config", "error", err)
	}

	registry, err := chains.NewRegistry(cfg.Chains)
	if err != nil {
		log.Fatal("invalid chains config", "error", err)
	}
	for _, n := range registry.Networks() {
		if !registry.Supports(n.ChainID) {
			log.Warn("no indexer for network; set DESTRUCTOR_ALCHEMY_KEY", "network", n.Name, "chainId", n.ChainID)
		}
	}

	chainSvc, err := chains.NewService(chains.ServiceConfig{
		Registry:         registry,
		PreferredRPCName: cfg.Signer.PreferredRPC,
	})
	if err != nil {
		log.Fatal("failed to init chain service", "error", err)
	}
	defer func() {
		if err = chainSvc.Close(); err != nil {
			log.Error("failed to close chain clients", "error", err)
		}
	}()

	alchemy, err := indexer.NewAlchemy(registry,
		indexer.WithHTTPClient(&http.Client{Timeout: cfg.Indexer.RequestTimeout}),
		indexer.WithRetry(cfg.Indexer.RetryInitial, cfg.Indexer.RetryMax),
	)
	if err != nil {
		log.Fatal("failed to init indexer", "error", err)
	}
	defer alchemy.Close()

	var idx indexer.Client = alchemy
	if cfg.Indexer.MetadataSource == clientconfig.MetadataOnChain {
		idx = indexer.Composite{Client: alchemy, Metadata: indexer.NewOnChain(chainSvc)}
	}

	aggregator, err := assets.NewAggregator(registry, idx, assets.Options{
		IncludeNFTs:    cfg.Indexer.IncludeNFTs,
		MaxConcurrency: cfg.Indexer.MaxConcurrency,
		SpamKeywords:   cfg.Indexer.SpamKeywords,
	})
	if err != nil {
		log.Fatal("failed to init asset aggregator", "error", err)
	}

	guard := session.NewGuard(registry)
	orchestrator, err := burn.NewOrchestrator(burn.Config{
		Proxy:    cfg.ProxyAddress(),
		Gate:     guard,
		Explorer: registry,
		KeepJobs: cfg.Burner.KeepJobs,
	})
	if err != nil {
		log.Fatal("failed to init burn orchestrator", "error", err)
	}

	opts := clienthttp.Options{
		Guard:          guard,
		Selection:      selection.New(),
		Assets:         aggregator,
		Burner:         orchestrator,
		Registry:       registry,
		AllowedOrigins: cfg.ClientSettings.AllowedOrigins,
		IncludeNFTs:    cfg.Indexer.IncludeNFTs,
	}
	if cfg.Signer.Enabled {
		local, err := setupSigner(cfg, chainSvc)
		if err != nil {
			log.Error("wallet setup failed", "error", err)
			return
		}
		opts.Signer = local
		log.Info("local wallet unlocked", "address", local.Address().Hex())
	}

	handler, err := clienthttp.NewServer(ctx, opts)
	if err != nil {
		log.Error("failed to init HTTP server", "error", err)
		return
	}

	addr := net.JoinHostPort(cfg.ClientSettings.LocalHost, cfg.ClientSettings.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	} else {
		log.Info("HTTP server gracefully stopped")
	}
}

// setupSigner unlocks (or creates) the local wallet. DESTRUCTOR_WALLET_PASSWORD skips the prompt.
func setupSigner(cfg *clientconfig.Config, chainSvc *chains.Service) (*signer.Local, error) {
	ks, err := signer.NewKeystore(cfg.Signer.WalletFile)
	if err != nil {
		return nil, err
	}

	pw := []byte(os.Getenv(constants.EnvPrefix + "_WALLET_PASSWORD"))
	if len(strings.TrimSpace(string(pw))) == 0 {
		label := "Wallet password: "
		if !ks.Exists() {
			label = "New wallet password: "
		}
		if pw, err = signer.PromptPassword(label); err != nil {
			return nil, err
		}
	}

	w, err := ks.LoadOrCreate(pw)
	if err != nil {
		return nil, err
	}

	var confirmer signer.Confirmer = signer.NewTerminalConfirmer(os.Stdin, os.Stdout)
	if cfg.Signer.Confirm == clientconfig.ConfirmAuto {
		confirmer = signer.AutoConfirm{}
	}

	dial := func(ctx context.Context, chainID uint64) (signer.Backend, error) {
		c, err := chainSvc.Client(ctx, chainID)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return signer.NewLocal(w, dial, confirmer,
		signer.WithPolling(cfg.Burner.ReceiptPollInitial, cfg.Burner.ReceiptPollStep, cfg.Burner.ReceiptPollMax))
}
