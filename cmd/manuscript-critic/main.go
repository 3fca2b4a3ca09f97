package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sciwrite/manuscript-critic/internal/analysis"
	"github.com/sciwrite/manuscript-critic/internal/config"
	"github.com/sciwrite/manuscript-critic/internal/httpapi"
	"github.com/sciwrite/manuscript-critic/internal/rules"
	"github.com/sciwrite/manuscript-critic/internal/store"
)

func main() {
	cfgFlag := flag.String("config", "", "path to YAML config file (env vars override)")
	flag.Parse()

	cfg, err := config.Load(*cfgFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st, err := store.New(filepath.Join(cfg.TmpDir, "manuscript-critic"))
	if err != nil {
		log.Fatalf("init artifact store: %v", err)
	}
	ledger, err := store.OpenLedger(filepath.Join(st.Root(), "submissions.db"))
	if err != nil {
		log.Fatalf("open submission ledger: %v", err)
	}
	defer ledger.Close()

	catalog, err := rules.Load()
	if err != nil {
		log.Fatalf("load rule catalog: %v", err)
	}

	var caller analysis.Caller
	if cfg.AnthropicAPIKey != "" {
		caller, err = analysis.NewAnthropicCaller(cfg.AnthropicAPIKey, cfg.Model)
		if err != nil {
			log.Fatalf("init oracle: %v", err)
		}
		log.Printf("analysis model: %s", cfg.Model)
	} else {
		caller = analysis.UnavailableCaller{}
		log.Printf("ANTHROPIC_API_KEY not set; running with deterministic fallback only")
	}
	pipeline := analysis.NewPipeline(
		analysis.NewStructureExtractor(caller),
		analysis.NewLLMEvaluator(caller, catalog),
		0,
	)

	server := httpapi.NewServer(pipeline, st, ledger, httpapi.Options{
		BaseURL:        cfg.BaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxChars:       cfg.MaxChars,
		ArtifactTTL:    cfg.ArtifactTTL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	purger := store.NewPurger(st, ledger, time.Minute)
	go purger.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("manuscript-critic listening on %s (artifact ttl %s)", cfg.Addr, cfg.ArtifactTTL)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
