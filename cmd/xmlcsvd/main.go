// Command xmlcsvd runs the XML to CSV conversion service: upload an XML
// document, poll the job, download the CSV archive and optionally land it in
// a database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xmlcsv/internal/config"
	"xmlcsv/internal/discover"
	"xmlcsv/internal/export"
	"xmlcsv/internal/job"
	"xmlcsv/internal/metrics"
	"xmlcsv/internal/metrics/datadog"
	"xmlcsv/internal/server"

	// register all storage backends; the config picks one at load time.
	_ "xmlcsv/internal/storage/all"
)

func main() {
	var (
		cfgPath  string
		validate bool
	)
	flag.StringVar(&cfgPath, "config", "configs/xmlcsvd.yaml", "service config YAML path")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.Parse()

	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("configuration is invalid: %v", err)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	var backend metrics.Backend = metrics.Nop{}
	switch cfg.Metrics.Backend {
	case "datadog":
		backend = datadog.New(context.Background(), logger, datadog.Options{
			Service: cfg.Metrics.Service,
			Tags:    cfg.Metrics.Tags,
		})
		defer backend.Close()
	case "", "none":
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", cfg.Metrics.Backend)
	}

	registry := job.NewRegistry()
	orch := &job.Orchestrator{
		Registry: registry,
		Logger:   logger,
		Metrics:  backend,
		TempDir:  cfg.Pipeline.TempDir,
		Discover: discover.Options{
			SampleCap: cfg.Pipeline.SampleCap,
			MaxDepth:  cfg.Pipeline.MaxDepth,
			MinRepeat: int64(cfg.Pipeline.MinRepeat),
		},
		CSV: export.CSVOptions{
			Delimiter: cfg.Pipeline.Delimiter(),
			QuoteAll:  cfg.Pipeline.CSVQuoteAll,
		},
	}
	srv := &server.Server{
		Registry:     registry,
		Orchestrator: orch,
		Logger:       logger,
		Metrics:      backend,
		TempDir:      cfg.Pipeline.TempDir,
		Database:     cfg.Database,
	}

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Printf("listening on %s", httpSrv.Addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalf("serve: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
