package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldnote/internal/adapter/directory"
	"fieldnote/internal/adapter/llm"
	"fieldnote/internal/adapter/queue"
	"fieldnote/internal/adapter/storage"
	"fieldnote/internal/adapter/webhook"
	"fieldnote/internal/adapter/whatsapp"
	"fieldnote/internal/api"
	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
	"fieldnote/internal/infra/logger"
	"fieldnote/internal/infra/tracer"
	"fieldnote/internal/usecase"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "--help", "-h", "help":
		showUsage()
		return
	case "worker", "webhook", "dataapi", "lookup":
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'fieldnote --help' for usage information.\n", cmd)
		os.Exit(1)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	_ = fs.Parse(os.Args[2:])

	if err := run(cmd, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`fieldnote - WhatsApp field-note ingestion pipeline

USAGE:
    fieldnote COMMAND [FLAGS]

COMMANDS:
    worker      Consume queued messages and run the processing pipeline
    webhook     Serve the inbound WhatsApp webhook edge
    dataapi     Serve the read-side files API
    lookup      Serve the customer lookup service

FLAGS:
    -config PATH    Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: FIELDNOTE_* variables override config`)
}

func run(cmd, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	log.Info("starting", "service", cmd)

	switch cmd {
	case "worker":
		return runWorker(ctx, cfg, log)
	case "webhook":
		return runWebhook(ctx, cfg, log)
	case "dataapi":
		return runDataAPI(ctx, cfg, log)
	case "lookup":
		return runLookup(ctx, cfg, log)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

// newAnalyzer builds the configured provider wrapped in a circuit breaker.
func newAnalyzer(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (domain.Analyzer, error) {
	var inner domain.Analyzer
	var err error
	switch cfg.Provider {
	case "bedrock":
		inner, err = llm.NewBedrockAnalyzer(ctx, cfg, log)
	default:
		inner, err = llm.NewOpenAIClient(cfg, log)
	}
	if err != nil {
		return nil, err
	}
	return llm.NewBreakerAnalyzer(inner, cfg.Breaker, log), nil
}

func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := storage.NewS3Store(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	q, err := queue.NewSQSQueue(ctx, cfg.Queue, log)
	if err != nil {
		return err
	}
	resolver, err := directory.NewLambdaResolver(ctx, cfg.Lookup, log)
	if err != nil {
		return err
	}
	analyzer, err := newAnalyzer(ctx, cfg.LLM, log)
	if err != nil {
		return err
	}
	// Transcription is OpenAI-only; with bedrock as the analyzer provider
	// the OpenAI key still has to be set.
	transcriber, err := llm.NewOpenAIClient(cfg.LLM, log)
	if err != nil {
		return err
	}
	messenger := whatsapp.NewTwilioClient(cfg.Twilio, log)

	processor := usecase.NewProcessor(resolver, messenger, transcriber, analyzer, store, log)

	log.Info("worker polling", "queue", cfg.Queue.URL)
	for {
		records, err := q.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping")
				return nil
			}
			log.Error("receive failed", "error", err)
			continue
		}
		if len(records) == 0 {
			continue
		}

		batch := make([]usecase.QueueRecord, len(records))
		for i, r := range records {
			batch[i] = usecase.QueueRecord{MessageID: r.MessageID, Body: r.Body}
		}

		failed := processor.ProcessBatch(ctx, batch).FailedSet()
		for _, r := range records {
			if _, isFailed := failed[r.MessageID]; isFailed {
				continue // left on the queue for redelivery
			}
			if err := q.Delete(ctx, r.ReceiptHandle); err != nil {
				log.Error("delete failed", "queue_message_id", r.MessageID, "error", err)
			}
		}
	}
}

func runWebhook(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	q, err := queue.NewSQSQueue(ctx, cfg.Queue, log)
	if err != nil {
		return err
	}
	handler := webhook.NewHandler(cfg.Twilio, cfg.Webhook, q, log)

	mux := http.NewServeMux()
	mux.Handle("POST /webhook", handler)

	log.Info("webhook listening", "addr", cfg.Webhook.Addr)
	return serve(ctx, &http.Server{Addr: cfg.Webhook.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
}

func runDataAPI(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := storage.NewS3Store(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	return api.NewServer(store, cfg.DataAPI, log).Run(ctx)
}

func runLookup(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := directory.OpenSQLiteDirectory(cfg.Lookup.DBPath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Info("lookup listening", "addr", cfg.Lookup.Addr)
	return serve(ctx, &http.Server{
		Addr:              cfg.Lookup.Addr,
		Handler:           directory.NewHandler(store, log),
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
