package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/dmoniz22/biomedical-rag/features/ingestion"
	"github.com/dmoniz22/biomedical-rag/features/paper"
	"github.com/dmoniz22/biomedical-rag/features/search"
	"github.com/dmoniz22/biomedical-rag/internal/adapter/gemini"
	"github.com/dmoniz22/biomedical-rag/internal/adapter/pubmed"
	wstore "github.com/dmoniz22/biomedical-rag/internal/adapter/weaviate"
	"github.com/dmoniz22/biomedical-rag/internal/config"
	"github.com/dmoniz22/biomedical-rag/internal/logger"
	"github.com/dmoniz22/biomedical-rag/internal/middleware"
	"github.com/dmoniz22/biomedical-rag/internal/retrieval"
	"github.com/dmoniz22/biomedical-rag/internal/text"
	"github.com/dmoniz22/biomedical-rag/internal/vector"
	"github.com/dmoniz22/biomedical-rag/internal/worker"
)

func main() {
	// Structured logger with correlation ids from context
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Retry connection
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Weaviate Connection & Schema
	wClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		slog.Error("failed to create weaviate client", "error", err)
		os.Exit(1)
	}

	wAdapter := vector.NewSchemaAdapter(wClient)
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := vector.EnsureSchema(context.Background(), wAdapter); err == nil {
			slog.Info("weaviate schema ensured")
			break
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second)
	}
	if err := vector.EnsureSchema(context.Background(), wAdapter); err != nil {
		slog.Error("failed to ensure weaviate schema after retries", "error", err)
		os.Exit(1)
	}

	// 5. Adapters
	vecStore := wstore.NewStore(wClient)

	embedder, err := gemini.NewEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		slog.Error("failed to create gemini embedder", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	pubmedClient := pubmed.NewClient(cfg.PubMedBaseURL, cfg.PubMedAPIKey)

	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// NSQ creates topics lazily on publish, but consumers querying lookupd
	// fail 404 until the topic exists. Pre-create ours via the nsqd http api.
	nsqHTTPHost := cfg.NSQDHost
	if host, _, err := net.SplitHostPort(cfg.NSQDHost); err == nil && host != "" {
		nsqHTTPHost = host
	}
	go func() {
		time.Sleep(2 * time.Second)
		for _, topic := range []string{config.TopicJobStatus, config.TopicPaperReindex} {
			url := fmt.Sprintf("http://%s:4151/topic/create?topic=%s", nsqHTTPHost, topic)
			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				slog.Warn("failed to pre-create topic", "topic", topic, "error", err)
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == 200 {
				slog.Info("topic pre-created", "topic", topic)
			}
		}
	}()

	// 6. Services
	paperRepo := paper.NewPostgresRepo(db)
	jobRepo := ingestion.NewPostgresRepo(db)

	chunker := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	retrievalService := retrieval.NewService(embedder, vecStore, paperRepo, chunker,
		cfg.EmbeddingModel, cfg.TopKResults, cfg.MinConfidenceScore)

	dedup := ingestion.NewDuplicateDetector(paperRepo, cfg.TitleFingerprintDedup)
	ingestionService := ingestion.NewService(jobRepo, paperRepo, pubmedClient, retrievalService, dedup, nsqProducer,
		ingestion.Options{
			BatchSize:           cfg.BatchSize,
			BatchPause:          time.Duration(cfg.BatchPauseMS) * time.Millisecond,
			MaxDocumentsPerArea: cfg.MaxDocumentsPerArea,
			DefaultQualityScore: cfg.DefaultQualityScore,
			StrictCancellation:  cfg.StrictCancellation,
		})

	// 7. Reindex Worker
	if cfg.EnableReindexWorker {
		consumer, err := nsq.NewConsumer(config.TopicPaperReindex, "reindex-worker", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create reindex consumer", "error", err)
			os.Exit(1)
		}
		consumer.AddHandler(worker.NewReindexConsumer(paperRepo, retrievalService))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect reindex consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
		slog.Info("reindex worker started", "topic", config.TopicPaperReindex)
	}

	if !cfg.EnableAPI {
		slog.Info("api disabled, running worker only")
		select {}
	}

	// 8. Handlers & Routes
	ingestionHandler := ingestion.NewHandler(ingestionService)
	searchHandler := search.NewHandler(retrievalService)
	paperHandler := paper.NewHandler(paperRepo, nsqProducer)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	http.Handle("POST /ingestion/jobs", middleware.CorrelationID(enableCORS(ingestionHandler.Submit)))
	http.Handle("GET /ingestion/jobs/{id}", middleware.CorrelationID(enableCORS(ingestionHandler.Status)))
	http.Handle("POST /ingestion/jobs/{id}/pause", middleware.CorrelationID(enableCORS(ingestionHandler.Pause)))
	http.Handle("POST /ingestion/jobs/{id}/resume", middleware.CorrelationID(enableCORS(ingestionHandler.Resume)))
	http.Handle("POST /ingestion/jobs/{id}/cancel", middleware.CorrelationID(enableCORS(ingestionHandler.Cancel)))

	http.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	http.Handle("GET /papers/{id}", middleware.CorrelationID(enableCORS(paperHandler.Get)))
	http.Handle("POST /papers/{id}/reindex", middleware.CorrelationID(enableCORS(paperHandler.Reindex)))

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	slog.Info("server starting", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
