package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/ai"
	"github.com/xxxsen/mrecall/internal/chunker"
	"github.com/xxxsen/mrecall/internal/config"
	"github.com/xxxsen/mrecall/internal/db"
	"github.com/xxxsen/mrecall/internal/extract"
	"github.com/xxxsen/mrecall/internal/filestore"
	"github.com/xxxsen/mrecall/internal/handler"
	"github.com/xxxsen/mrecall/internal/ingest"
	"github.com/xxxsen/mrecall/internal/job"
	"github.com/xxxsen/mrecall/internal/middleware"
	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/queue"
	"github.com/xxxsen/mrecall/internal/repo"
	"github.com/xxxsen/mrecall/internal/schedule"
	"github.com/xxxsen/mrecall/internal/service"
)

type providers struct {
	embedder    *ai.BatchEmbedder
	generator   ai.IGenerator
	transcriber ai.ITranscriber
}

// optional turns a missing credential into an absent capability.
func optional[T any](kind string, v T, err error) (T, error) {
	var zero T
	if err == nil {
		return v, nil
	}
	if errors.Is(err, ai.ErrUnavailable) {
		logutil.GetLogger(context.Background()).Warn("model capability disabled",
			zap.String("capability", kind), zap.Error(err))
		return zero, nil
	}
	return zero, fmt.Errorf("init %s: %w", kind, err)
}

func buildProviders(cfg *config.Config) (*providers, error) {
	emb, err := ai.NewEmbedder(cfg.AI.Embedding.Provider, cfg.AI.Embedding.Model, cfg.AI.Embedding.Data)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	batched, err := ai.NewBatchEmbedder(emb, cfg.Ingest.EmbedBatchSize, cfg.Ingest.EmbedWorkers)
	if err != nil {
		return nil, err
	}
	p := &providers{embedder: batched}
	gen, err := ai.NewGenerator(cfg.AI.Generator.Provider, cfg.AI.Generator.Model, cfg.AI.Generator.Data)
	if p.generator, err = optional("generator", gen, err); err != nil {
		batched.Release()
		return nil, err
	}
	tr, err := ai.NewTranscriber(cfg.AI.Transcriber.Provider, cfg.AI.Transcriber.Model, cfg.AI.Transcriber.Data)
	if p.transcriber, err = optional("transcriber", tr, err); err != nil {
		batched.Release()
		return nil, err
	}
	logutil.GetLogger(context.Background()).Info("model providers ready",
		zap.String("embedding", cfg.AI.Embedding.Provider),
		zap.String("embedding_model", batched.ModelName()),
		zap.Bool("generator", p.generator != nil),
		zap.Bool("transcriber", p.transcriber != nil),
	)
	return p, nil
}

func buildPayloadStore(cfg *config.Config) (filestore.Store, error) {
	if cfg.PayloadStore != config.PayloadFileStore {
		return nil, nil
	}
	return filestore.New(cfg.FileStore)
}

func serve(cfg *config.Config, withHTTP bool) error {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()
	if err := db.ApplyMigrations(conn); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	files, err := buildPayloadStore(cfg)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	prov, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	defer prov.embedder.Release()

	store := repo.NewStore(conn)
	q := queue.New(repo.NewTaskRepo(conn))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := buildWorker(cfg, store, q, files, prov)
	if err != nil {
		return err
	}
	defer worker.Release()

	sched := schedule.NewCronScheduler()
	if err := sched.AddJob(job.NewQueuePollJob(worker), cfg.Queue.PollSpec); err != nil {
		return err
	}
	retention := time.Duration(cfg.Queue.DeadRetentionDays) * 24 * time.Hour
	if err := sched.AddJob(job.NewDeadTaskCleanupJob(q, retention), "@daily"); err != nil {
		return err
	}
	sched.Start(ctx)

	if withHTTP {
		if err := startHTTP(cfg, store, files, prov); err != nil {
			sched.Stop()
			return err
		}
	}

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("shutting down")
	sched.Stop()
	worker.Wait()
	return nil
}

func buildWorker(cfg *config.Config, store *repo.Store, q *queue.Queue, files filestore.Store, prov *providers) (*queue.Worker, error) {
	tokenizer, err := chunker.NewTiktoken(chunker.DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	payload := extract.NewPayloadLoader(files)
	extractors := extract.NewSet().
		Register(model.ArtifactTypeWeb, extract.NewWebExtractor(time.Duration(cfg.Ingest.FetchTimeout)*time.Second)).
		Register(model.ArtifactTypePDF, extract.NewPDFExtractor(payload)).
		Register(model.ArtifactTypeAudio, extract.NewAudioExtractor(payload, prov.transcriber)).
		Register(model.ArtifactTypeNote, extract.NewNoteExtractor())

	orch := ingest.NewOrchestrator(store, extractors, tokenizer, prov.embedder, ingest.Options{
		MaxAttempts: cfg.Ingest.MaxAttempts,
		BackoffUnit: time.Second,
		MaxBackoff:  time.Duration(cfg.Ingest.MaxBackoffSeconds) * time.Second,
		ChunkParams: cfg.Ingest.ChunkParams,
	})
	return queue.NewWorker(q, orch.HandleTask, cfg.Queue.Workers, time.Duration(cfg.Queue.LeaseSeconds)*time.Second)
}

func startHTTP(cfg *config.Config, store *repo.Store, files filestore.Store, prov *providers) error {
	var rerankGen ai.IGenerator
	if cfg.Rerank.Enabled {
		rerankGen = prov.generator
	}
	timeout := time.Duration(cfg.AI.Timeout) * time.Second
	reranker := ai.NewReranker(rerankGen, ai.RerankOptions{MaxContentChars: cfg.Rerank.MaxContentChars, Timeout: timeout})
	retrieval := service.NewRetrievalService(prov.embedder, store, reranker)
	chat := service.NewChatService(retrieval, ai.NewSynthesizer(prov.generator, timeout))
	intake := service.NewIntakeService(store, files)

	deps := handler.RouterDeps{
		Ingest:    handler.NewIngestHandler(intake, 0),
		Chat:      handler.NewChatHandler(chat, retrieval),
		JWTSecret: []byte(cfg.JWTSecret),
		RateLimit: time.Duration(cfg.RateLimitSeconds) * time.Second,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			group.GET("/health", handler.Health)
			handler.RegisterRoutes(group.Group("/api/v1"), deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening",
		zap.String("addr", addr), zap.String("payload_store", cfg.PayloadStore))
	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()
	return nil
}
