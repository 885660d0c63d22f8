// Package ingest drives one ingestion job from artifact to stored embeddings.
package ingest

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/ai"
	"github.com/xxxsen/mrecall/internal/chunker"
	"github.com/xxxsen/mrecall/internal/extract"
	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
	"github.com/xxxsen/mrecall/internal/queue"
)

// Store is the persistence the orchestrator needs; repo.Store implements it.
type Store interface {
	BeginAttempt(ctx context.Context, jobID string, maxAttempts int) (*model.IngestionJob, error)
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)
	CompleteJob(ctx context.Context, jobID string, doc *model.Document, chunks []*model.Chunk, embeddings []*model.Embedding) error
	MarkFailed(ctx context.Context, jobID, message string) error
}

type Options struct {
	MaxAttempts int
	// Backoff after attempt n is min(MaxBackoff, 2^n * BackoffUnit).
	BackoffUnit time.Duration
	MaxBackoff  time.Duration
	ChunkParams func(model.ArtifactType) chunker.Params
}

type Orchestrator struct {
	store     Store
	extractor extract.Extractor
	tokenizer chunker.Tokenizer
	embedder  ai.IEmbedder
	opts      Options
	newID     func() string
	now       func() time.Time
}

func NewOrchestrator(store Store, extractor extract.Extractor, tokenizer chunker.Tokenizer, embedder ai.IEmbedder, opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 60 * opts.BackoffUnit
	}
	if opts.ChunkParams == nil {
		opts.ChunkParams = chunker.DefaultParams
	}
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		tokenizer: tokenizer,
		embedder:  embedder,
		opts:      opts,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleTask adapts Run to the queue worker.
func (o *Orchestrator) HandleTask(ctx context.Context, task *model.Task) error {
	return o.Run(ctx, task.JobID)
}

// Backoff returns the delay before the retry that follows attempt n.
func (o *Orchestrator) Backoff(attempt int) time.Duration {
	if attempt > 30 {
		return o.opts.MaxBackoff
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * o.opts.BackoffUnit
	if d > o.opts.MaxBackoff {
		return o.opts.MaxBackoff
	}
	return d
}

// Run performs one attempt of the job. It returns nil when the job succeeded
// or needs no work, a *queue.RetryLater when a transient failure should be
// retried, and the failure itself when the job is terminally FAILED.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", jobID))
	job, err := o.store.BeginAttempt(ctx, jobID, o.opts.MaxAttempts)
	switch {
	case errors.Is(err, appErr.ErrNotFound):
		logger.Warn("job not found, skip")
		return nil
	case errors.Is(err, appErr.ErrAlreadyDone):
		logger.Info("job already succeeded, skip")
		return nil
	case errors.Is(err, appErr.ErrAttemptsExhausted):
		logger.Warn("job used all attempts, skip", zap.Int("attempts", job.Attempts))
		return nil
	case err != nil:
		if appErr.IsRetryable(err) {
			return &queue.RetryLater{Err: err, Delay: o.opts.MaxBackoff}
		}
		return err
	}
	logger = logger.With(zap.String("artifact_id", job.ArtifactID), zap.Int("attempt", job.Attempts))
	logger.Info("job running")

	chunks, err := o.process(ctx, job)
	if err == nil {
		logger.Info("job succeeded", zap.Int("chunks", chunks))
		return nil
	}
	return o.fail(ctx, logger, job, err)
}

func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, job *model.IngestionJob, cause error) error {
	if err := o.store.MarkFailed(context.WithoutCancel(ctx), job.ID, cause.Error()); err != nil {
		logger.Warn("record job failure failed", zap.Error(err))
	}
	if appErr.IsRetryable(cause) && job.Attempts < o.opts.MaxAttempts {
		delay := o.Backoff(job.Attempts)
		logger.Warn("job failed, retry scheduled", zap.Duration("delay", delay), zap.Error(cause))
		return &queue.RetryLater{Err: cause, Delay: delay}
	}
	logger.Error("job failed", zap.Error(cause))
	return cause
}

func (o *Orchestrator) process(ctx context.Context, job *model.IngestionJob) (int, error) {
	a, err := o.store.GetArtifact(ctx, job.ArtifactID)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return 0, appErr.ExtractionFailed("artifact "+job.ArtifactID+" not found", false, nil)
		}
		return 0, err
	}
	if err := checkArtifact(a); err != nil {
		return 0, err
	}
	res, err := o.extractor.Extract(ctx, a)
	if err != nil {
		return 0, err
	}
	now := o.now()
	doc := model.NewDocument(o.newID(), a, res.Title, now)

	windows, err := chunker.Windows(o.tokenizer, res.Text, o.opts.ChunkParams(a.Type))
	if err != nil {
		return 0, appErr.Configuration(err.Error())
	}
	if len(windows) == 0 {
		return 0, appErr.ChunkingEmpty()
	}
	texts := make([]string, 0, len(windows))
	for _, w := range windows {
		texts = append(texts, w.Text)
	}

	emb, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if emb.Dims == 0 || len(emb.Vectors) != len(texts) {
		return 0, appErr.ProviderUnavailable("embedding returned no usable vectors", false, nil)
	}

	chunks := make([]*model.Chunk, 0, len(windows))
	embeddings := make([]*model.Embedding, 0, len(windows))
	for i, w := range windows {
		c := doc.NewChunk(o.newID(), i, w.Text, w.TokenCount())
		c.Metadata = map[string]interface{}{"token_start": w.Start, "token_end": w.End}
		chunks = append(chunks, c)
		embeddings = append(embeddings, c.NewEmbedding(emb.Model, emb.Vectors[i], now))
	}
	if err := o.store.CompleteJob(ctx, job.ID, doc, chunks, embeddings); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// checkArtifact rejects artifacts missing the fields their extractor needs.
func checkArtifact(a *model.Artifact) error {
	if a.UserID == "" {
		return appErr.ExtractionFailed("artifact has no owner", false, nil)
	}
	switch a.Type {
	case model.ArtifactTypeWeb:
		if a.SourceURI == "" {
			return appErr.ExtractionFailed("web artifact has no url", false, nil)
		}
	case model.ArtifactTypePDF, model.ArtifactTypeAudio:
		if a.ObjectKey == "" && a.MetaString(model.MetaKeyBytes) == "" {
			return appErr.ExtractionFailed(string(a.Type)+" artifact has no payload", false, nil)
		}
	case model.ArtifactTypeNote:
		if a.MetaString(model.MetaKeyContent) == "" {
			return appErr.ExtractionFailed("note artifact has no content", false, nil)
		}
	default:
		return appErr.ExtractionFailed("unsupported artifact type "+string(a.Type), false, nil)
	}
	return nil
}
