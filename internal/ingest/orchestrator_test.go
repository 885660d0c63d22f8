package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mrecall/internal/ai"
	"github.com/xxxsen/mrecall/internal/chunker"
	"github.com/xxxsen/mrecall/internal/extract"
	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
	"github.com/xxxsen/mrecall/internal/queue"
)

type fakeExtractor struct {
	calls int
	errs  []error
	res   *extract.Result
}

func (f *fakeExtractor) Extract(_ context.Context, _ *model.Artifact) (*extract.Result, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.res, nil
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w" + string(rune('a'+i%26))
	}
	return strings.Join(parts, " ")
}

func newTestOrchestrator(t *testing.T, store *memStore, ex extract.Extractor) *Orchestrator {
	t.Helper()
	emb, err := ai.NewEmbedder("hash", "", nil)
	require.NoError(t, err)
	o := NewOrchestrator(store, ex, chunker.NewWordTokenizer(), emb, Options{})
	o.now = func() time.Time { return fixedNow }
	return o
}

func webArtifact(id string) *model.Artifact {
	return &model.Artifact{
		ID:        id,
		UserID:    "user-1",
		Type:      model.ArtifactTypeWeb,
		SourceURI: "https://example.com/a",
	}
}

func TestRun_EndToEndWebPage(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	ex := &fakeExtractor{res: &extract.Result{Title: "Example", Text: words(1200)}}
	o := newTestOrchestrator(t, store, ex)

	require.NoError(t, o.Run(context.Background(), "j1"))

	job := store.job("j1")
	require.Equal(t, model.JobStatusSucceeded, job.Status)
	require.Equal(t, 1, job.Attempts)
	require.Equal(t, []model.JobStatus{model.JobStatusPending, model.JobStatusRunning, model.JobStatusSucceeded}, store.transitions["j1"])

	docs := store.docsFor("a1")
	require.Len(t, docs, 1)
	doc := docs[0]
	require.Equal(t, "Example", doc.Title)
	require.Equal(t, "user-1", doc.UserID)
	require.Equal(t, fixedNow, doc.CapturedAt)

	chunks := store.chunks[doc.ID]
	require.Len(t, chunks, 2)
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex)
		require.Equal(t, fixedNow, c.CapturedAt)
		require.Equal(t, "user-1", c.UserID)
		e := store.embeddings[c.ID]
		require.NotNil(t, e)
		require.Equal(t, "user-1", e.UserID)
		require.Equal(t, 384, e.Dims)
		require.Len(t, e.Vector, e.Dims)
	}
	require.Equal(t, 800, chunks[0].TokenCount)
	require.Equal(t, 500, chunks[1].TokenCount)
}

func TestRun_KeepsArtifactCapturedAt(t *testing.T) {
	store := newMemStore()
	a := webArtifact("a1")
	captured := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	a.CapturedAt = &captured
	store.add(a, "j1")
	o := newTestOrchestrator(t, store, &fakeExtractor{res: &extract.Result{Title: "T", Text: words(10)}})

	require.NoError(t, o.Run(context.Background(), "j1"))
	doc := store.docsFor("a1")[0]
	require.Equal(t, captured, doc.CapturedAt)
	require.Equal(t, captured, store.chunks[doc.ID][0].CapturedAt)
}

func TestRun_TransientRetriesUntilCap(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	transient := appErr.ExtractionFailed("fetch failed: timeout", true, nil)
	ex := &fakeExtractor{errs: []error{transient, transient, transient, transient}}
	o := newTestOrchestrator(t, store, ex)
	ctx := context.Background()

	for attempt, want := range []time.Duration{2 * time.Second, 4 * time.Second} {
		err := o.Run(ctx, "j1")
		var retry *queue.RetryLater
		require.ErrorAs(t, err, &retry, "attempt %d", attempt+1)
		require.Equal(t, want, retry.Delay)
		job := store.job("j1")
		require.Equal(t, model.JobStatusFailed, job.Status)
		require.Equal(t, attempt+1, job.Attempts)
		require.Contains(t, job.ErrorMessage, "timeout")
	}

	err := o.Run(ctx, "j1")
	require.Error(t, err)
	var retry *queue.RetryLater
	require.False(t, errors.As(err, &retry))
	job := store.job("j1")
	require.Equal(t, model.JobStatusFailed, job.Status)
	require.Equal(t, 3, job.Attempts)
	require.Equal(t, 3, ex.calls)
}

func TestRun_RedeliveryAfterCapIsNoop(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	transient := appErr.ExtractionFailed("fetch failed: timeout", true, nil)
	ex := &fakeExtractor{
		errs: []error{transient, transient, transient},
		res:  &extract.Result{Title: "Example", Text: words(50)},
	}
	o := newTestOrchestrator(t, store, ex)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.Error(t, o.Run(ctx, "j1"))
	}

	// a lost bury or an expired lease hands the task out once more
	require.NoError(t, o.Run(ctx, "j1"))
	job := store.job("j1")
	require.Equal(t, model.JobStatusFailed, job.Status)
	require.Equal(t, 3, job.Attempts)
	require.Equal(t, 3, ex.calls)
	require.Zero(t, store.completeCalled)
	require.Contains(t, job.ErrorMessage, "timeout")
}

func TestRun_NonTransientNeverRetries(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	ex := &fakeExtractor{errs: []error{appErr.ExtractionFailed("web extraction yielded too little text", false, nil)}}
	o := newTestOrchestrator(t, store, ex)

	err := o.Run(context.Background(), "j1")
	require.True(t, appErr.IsKind(err, appErr.KindExtractionFailed))
	var retry *queue.RetryLater
	require.False(t, errors.As(err, &retry))
	job := store.job("j1")
	require.Equal(t, model.JobStatusFailed, job.Status)
	require.Equal(t, 1, job.Attempts)
}

func TestRun_IdempotentAfterTransientPersistenceFailure(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	store.completeErr = []error{appErr.Persistence("persist document", true, errors.New("connection reset"))}
	ex := &fakeExtractor{res: &extract.Result{Title: "Example", Text: words(1200)}}
	o := newTestOrchestrator(t, store, ex)
	ctx := context.Background()

	var retry *queue.RetryLater
	require.ErrorAs(t, o.Run(ctx, "j1"), &retry)
	require.Empty(t, store.docsFor("a1"))

	require.NoError(t, o.Run(ctx, "j1"))
	require.Len(t, store.docsFor("a1"), 1)

	// duplicate delivery after success is a no-op
	require.NoError(t, o.Run(ctx, "j1"))
	require.Len(t, store.docsFor("a1"), 1)
	require.Equal(t, 2, store.completeCalled)
	require.Equal(t, 2, store.job("j1").Attempts)
}

func TestRun_ReprocessReplacesDocuments(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	o := newTestOrchestrator(t, store, &fakeExtractor{res: &extract.Result{Title: "Example", Text: words(1200)}})
	ctx := context.Background()

	require.NoError(t, o.Run(ctx, "j1"))
	// a crash after commit but before the ack redelivers a job that was reset
	store.jobs["j1"].Status = model.JobStatusRunning
	require.NoError(t, o.Run(ctx, "j1"))

	docs := store.docsFor("a1")
	require.Len(t, docs, 1)
	require.Len(t, store.chunks[docs[0].ID], 2)
	require.Len(t, store.embeddings, 2)
}

func TestRun_MissingJobIsNoop(t *testing.T) {
	store := newMemStore()
	ex := &fakeExtractor{}
	o := newTestOrchestrator(t, store, ex)
	require.NoError(t, o.Run(context.Background(), "nope"))
	require.Zero(t, ex.calls)
}

func TestRun_ArtifactMissingFields(t *testing.T) {
	store := newMemStore()
	store.add(&model.Artifact{ID: "a1", UserID: "u", Type: model.ArtifactTypePDF}, "j1")
	ex := &fakeExtractor{}
	o := newTestOrchestrator(t, store, ex)

	err := o.Run(context.Background(), "j1")
	require.Error(t, err)
	require.False(t, appErr.IsRetryable(err))
	require.Zero(t, ex.calls)
	require.Equal(t, model.JobStatusFailed, store.job("j1").Status)
}

func TestRun_EmptyTextFailsChunking(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	o := newTestOrchestrator(t, store, &fakeExtractor{res: &extract.Result{Title: "x", Text: "   "}})

	err := o.Run(context.Background(), "j1")
	require.True(t, appErr.IsKind(err, appErr.KindChunkingEmpty))
	require.Equal(t, model.JobStatusFailed, store.job("j1").Status)
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(context.Context, []string) (*ai.EmbedResult, error) { return nil, f.err }
func (f failingEmbedder) ModelName() string { return "broken" }

func TestRun_ProviderUnavailableRetries(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	o := NewOrchestrator(store, &fakeExtractor{res: &extract.Result{Title: "x", Text: words(20)}},
		chunker.NewWordTokenizer(), failingEmbedder{err: appErr.ProviderUnavailable("openai request failed: 429", true, nil)}, Options{})

	var retry *queue.RetryLater
	require.ErrorAs(t, o.Run(context.Background(), "j1"), &retry)
	require.Equal(t, 2*time.Second, retry.Delay)
}

func TestRun_MarkFailedErrorDoesNotMaskCause(t *testing.T) {
	store := newMemStore()
	store.add(webArtifact("a1"), "j1")
	store.markFailedErr = errors.New("database unreachable")
	cause := appErr.ExtractionFailed("bad page", false, nil)
	o := newTestOrchestrator(t, store, &fakeExtractor{errs: []error{cause}})

	err := o.Run(context.Background(), "j1")
	require.ErrorIs(t, err, cause)
}

func TestBackoff(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil, nil, Options{})
	require.Equal(t, 2*time.Second, o.Backoff(1))
	require.Equal(t, 4*time.Second, o.Backoff(2))
	require.Equal(t, 32*time.Second, o.Backoff(5))
	require.Equal(t, 60*time.Second, o.Backoff(6))
	require.Equal(t, 60*time.Second, o.Backoff(100))
}
