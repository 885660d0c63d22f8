package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/xxxsen/mrecall/internal/ai"
	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

type memIntakeStore struct {
	mu        sync.Mutex
	artifacts map[string]*model.Artifact
	jobs      map[string]*model.IngestionJob
	tasks     []*model.Task
	createErr error
}

func newMemIntakeStore() *memIntakeStore {
	return &memIntakeStore{artifacts: map[string]*model.Artifact{}, jobs: map[string]*model.IngestionJob{}}
}

func (m *memIntakeStore) CreateArtifactWithJob(_ context.Context, a *model.Artifact, job *model.IngestionJob, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.artifacts[a.ID] = a
	cp := *job
	m.jobs[job.ID] = &cp
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memIntakeStore) GetArtifact(_ context.Context, id string) (*model.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return a, nil
}

func (m *memIntakeStore) GetJob(_ context.Context, id string) (*model.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

type memFiles struct {
	saved map[string][]byte
}

func (m *memFiles) Type() string { return "mem" }

func (m *memFiles) Save(_ context.Context, key string, r io.ReadSeeker, _ int64) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[key] = raw
	return nil
}

func (m *memFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := m.saved[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) ModelName() string { return "fixed" }

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) (*ai.EmbedResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &ai.EmbedResult{Model: "fixed", Dims: len(f.vec)}
	for range texts {
		out.Vectors = append(out.Vectors, f.vec)
	}
	return out, nil
}

type stubSearcher struct {
	cands  []*model.Candidate
	err    error
	called int
	userID string
	topK   int
}

func (s *stubSearcher) SearchNearest(_ context.Context, userID string, _ []float32, topK int) ([]*model.Candidate, error) {
	s.called++
	s.userID = userID
	s.topK = topK
	return s.cands, s.err
}

type stubGenerator struct {
	out    string
	err    error
	prompt string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.out, g.err
}

var errBoom = errors.New("boom")
