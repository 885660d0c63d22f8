package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// memStore mimics repo.Store: CompleteJob is all-or-nothing and replaces the
// artifact's earlier documents.
type memStore struct {
	mu          sync.Mutex
	artifacts   map[string]*model.Artifact
	jobs        map[string]*model.IngestionJob
	documents   map[string]*model.Document
	chunks      map[string][]*model.Chunk
	embeddings  map[string]*model.Embedding
	transitions map[string][]model.JobStatus

	completeErr    []error
	markFailedErr  error
	completeCalled int
}

func newMemStore() *memStore {
	return &memStore{
		artifacts:   make(map[string]*model.Artifact),
		jobs:        make(map[string]*model.IngestionJob),
		documents:   make(map[string]*model.Document),
		chunks:      make(map[string][]*model.Chunk),
		embeddings:  make(map[string]*model.Embedding),
		transitions: make(map[string][]model.JobStatus),
	}
}

func (m *memStore) add(a *model.Artifact, jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.ID] = a
	m.jobs[jobID] = &model.IngestionJob{ID: jobID, ArtifactID: a.ID, Status: model.JobStatusPending}
	m.transitions[jobID] = []model.JobStatus{model.JobStatusPending}
}

func (m *memStore) setStatus(job *model.IngestionJob, st model.JobStatus) {
	job.Status = st
	m.transitions[job.ID] = append(m.transitions[job.ID], st)
}

func (m *memStore) BeginAttempt(_ context.Context, jobID string, maxAttempts int) (*model.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	if job.Status == model.JobStatusSucceeded {
		cp := *job
		return &cp, appErr.ErrAlreadyDone
	}
	if maxAttempts > 0 && job.Attempts >= maxAttempts {
		if job.Status != model.JobStatusFailed {
			m.setStatus(job, model.JobStatusFailed)
		}
		cp := *job
		return &cp, appErr.ErrAttemptsExhausted
	}
	m.setStatus(job, model.JobStatusRunning)
	job.Attempts++
	job.ErrorMessage = ""
	cp := *job
	return &cp, nil
}

func (m *memStore) GetArtifact(_ context.Context, id string) (*model.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return a, nil
}

func (m *memStore) CompleteJob(_ context.Context, jobID string, doc *model.Document, chunks []*model.Chunk, embs []*model.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalled++
	if len(m.completeErr) > 0 {
		err := m.completeErr[0]
		m.completeErr = m.completeErr[1:]
		if err != nil {
			return err
		}
	}
	if len(chunks) != len(embs) {
		return errors.New("chunk/embedding mismatch")
	}
	for id, d := range m.documents {
		if d.ArtifactID == doc.ArtifactID {
			for _, c := range m.chunks[id] {
				delete(m.embeddings, c.ID)
			}
			delete(m.chunks, id)
			delete(m.documents, id)
		}
	}
	m.documents[doc.ID] = doc
	m.chunks[doc.ID] = chunks
	for _, e := range embs {
		m.embeddings[e.ChunkID] = e
	}
	m.setStatus(m.jobs[jobID], model.JobStatusSucceeded)
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, jobID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markFailedErr != nil {
		return m.markFailedErr
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return appErr.ErrNotFound
	}
	m.setStatus(job, model.JobStatusFailed)
	job.ErrorMessage = message
	return nil
}

func (m *memStore) job(id string) model.IngestionJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) docsFor(artifactID string) []*model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Document
	for _, d := range m.documents {
		if d.ArtifactID == artifactID {
			out = append(out, d)
		}
	}
	return out
}
