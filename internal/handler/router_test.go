package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/mrecall/internal/ai"
	"github.com/xxxsen/mrecall/internal/handler"
	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/pkg/errcode"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
	"github.com/xxxsen/mrecall/internal/pkg/jwt"
	"github.com/xxxsen/mrecall/internal/service"
)

type memStore struct {
	mu        sync.Mutex
	artifacts map[string]*model.Artifact
	jobs      map[string]*model.IngestionJob
	tasks     []*model.Task
}

func (m *memStore) CreateArtifactWithJob(_ context.Context, a *model.Artifact, job *model.IngestionJob, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.ID] = a
	m.jobs[job.ID] = job
	m.tasks = append(m.tasks, task)
	return nil
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

func (m *memStore) GetJob(_ context.Context, id string) (*model.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return job, nil
}

func (m *memStore) SearchNearest(context.Context, string, []float32, int) ([]*model.Candidate, error) {
	return nil, nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

var testSecret = []byte("test-secret")

func setupRouter(t *testing.T, secret []byte) (http.Handler, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := &memStore{artifacts: map[string]*model.Artifact{}, jobs: map[string]*model.IngestionJob{}}
	retrieval := service.NewRetrievalService(ai.NewHashEmbedder(16), store, nil)
	deps := handler.RouterDeps{
		Ingest:    handler.NewIngestHandler(service.NewIntakeService(store, nil), 1024),
		Chat:      handler.NewChatHandler(service.NewChatService(retrieval, ai.NewSynthesizer(nil, 0)), retrieval),
		JWTSecret: secret,
	}
	engine, err := webapi.NewEngine(
		"",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			group.GET("/health", handler.Health)
			handler.RegisterRoutes(group.Group("/api/v1"), deps)
		}),
	)
	require.NoError(t, err)
	return engine, store
}

func do(t *testing.T, h http.Handler, req *http.Request) envelope {
	t.Helper()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestIngestURL_ThenJobStatus(t *testing.T) {
	router, store := setupRouter(t, nil)

	env := do(t, router, jsonRequest(http.MethodPost, "/api/v1/ingest/url",
		`{"user_id":"u1","url":"https://example.com/post","captured_at":"2024-03-01T10:00:00+02:00"}`))
	var rc service.Receipt
	require.NoError(t, json.Unmarshal(env.Data, &rc))
	require.Equal(t, model.JobStatusPending, rc.Status)

	a := store.artifacts[rc.ArtifactID]
	require.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), *a.CapturedAt)

	require.Len(t, store.tasks, 1)
	require.Equal(t, rc.JobID, store.tasks[0].JobID)

	env = do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/job/"+rc.JobID+"?user_id=u1", nil))
	var job map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &job))
	require.Equal(t, rc.JobID, job["job_id"])
	require.Equal(t, "PENDING", job["status"])

	env = do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/job/"+rc.JobID+"?user_id=u2", nil))
	require.Equal(t, errcode.ErrNotFound, env.Code)
}

func TestIngestURL_InvalidCapturedAt(t *testing.T) {
	router, _ := setupRouter(t, nil)
	env := do(t, router, jsonRequest(http.MethodPost, "/api/v1/ingest/url",
		`{"user_id":"u1","url":"https://example.com","captured_at":"yesterday"}`))
	require.Equal(t, errcode.ErrInvalid, env.Code)
}

func TestIngestJob_NotFound(t *testing.T) {
	router, _ := setupRouter(t, nil)
	env := do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/job/missing?user_id=u1", nil))
	require.Equal(t, errcode.ErrNotFound, env.Code)
}

func multipartRequest(t *testing.T, path, userID, filename string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("user_id", userID))
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestIngestPDF_Upload(t *testing.T) {
	router, store := setupRouter(t, nil)

	env := do(t, router, multipartRequest(t, "/api/v1/ingest/pdf", "u1", "doc.pdf", []byte("%PDF-1.4")))
	var rc service.Receipt
	require.NoError(t, json.Unmarshal(env.Data, &rc))
	require.Equal(t, "doc.pdf", store.artifacts[rc.ArtifactID].MetaString(model.MetaKeyFilename))

	env = do(t, router, multipartRequest(t, "/api/v1/ingest/pdf", "u1", "", nil))
	require.Equal(t, errcode.ErrInvalidFile, env.Code)

	env = do(t, router, multipartRequest(t, "/api/v1/ingest/audio", "u1", "empty.wav", nil))
	require.Equal(t, errcode.ErrInvalid, env.Code)

	env = do(t, router, multipartRequest(t, "/api/v1/ingest/audio", "u1", "big.wav", bytes.Repeat([]byte("a"), 2048)))
	require.Equal(t, errcode.ErrInvalidFile, env.Code)
}

func TestChat_EmptyRetrieval(t *testing.T) {
	router, _ := setupRouter(t, nil)
	env := do(t, router, jsonRequest(http.MethodPost, "/api/v1/chat", `{"user_id":"u1","query":"anything?"}`))
	var res struct {
		Answer  string        `json:"answer"`
		Sources []interface{} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Equal(t, "No saved content found for this user yet.", res.Answer)
	require.NotNil(t, res.Sources)
	require.Empty(t, res.Sources)
}

func TestSearch_RequiresQuery(t *testing.T) {
	router, _ := setupRouter(t, nil)
	env := do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/search?user_id=u1", nil))
	require.Equal(t, errcode.ErrInvalid, env.Code)
}

func TestJWT_IdentityOverridesBody(t *testing.T) {
	router, store := setupRouter(t, testSecret)

	env := do(t, router, jsonRequest(http.MethodPost, "/api/v1/ingest/note", `{"user_id":"u1","content":"hello"}`))
	require.Equal(t, errcode.ErrUnauthorized, env.Code)

	tok, err := jwt.GenerateToken("owner", testSecret, time.Hour)
	require.NoError(t, err)
	req := jsonRequest(http.MethodPost, "/api/v1/ingest/note", `{"user_id":"someone-else","title":"t","content":"hello"}`)
	req.Header.Set("Authorization", "Bearer "+tok)
	env = do(t, router, req)
	var rc service.Receipt
	require.NoError(t, json.Unmarshal(env.Data, &rc))
	require.Equal(t, "owner", store.artifacts[rc.ArtifactID].UserID)
}

func TestJWT_JobStatusOnlyForOwner(t *testing.T) {
	router, _ := setupRouter(t, testSecret)
	owner, err := jwt.GenerateToken("owner", testSecret, time.Hour)
	require.NoError(t, err)
	other, err := jwt.GenerateToken("other", testSecret, time.Hour)
	require.NoError(t, err)

	req := jsonRequest(http.MethodPost, "/api/v1/ingest/note", `{"content":"meeting notes about the launch plan"}`)
	req.Header.Set("Authorization", "Bearer "+owner)
	var rc service.Receipt
	require.NoError(t, json.Unmarshal(do(t, router, req).Data, &rc))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ingest/job/"+rc.JobID+"?user_id=owner", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	env := do(t, router, req)
	require.Equal(t, errcode.ErrNotFound, env.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ingest/job/"+rc.JobID, nil)
	req.Header.Set("Authorization", "Bearer "+owner)
	env = do(t, router, req)
	require.Zero(t, env.Code)
	var job map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &job))
	require.Equal(t, rc.JobID, job["job_id"])
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)
}
