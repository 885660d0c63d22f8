package service

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/filestore"
	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
	"github.com/xxxsen/mrecall/internal/queue"
)

// IntakeStore persists new artifacts. CreateArtifactWithJob must write the
// artifact, the job and its queue task atomically.
type IntakeStore interface {
	CreateArtifactWithJob(ctx context.Context, a *model.Artifact, job *model.IngestionJob, task *model.Task) error
	GetJob(ctx context.Context, id string) (*model.IngestionJob, error)
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)
}

type Receipt struct {
	JobID      string          `json:"job_id"`
	ArtifactID string          `json:"artifact_id"`
	Status     model.JobStatus `json:"status"`
}

// IntakeService records new artifacts with a PENDING job and queues them.
type IntakeService struct {
	store IntakeStore
	// files is nil when payloads are kept inline in metadata.
	files filestore.Store
	now   func() time.Time
}

func NewIntakeService(store IntakeStore, files filestore.Store) *IntakeService {
	return &IntakeService{
		store: store,
		files: files,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", appErr.ErrInvalid, fmt.Sprintf(format, args...))
}

func (s *IntakeService) IngestURL(ctx context.Context, userID, rawURL string, capturedAt *time.Time) (*Receipt, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, invalid("url must be an absolute http(s) url")
	}
	a := s.newArtifact(userID, model.ArtifactTypeWeb, rawURL, capturedAt)
	a.Metadata[model.MetaKeyURL] = rawURL
	return s.submit(ctx, a)
}

func (s *IntakeService) IngestUpload(ctx context.Context, userID string, t model.ArtifactType, filename, contentType string, data []byte, capturedAt *time.Time) (*Receipt, error) {
	if t != model.ArtifactTypePDF && t != model.ArtifactTypeAudio {
		return nil, invalid("uploads must be pdf or audio")
	}
	filename = strings.TrimSpace(filepath.Base(filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, invalid("missing filename")
	}
	if len(data) == 0 {
		return nil, invalid("empty upload")
	}
	a := s.newArtifact(userID, t, filename, capturedAt)
	a.Metadata[model.MetaKeyFilename] = filename
	a.Metadata[model.MetaKeyContentType] = contentType
	if s.files != nil {
		key := a.ID + strings.ToLower(filepath.Ext(filename))
		if err := s.files.Save(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
			return nil, fmt.Errorf("store upload: %w", err)
		}
		a.ObjectKey = key
	} else {
		a.Metadata[model.MetaKeyBytes] = fmt.Sprintf("%x", data)
	}
	return s.submit(ctx, a)
}

func (s *IntakeService) IngestNote(ctx context.Context, userID, title, content string, capturedAt *time.Time) (*Receipt, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("empty note")
	}
	title = strings.TrimSpace(title)
	a := s.newArtifact(userID, model.ArtifactTypeNote, "note:"+title, capturedAt)
	a.Metadata[model.MetaKeyContent] = content
	if title != "" {
		a.Metadata[model.MetaKeyTitle] = title
	}
	return s.submit(ctx, a)
}

// Job returns the job when its artifact belongs to userID. Jobs of other
// users are reported as not found.
func (s *IntakeService) Job(ctx context.Context, userID, jobID string) (*model.IngestionJob, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user_id is required")
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetArtifact(ctx, job.ArtifactID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	return job, nil
}

func (s *IntakeService) newArtifact(userID string, t model.ArtifactType, source string, capturedAt *time.Time) *model.Artifact {
	return &model.Artifact{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       t,
		SourceURI:  source,
		CapturedAt: capturedAt,
		IngestedAt: s.now(),
		Metadata:   map[string]interface{}{model.MetaKeySource: string(t)},
	}
}

func (s *IntakeService) submit(ctx context.Context, a *model.Artifact) (*Receipt, error) {
	if strings.TrimSpace(a.UserID) == "" {
		return nil, invalid("user_id is required")
	}
	now := s.now()
	job := &model.IngestionJob{
		ID:         uuid.NewString(),
		ArtifactID: a.ID,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateArtifactWithJob(ctx, a, job, queue.NewTask(job.ID, 0, now)); err != nil {
		logutil.GetLogger(ctx).Error("record artifact failed",
			zap.String("job_id", job.ID), zap.String("artifact_id", a.ID), zap.Error(err))
		return nil, err
	}
	logutil.GetLogger(ctx).Info("artifact accepted",
		zap.String("job_id", job.ID), zap.String("artifact_id", a.ID),
		zap.String("user_id", a.UserID), zap.String("type", string(a.Type)))
	return &Receipt{JobID: job.ID, ArtifactID: a.ID, Status: job.Status}, nil
}
