package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/pkg/errcode"
	"github.com/xxxsen/mrecall/internal/pkg/response"
	"github.com/xxxsen/mrecall/internal/service"
)

type IngestHandler struct {
	intake         *service.IntakeService
	maxUploadBytes int64
}

func NewIngestHandler(intake *service.IntakeService, maxUploadBytes int64) *IngestHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &IngestHandler{intake: intake, maxUploadBytes: maxUploadBytes}
}

type ingestURLRequest struct {
	UserID     string `json:"user_id"`
	URL        string `json:"url"`
	CapturedAt string `json:"captured_at"`
}

type ingestNoteRequest struct {
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	CapturedAt string `json:"captured_at"`
}

type jobResponse struct {
	JobID        string          `json:"job_id"`
	ArtifactID   string          `json:"artifact_id"`
	Status       model.JobStatus `json:"status"`
	Attempts     int             `json:"attempts"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func (h *IngestHandler) URL(c *gin.Context) {
	var req ingestURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	capturedAt, err := parseCapturedAt(req.CapturedAt)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "captured_at must be RFC3339")
		return
	}
	rc, err := h.intake.IngestURL(c.Request.Context(), resolveUserID(c, req.UserID), req.URL, capturedAt)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rc)
}

func (h *IngestHandler) Note(c *gin.Context) {
	var req ingestNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	capturedAt, err := parseCapturedAt(req.CapturedAt)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "captured_at must be RFC3339")
		return
	}
	rc, err := h.intake.IngestNote(c.Request.Context(), resolveUserID(c, req.UserID), req.Title, req.Content, capturedAt)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rc)
}

func (h *IngestHandler) PDF(c *gin.Context) {
	h.upload(c, model.ArtifactTypePDF)
}

func (h *IngestHandler) Audio(c *gin.Context) {
	h.upload(c, model.ArtifactTypeAudio)
}

func (h *IngestHandler) upload(c *gin.Context, t model.ArtifactType) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1024*1024)
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if file.Size > h.maxUploadBytes {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.maxUploadBytes))
		return
	}
	capturedAt, err := parseCapturedAt(c.PostForm("captured_at"))
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "captured_at must be RFC3339")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	rc, err := h.intake.IngestUpload(c.Request.Context(), resolveUserID(c, c.PostForm("user_id")),
		t, file.Filename, file.Header.Get("Content-Type"), data, capturedAt)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rc)
}

func (h *IngestHandler) Job(c *gin.Context) {
	job, err := h.intake.Job(c.Request.Context(), resolveUserID(c, c.Query("user_id")), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, jobResponse{
		JobID:        job.ID,
		ArtifactID:   job.ArtifactID,
		Status:       job.Status,
		Attempts:     job.Attempts,
		ErrorMessage: job.ErrorMessage,
	})
}
