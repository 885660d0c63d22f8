package model

import "time"

type Document struct {
	ID         string                 `json:"id"`
	ArtifactID string                 `json:"artifact_id"`
	UserID     string                 `json:"user_id"`
	Title      string                 `json:"title"`
	SourceType ArtifactType           `json:"source_type"`
	SourceURI  string                 `json:"source_uri"`
	CapturedAt time.Time              `json:"captured_at"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// NewDocument derives a document from its artifact. The owner is always
// copied from the artifact; captured_at falls back to now.
func NewDocument(id string, a *Artifact, title string, now time.Time) *Document {
	capturedAt := now
	if a.CapturedAt != nil && !a.CapturedAt.IsZero() {
		capturedAt = *a.CapturedAt
	}
	if title == "" {
		title = a.SourceURI
	}
	return &Document{
		ID:         id,
		ArtifactID: a.ID,
		UserID:     a.UserID,
		Title:      title,
		SourceType: a.Type,
		SourceURI:  a.SourceURI,
		CapturedAt: capturedAt,
		Metadata:   map[string]interface{}{},
	}
}

type Chunk struct {
	ID          string                 `json:"id"`
	DocumentID  string                 `json:"document_id"`
	UserID      string                 `json:"user_id"`
	ChunkIndex  int                    `json:"chunk_index"`
	Content     string                 `json:"content"`
	TokenCount  int                    `json:"token_count"`
	CharStart   *int                   `json:"char_start,omitempty"`
	CharEnd     *int                   `json:"char_end,omitempty"`
	TimeStartMs *int                   `json:"time_start_ms,omitempty"`
	TimeEndMs   *int                   `json:"time_end_ms,omitempty"`
	CapturedAt  time.Time              `json:"captured_at"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// NewChunk creates the index-th chunk of d, inheriting owner and captured_at.
func (d *Document) NewChunk(id string, index int, content string, tokenCount int) *Chunk {
	return &Chunk{
		ID:         id,
		DocumentID: d.ID,
		UserID:     d.UserID,
		ChunkIndex: index,
		Content:    content,
		TokenCount: tokenCount,
		CapturedAt: d.CapturedAt,
	}
}

type Embedding struct {
	ChunkID   string    `json:"chunk_id"`
	UserID    string    `json:"user_id"`
	Model     string    `json:"model"`
	Dims      int       `json:"dims"`
	Vector    []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEmbedding pairs vec with c. Dims is always the vector length.
func (c *Chunk) NewEmbedding(modelName string, vec []float32, now time.Time) *Embedding {
	return &Embedding{
		ChunkID:   c.ID,
		UserID:    c.UserID,
		Model:     modelName,
		Dims:      len(vec),
		Vector:    vec,
		CreatedAt: now,
	}
}
