package model

import "time"

type ArtifactType string

const (
	ArtifactTypeWeb   ArtifactType = "web"
	ArtifactTypePDF   ArtifactType = "pdf"
	ArtifactTypeAudio ArtifactType = "audio"
	ArtifactTypeNote  ArtifactType = "note"
)

func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactTypeWeb, ArtifactTypePDF, ArtifactTypeAudio, ArtifactTypeNote:
		return true
	}
	return false
}

// Metadata keys written by the intake layer.
const (
	MetaKeyBytes       = "bytes"
	MetaKeyFilename    = "filename"
	MetaKeyContentType = "content_type"
	MetaKeyContent     = "content"
	MetaKeyTitle       = "title"
	MetaKeySource      = "source"
	MetaKeyURL         = "url"
)

type Artifact struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Type       ArtifactType           `json:"type"`
	SourceURI  string                 `json:"source_uri"`
	ObjectKey  string                 `json:"object_key"`
	CapturedAt *time.Time             `json:"captured_at"`
	IngestedAt time.Time              `json:"ingested_at"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (a *Artifact) MetaString(key string) string {
	if a == nil || a.Metadata == nil {
		return ""
	}
	v, ok := a.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
