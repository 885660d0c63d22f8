package model

import "time"

// Candidate is one retrieval hit, closest first.
type Candidate struct {
	ChunkID    string     `json:"chunk_id"`
	Content    string     `json:"content"`
	Title      string     `json:"title"`
	SourceURI  string     `json:"source_uri"`
	CapturedAt *time.Time `json:"captured_at"`
	Distance   float64    `json:"distance"`
}
