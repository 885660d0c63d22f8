package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/pkg/dbutil"
	"github.com/xxxsen/mrecall/internal/pkg/pgvec"
)

// DocumentRepo writes documents together with their chunks and embeddings.
type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// deleteByArtifact drops earlier documents of an artifact; chunks and
// embeddings go with them through the cascade.
func (r *DocumentRepo) deleteByArtifact(ctx context.Context, q execer, artifactID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM documents WHERE artifact_id = $1`, artifactID)
	return err
}

func (r *DocumentRepo) create(ctx context.Context, q execer, doc *model.Document) error {
	meta, err := encodeMeta(doc.Metadata)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":          doc.ID,
		"artifact_id": doc.ArtifactID,
		"user_id":     doc.UserID,
		"title":       doc.Title,
		"source_type": string(doc.SourceType),
		"source_uri":  doc.SourceURI,
		"captured_at": doc.CapturedAt,
		"metadata":    meta,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) createChunk(ctx context.Context, q execer, c *model.Chunk) error {
	meta, err := encodeMeta(c.Metadata)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":            c.ID,
		"document_id":   c.DocumentID,
		"user_id":       c.UserID,
		"chunk_index":   c.ChunkIndex,
		"content":       c.Content,
		"token_count":   c.TokenCount,
		"char_start":    c.CharStart,
		"char_end":      c.CharEnd,
		"time_start_ms": c.TimeStartMs,
		"time_end_ms":   c.TimeEndMs,
		"captured_at":   c.CapturedAt,
		"metadata":      meta,
	}
	sqlStr, args, err := builder.BuildInsert("chunks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) createEmbedding(ctx context.Context, q execer, e *model.Embedding) error {
	const query = `
		INSERT INTO embeddings (chunk_id, user_id, model, dims, embedding, created_at)
		VALUES ($1, $2, $3, $4, ($5)::vector, $6)
	`
	_, err := q.ExecContext(ctx, query, e.ChunkID, e.UserID, e.Model, e.Dims, pgvec.NewVector(e.Vector), e.CreatedAt)
	return err
}

// SearchNearest returns the user's chunks closest to vec by cosine distance.
// Only embeddings with the same dimensionality as vec are considered.
func (r *DocumentRepo) SearchNearest(ctx context.Context, userID string, vec []float32, topK int) ([]*model.Candidate, error) {
	const query = `
		SELECT c.id, c.content, d.title, d.source_uri, d.captured_at,
			e.embedding <=> ($1)::vector AS distance
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE e.user_id = $2 AND e.dims = $3
		ORDER BY distance ASC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, pgvec.NewVector(vec), userID, len(vec), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Candidate
	for rows.Next() {
		var c model.Candidate
		var capturedAt sql.NullTime
		if err := rows.Scan(&c.ChunkID, &c.Content, &c.Title, &c.SourceURI, &capturedAt, &c.Distance); err != nil {
			return nil, err
		}
		if capturedAt.Valid {
			t := capturedAt.Time
			c.CapturedAt = &t
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountChunks reports how many chunks the artifact's documents hold.
func (r *DocumentRepo) CountChunks(ctx context.Context, artifactID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.artifact_id = $1
	`
	var n int
	err := r.db.QueryRowContext(ctx, query, artifactID).Scan(&n)
	return n, err
}
