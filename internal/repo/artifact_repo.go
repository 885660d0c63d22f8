package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

type ArtifactRepo struct {
	db *sql.DB
}

func NewArtifactRepo(db *sql.DB) *ArtifactRepo {
	return &ArtifactRepo{db: db}
}

func (r *ArtifactRepo) create(ctx context.Context, q execer, a *model.Artifact) error {
	meta, err := encodeMeta(a.Metadata)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":          a.ID,
		"user_id":     a.UserID,
		"type":        string(a.Type),
		"source_uri":  a.SourceURI,
		"object_key":  a.ObjectKey,
		"captured_at": a.CapturedAt,
		"ingested_at": a.IngestedAt,
		"metadata":    meta,
	}
	sqlStr, args, err := builder.BuildInsert("artifacts", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ArtifactRepo) Get(ctx context.Context, id string) (*model.Artifact, error) {
	where := map[string]interface{}{
		"id": id,
	}
	sqlStr, args, err := builder.BuildSelect("artifacts", where,
		[]string{"id", "user_id", "type", "source_uri", "object_key", "captured_at", "ingested_at", "metadata"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var a model.Artifact
	var capturedAt sql.NullTime
	var meta []byte
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&a.ID, &a.UserID, &a.Type, &a.SourceURI, &a.ObjectKey, &capturedAt, &a.IngestedAt, &meta,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	if capturedAt.Valid {
		t := capturedAt.Time
		a.CapturedAt = &t
	}
	if a.Metadata, err = decodeMeta(meta); err != nil {
		return nil, err
	}
	return &a, nil
}
