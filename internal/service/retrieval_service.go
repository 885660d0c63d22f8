package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/ai"
	"github.com/xxxsen/mrecall/internal/model"
)

const (
	DefaultTopK = 8
	MaxTopK     = 50
)

type Searcher interface {
	SearchNearest(ctx context.Context, userID string, vec []float32, topK int) ([]*model.Candidate, error)
}

type RetrievalService struct {
	embedder ai.IEmbedder
	searcher Searcher
	reranker ai.Reranker
}

func NewRetrievalService(embedder ai.IEmbedder, searcher Searcher, reranker ai.Reranker) *RetrievalService {
	if reranker == nil {
		reranker = ai.NewReranker(nil, ai.RerankOptions{})
	}
	return &RetrievalService{embedder: embedder, searcher: searcher, reranker: reranker}
}

func clampTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}

// Retrieve embeds the query and returns the user's nearest chunks, closest
// first. Only embeddings with the query's dimensionality can match.
func (s *RetrievalService) Retrieve(ctx context.Context, userID, query string, topK int) ([]*model.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	res, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if res.Dims == 0 || len(res.Vectors) == 0 || len(res.Vectors[0]) == 0 {
		return nil, nil
	}
	cands, err := s.searcher.SearchNearest(ctx, userID, res.Vectors[0], clampTopK(topK))
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Debug("retrieved candidates",
		zap.String("user_id", userID), zap.Int("dims", res.Dims), zap.Int("count", len(cands)))
	return cands, nil
}

// Search is Retrieve followed by the re-ranking pass.
func (s *RetrievalService) Search(ctx context.Context, userID, query string, topK int) ([]*model.Candidate, error) {
	cands, err := s.Retrieve(ctx, userID, query, topK)
	if err != nil || len(cands) < 2 {
		return cands, err
	}
	return s.reranker.Rerank(ctx, query, cands), nil
}
