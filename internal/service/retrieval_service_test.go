package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mrecall/internal/ai"
	"github.com/xxxsen/mrecall/internal/model"
)

func TestRetrieve_EmptyQuerySkipsSearch(t *testing.T) {
	search := &stubSearcher{}
	svc := NewRetrievalService(&fixedEmbedder{vec: []float32{1}}, search, nil)
	got, err := svc.Retrieve(context.Background(), "u1", "   ", 5)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, 0, search.called)
}

func TestRetrieve_ZeroLengthVectorIsEmpty(t *testing.T) {
	search := &stubSearcher{cands: []*model.Candidate{{ChunkID: "c1"}}}
	svc := NewRetrievalService(&fixedEmbedder{vec: nil}, search, nil)
	got, err := svc.Retrieve(context.Background(), "u1", "q", 5)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, 0, search.called)
}

func TestRetrieve_ClampsTopK(t *testing.T) {
	search := &stubSearcher{}
	svc := NewRetrievalService(&fixedEmbedder{vec: []float32{1}}, search, nil)

	_, err := svc.Retrieve(context.Background(), "u1", "q", 0)
	require.NoError(t, err)
	require.Equal(t, DefaultTopK, search.topK)
	require.Equal(t, "u1", search.userID)

	_, err = svc.Retrieve(context.Background(), "u1", "q", 1000)
	require.NoError(t, err)
	require.Equal(t, MaxTopK, search.topK)
}

func TestRetrieve_EmbedErrorSurfaces(t *testing.T) {
	svc := NewRetrievalService(&fixedEmbedder{err: errBoom}, &stubSearcher{}, nil)
	_, err := svc.Retrieve(context.Background(), "u1", "q", 5)
	require.ErrorIs(t, err, errBoom)
}

func TestSearch_AppliesRerank(t *testing.T) {
	cands := []*model.Candidate{{ChunkID: "a"}, {ChunkID: "b"}, {ChunkID: "c"}}
	search := &stubSearcher{cands: cands}
	rr := ai.NewReranker(&stubGenerator{out: "[3, 1]"}, ai.RerankOptions{})
	svc := NewRetrievalService(&fixedEmbedder{vec: []float32{1}}, search, rr)

	got, err := svc.Search(context.Background(), "u1", "q", 3)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.ChunkID)
	}
	require.Equal(t, []string{"c", "a", "b"}, ids)
}
