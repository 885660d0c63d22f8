package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mrecall/internal/model"
)

type stubGenerator struct {
	out    string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.out, s.err
}

func candidates(ids ...string) []*model.Candidate {
	out := make([]*model.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Candidate{ChunkID: id, Title: "t-" + id, Content: "content " + id})
	}
	return out
}

func chunkIDs(cands []*model.Candidate) []string {
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.ChunkID)
	}
	return ids
}

func TestApplyRankOrder(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		order []int
		want  []int
	}{
		{name: "full", n: 3, order: []int{3, 1, 2}, want: []int{2, 0, 1}},
		{name: "partial", n: 4, order: []int{4}, want: []int{3, 0, 1, 2}},
		{name: "duplicates", n: 3, order: []int{2, 2, 1}, want: []int{1, 0, 2}},
		{name: "out of range", n: 3, order: []int{0, 9, -1, 3}, want: []int{2, 0, 1}},
		{name: "empty", n: 2, order: nil, want: []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, applyRankOrder(tt.n, tt.order))
		})
	}
}

func TestParseRankOrder(t *testing.T) {
	order, err := parseRankOrder("```json\n[2, 1, \"x\", 3.5, 3]\n```")
	require.NoError(t, err)
	require.Equal(t, []int{2, 1, 3}, order)

	_, err = parseRankOrder("no idea")
	require.Error(t, err)
}

func TestRerank_Permutes(t *testing.T) {
	gen := &stubGenerator{out: "[3,1]"}
	r := NewReranker(gen, RerankOptions{})
	out := r.Rerank(context.Background(), "q", candidates("a", "b", "c"))
	require.Equal(t, []string{"c", "a", "b"}, chunkIDs(out))
	require.Contains(t, gen.prompt, "#1\nTITLE: t-a\nCONTENT:\ncontent a")
}

func TestRerank_FailsOpen(t *testing.T) {
	in := candidates("a", "b", "c")
	for _, gen := range []*stubGenerator{
		{err: errors.New("boom")},
		{out: "sorry, cannot rank"},
	} {
		out := NewReranker(gen, RerankOptions{}).Rerank(context.Background(), "q", in)
		require.Equal(t, []string{"a", "b", "c"}, chunkIDs(out))
	}
}

func TestRerank_NoopWithoutGenerator(t *testing.T) {
	in := candidates("a", "b")
	out := NewReranker(nil, RerankOptions{}).Rerank(context.Background(), "q", in)
	require.Equal(t, in, out)
}

func TestRerankPrompt_TruncatesContent(t *testing.T) {
	c := &model.Candidate{Title: "long", Content: string(make([]rune, 3000))}
	prompt := buildRerankPrompt("q", []*model.Candidate{c}, 10)
	require.Less(t, len(prompt), 400)
}
