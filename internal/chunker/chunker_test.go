package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mrecall/internal/model"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestWindowsCoverStreamWithOverlap(t *testing.T) {
	tests := []struct {
		name    string
		tokens  int
		params  Params
		windows int
	}{
		{name: "single short window", tokens: 10, params: Params{MaxTokens: 800, Overlap: 100}, windows: 1},
		{name: "exact fit", tokens: 800, params: Params{MaxTokens: 800, Overlap: 100}, windows: 1},
		{name: "web default on 1200 tokens", tokens: 1200, params: Params{MaxTokens: 800, Overlap: 100}, windows: 2},
		{name: "pdf default", tokens: 2000, params: Params{MaxTokens: 700, Overlap: 120}, windows: 4},
		{name: "no overlap", tokens: 25, params: Params{MaxTokens: 10, Overlap: 0}, windows: 3},
		{name: "overlap one less than window", tokens: 12, params: Params{MaxTokens: 5, Overlap: 4}, windows: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, err := Windows(NewWordTokenizer(), words(tt.tokens), tt.params)
			require.NoError(t, err)
			require.Len(t, ws, tt.windows)
			assert.Equal(t, 0, ws[0].Start)
			assert.Equal(t, tt.tokens, ws[len(ws)-1].End)
			for i, w := range ws {
				assert.LessOrEqual(t, w.TokenCount(), tt.params.MaxTokens)
				if i == 0 {
					continue
				}
				prev := ws[i-1]
				assert.Equal(t, prev.Start+tt.params.MaxTokens-tt.params.Overlap, w.Start)
				assert.Equal(t, tt.params.Overlap, prev.End-w.Start)
			}
		})
	}
}

func TestWindowsText(t *testing.T) {
	ws, err := Windows(NewWordTokenizer(), "a b c d e f g", Params{MaxTokens: 3, Overlap: 1})
	require.NoError(t, err)
	got := make([]string, len(ws))
	for i, w := range ws {
		got[i] = w.Text
	}
	require.Equal(t, []string{"a b c", "c d e", "e f g"}, got)
}

func TestChunkDeterministic(t *testing.T) {
	text := words(1733)
	p := DefaultParams(model.ArtifactTypeAudio)
	first, err := Chunk(NewWordTokenizer(), text, p)
	require.NoError(t, err)
	second, err := Chunk(NewWordTokenizer(), text, p)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestChunkEmpty(t *testing.T) {
	out, err := Chunk(NewWordTokenizer(), "  \n\t ", Params{MaxTokens: 5, Overlap: 1})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestParamsRejectInvalid(t *testing.T) {
	for _, p := range []Params{
		{MaxTokens: 10, Overlap: 10},
		{MaxTokens: 10, Overlap: 20},
		{MaxTokens: 0, Overlap: 0},
		{MaxTokens: 10, Overlap: -1},
	} {
		_, err := Chunk(NewWordTokenizer(), "a b c", p)
		require.Error(t, err, "params %+v", p)
	}
}

func TestDefaultParams(t *testing.T) {
	require.Equal(t, Params{MaxTokens: 800, Overlap: 100}, DefaultParams(model.ArtifactTypeWeb))
	require.Equal(t, Params{MaxTokens: 500, Overlap: 80}, DefaultParams(model.ArtifactTypeAudio))
	require.Equal(t, Params{MaxTokens: 700, Overlap: 120}, DefaultParams(model.ArtifactTypePDF))
}

func TestTiktokenOffline(t *testing.T) {
	tok, err := NewTiktoken("")
	require.NoError(t, err)
	tokens := tok.Encode("hello world")
	require.NotEmpty(t, tokens)
	require.Equal(t, "hello world", tok.Decode(tokens))

	again, err := NewTiktoken(DefaultEncoding)
	require.NoError(t, err)
	require.Equal(t, tokens, again.Encode("hello world"))
}

func TestTiktokenWindowsStayValidUTF8(t *testing.T) {
	tok, err := NewTiktoken(DefaultEncoding)
	require.NoError(t, err)
	text := strings.Repeat("我们今天讨论向量检索与知识管理🙂🎉 naïve café ", 80)
	for _, p := range []Params{{MaxTokens: 50, Overlap: 10}, {MaxTokens: 7, Overlap: 2}, {MaxTokens: 3, Overlap: 0}} {
		ws, err := Windows(tok, text, p)
		require.NoError(t, err)
		require.NotEmpty(t, ws)
		for i, w := range ws {
			require.True(t, utf8.ValidString(w.Text), "params %+v window %d: %q", p, i, w.Text)
		}
	}
}
