package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/model"
)

const (
	defaultRerankContentChars = 1500
	defaultRerankTimeout      = 20 * time.Second
)

// Reranker reorders candidates without adding or dropping any.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []*model.Candidate) []*model.Candidate
}

type RerankOptions struct {
	MaxContentChars int
	Timeout         time.Duration
}

type noopReranker struct{}

func (noopReranker) Rerank(_ context.Context, _ string, candidates []*model.Candidate) []*model.Candidate {
	return candidates
}

type llmReranker struct {
	gen  IGenerator
	opts RerankOptions
}

// NewReranker returns a pass-through reranker when gen is nil.
func NewReranker(gen IGenerator, opts RerankOptions) Reranker {
	if gen == nil {
		return noopReranker{}
	}
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = defaultRerankContentChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRerankTimeout
	}
	return &llmReranker{gen: gen, opts: opts}
}

func (r *llmReranker) Rerank(ctx context.Context, query string, candidates []*model.Candidate) []*model.Candidate {
	if len(candidates) < 2 {
		return candidates
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	out, err := r.gen.Generate(ctx, buildRerankPrompt(query, candidates, r.opts.MaxContentChars))
	if err != nil {
		logutil.GetLogger(ctx).Warn("rerank failed, keep vector order", zap.Error(err))
		return candidates
	}
	order, err := parseRankOrder(out)
	if err != nil {
		logutil.GetLogger(ctx).Warn("rerank output unusable, keep vector order", zap.Error(err))
		return candidates
	}
	perm := applyRankOrder(len(candidates), order)
	ranked := make([]*model.Candidate, 0, len(candidates))
	for _, idx := range perm {
		ranked = append(ranked, candidates[idx])
	}
	return ranked
}

func buildRerankPrompt(query string, candidates []*model.Candidate, maxChars int) string {
	var b strings.Builder
	b.WriteString("You rank saved snippets by how well they answer a question.\n")
	b.WriteString("Return ONLY a JSON array of item numbers, most relevant first, e.g. [2,1,3].\n\n")
	b.WriteString("QUESTION: ")
	b.WriteString(query)
	b.WriteString("\n\nITEMS:\n")
	for i, c := range candidates {
		content := c.Content
		if r := []rune(content); len(r) > maxChars {
			content = string(r[:maxChars])
		}
		fmt.Fprintf(&b, "#%d\nTITLE: %s\nCONTENT:\n%s\n\n", i+1, c.Title, content)
	}
	return b.String()
}

// parseRankOrder extracts the first JSON array in s and returns its integral
// entries as 1-based item numbers. Non-integer entries are dropped.
func parseRankOrder(s string) ([]int, error) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json array in rerank output")
	}
	var raw []interface{}
	if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode rerank output: %w", err)
	}
	order := make([]int, 0, len(raw))
	for _, item := range raw {
		f, ok := item.(float64)
		if !ok || f != math.Trunc(f) {
			continue
		}
		order = append(order, int(f))
	}
	return order, nil
}

// applyRankOrder turns 1-based item numbers into a full 0-based permutation
// of n items. Out of range and repeated numbers are skipped; items never
// mentioned follow in their original order.
func applyRankOrder(n int, order []int) []int {
	seen := make([]bool, n)
	perm := make([]int, 0, n)
	for _, num := range order {
		idx := num - 1
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		perm = append(perm, idx)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			perm = append(perm, i)
		}
	}
	return perm
}
