package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/mrecall/internal/model"
)

const defaultAnswerTimeout = 60 * time.Second

const answerInstruction = `You are a personal memory assistant. Answer the question using ONLY the saved context below.
Cite the snippets you rely on with their bracket numbers, e.g. [1] or [2][3].
If the context does not contain the answer, say so plainly.`

// Synthesizer writes a cited answer from retrieved snippets.
type Synthesizer struct {
	gen     IGenerator
	timeout time.Duration
}

func NewSynthesizer(gen IGenerator, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = defaultAnswerTimeout
	}
	return &Synthesizer{gen: gen, timeout: timeout}
}

func (s *Synthesizer) Available() bool {
	return s != nil && s.gen != nil
}

func (s *Synthesizer) Answer(ctx context.Context, query string, candidates []*model.Candidate) (string, error) {
	if !s.Available() {
		return "", ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	prompt := answerInstruction + "\n\nCONTEXT:\n" + FormatContext(candidates) + "\n\nQUESTION: " + query
	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("empty answer from generator")
	}
	return out, nil
}

// FormatContext renders candidates as numbered blocks; the numbers are the
// citation markers.
func FormatContext(candidates []*model.Candidate) string {
	blocks := make([]string, 0, len(candidates))
	for i, c := range candidates {
		captured := ""
		if c.CapturedAt != nil {
			captured = c.CapturedAt.UTC().Format(time.RFC3339)
		}
		blocks = append(blocks, fmt.Sprintf("[%d] Title: %s\nURL: %s\nCapturedAt: %s\nContent:\n%s",
			i+1, c.Title, c.SourceURI, captured, c.Content))
	}
	return strings.Join(blocks, "\n---\n")
}
