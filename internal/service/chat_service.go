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
	NoSavedContentMessage = "No saved content found for this user yet."
	FallbackEmptyMessage  = "I don't have any saved information yet to answer that."
	fallbackLead          = "I couldn't use the LLM right now, but here's the most relevant saved snippet:"
)

type ChatResult struct {
	Answer  string             `json:"answer"`
	Sources []*model.Candidate `json:"sources"`
}

type ChatService struct {
	retrieval *RetrievalService
	synth     *ai.Synthesizer
}

func NewChatService(retrieval *RetrievalService, synth *ai.Synthesizer) *ChatService {
	return &ChatService{retrieval: retrieval, synth: synth}
}

// Chat answers query from the user's saved content. Synthesis failures fall
// back to quoting the best snippet.
func (s *ChatService) Chat(ctx context.Context, userID, query string, topK int) (*ChatResult, error) {
	cands, err := s.retrieval.Search(ctx, userID, query, topK)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return &ChatResult{Answer: NoSavedContentMessage, Sources: []*model.Candidate{}}, nil
	}
	if !s.synth.Available() {
		return &ChatResult{Answer: FallbackAnswer(cands), Sources: cands}, nil
	}
	answer, err := s.synth.Answer(ctx, query, cands)
	if err != nil {
		logutil.GetLogger(ctx).Warn("answer synthesis failed, use fallback", zap.String("user_id", userID), zap.Error(err))
		answer = FallbackAnswer(cands)
	}
	return &ChatResult{Answer: answer, Sources: cands}, nil
}

// FallbackAnswer quotes the top candidate verbatim.
func FallbackAnswer(cands []*model.Candidate) string {
	if len(cands) == 0 {
		return FallbackEmptyMessage
	}
	top := cands[0]
	title := strings.TrimSpace(top.Title)
	if title == "" {
		title = "Untitled"
	}
	return fallbackLead + "\n\nFrom: " + title + "\n" + top.Content
}
