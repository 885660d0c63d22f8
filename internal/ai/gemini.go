package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiProvider struct {
	apiKey string
	model  string
}

func newGeminiProvider(model string, args interface{}) (*geminiProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api_key missing: %w", ErrUnavailable)
	}
	return &geminiProvider{apiKey: apiKey, model: model}, nil
}

func (p *geminiProvider) client(ctx context.Context) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, appErr.ProviderUnavailable("gemini client init failed", false, err)
	}
	return client, nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return appErr.ProviderUnavailable(
			fmt.Sprintf("gemini request failed: %d %s", apiErr.Code, apiErr.Message),
			retryableStatus(apiErr.Code), err)
	}
	return upstreamError("gemini", err)
}

func (p *geminiProvider) ModelName() string {
	return p.model
}

func (p *geminiProvider) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, geminiError(err)
	}
	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		if emb == nil {
			return nil, malformed("gemini", fmt.Errorf("nil embedding in response"))
		}
		vectors = append(vectors, emb.Values)
	}
	return &EmbedResult{Vectors: vectors, Model: p.model}, nil
}

func (p *geminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		p.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", geminiError(err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

var audioMIME = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"webm": "audio/webm",
	"aac":  "audio/aac",
}

func (p *geminiProvider) Transcribe(ctx context.Context, audio []byte, ext string) (string, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	mime, ok := audioMIME[strings.ToLower(ext)]
	if !ok {
		mime = "audio/wav"
	}
	resp, err := client.Models.GenerateContent(ctx, p.model, []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: "Transcribe this audio verbatim. Return only the transcript."},
			{InlineData: &genai.Blob{MIMEType: mime, Data: audio}},
		},
	}}, nil)
	if err != nil {
		return "", geminiError(err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func init() {
	RegisterEmbed("gemini", func(model string, args interface{}) (IEmbedder, error) {
		if model == "" {
			model = "text-embedding-004"
		}
		return newGeminiProvider(model, args)
	})
	RegisterGenerator("gemini", func(model string, args interface{}) (IGenerator, error) {
		if model == "" {
			model = "gemini-2.0-flash"
		}
		return newGeminiProvider(model, args)
	})
	RegisterTranscriber("gemini", func(model string, args interface{}) (ITranscriber, error) {
		if model == "" {
			model = "gemini-2.0-flash"
		}
		return newGeminiProvider(model, args)
	})
}
