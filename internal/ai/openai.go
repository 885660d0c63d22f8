package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAITimeout = 60 * time.Second
)

type openAIConfig struct {
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec"`
}

type openAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func newOpenAIClient(args interface{}) (*openAIClient, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api_key missing: %w", ErrUnavailable)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := defaultOpenAITimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	return &openAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *openAIClient) do(ctx context.Context, path, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	resp, err := c.client.Do(req)
	if err != nil {
		return upstreamError("openai", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return statusError("openai", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformed("openai", err)
	}
	return nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

type openAIEmbedder struct {
	*openAIClient
	model string
}

func (p *openAIEmbedder) ModelName() string {
	return p.model
}

func (p *openAIEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	data, err := json.Marshal(openAIEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}
	var out openAIEmbedResponse
	if err := p.do(ctx, "/embeddings", "application/json", data, &out); err != nil {
		return nil, err
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, 0, len(out.Data))
	for _, item := range out.Data {
		vectors = append(vectors, item.Embedding)
	}
	return &EmbedResult{Vectors: vectors, Model: p.model}, nil
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIGenerator struct {
	*openAIClient
	model string
}

func (p *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	data, err := json.Marshal(openAIChatRequest{
		Model:       p.model,
		Messages:    []openAIChatMsg{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	var out openAIChatResponse
	if err := p.do(ctx, "/chat/completions", "application/json", data, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", malformed("openai", fmt.Errorf("response has no choices"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

type openAITranscriber struct {
	*openAIClient
	model string
}

func (p *openAITranscriber) Transcribe(ctx context.Context, audio []byte, ext string) (string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("model", p.model); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", "upload."+ext)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := p.do(ctx, "/audio/transcriptions", w.FormDataContentType(), buf.Bytes(), &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

func createOpenAIEmbedFactory(model string, args interface{}) (IEmbedder, error) {
	c, err := newOpenAIClient(args)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &openAIEmbedder{openAIClient: c, model: model}, nil
}

func createOpenAIGeneratorFactory(model string, args interface{}) (IGenerator, error) {
	c, err := newOpenAIClient(args)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openAIGenerator{openAIClient: c, model: model}, nil
}

func createOpenAITranscriberFactory(model string, args interface{}) (ITranscriber, error) {
	c, err := newOpenAIClient(args)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "whisper-1"
	}
	return &openAITranscriber{openAIClient: c, model: model}, nil
}

func init() {
	RegisterEmbed("openai", createOpenAIEmbedFactory)
	RegisterGenerator("openai", createOpenAIGeneratorFactory)
	RegisterTranscriber("openai", createOpenAITranscriberFactory)
}
