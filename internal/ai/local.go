package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

const defaultLocalBaseURL = "http://localhost:11434/v1"

var localStatusPattern = regexp.MustCompile(`status code: (\d{3})`)

// localConfig targets OpenAI-compatible servers such as Ollama or LM Studio.
type localConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

func newLocalLLM(model string, embedding bool, args interface{}) (*lcopenai.LLM, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("local provider requires a model")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		token = "none"
	}
	opts := []lcopenai.Option{lcopenai.WithBaseURL(baseURL), lcopenai.WithToken(token)}
	if embedding {
		opts = append(opts, lcopenai.WithEmbeddingModel(model))
	} else {
		opts = append(opts, lcopenai.WithModel(model))
	}
	return lcopenai.New(opts...)
}

type localEmbedder struct {
	embedder embeddings.Embedder
	model    string
}

func (e *localEmbedder) ModelName() string {
	return e.model
}

func (e *localEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, localError(err)
	}
	return &EmbedResult{Vectors: vectors, Model: e.model}, nil
}

type localGenerator struct {
	llm llms.Model
}

func (g *localGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, llms.WithTemperature(0.2))
	if err != nil {
		return "", localError(err)
	}
	return strings.TrimSpace(out), nil
}

// localError classifies langchaingo failures, which carry the HTTP status only
// in the message text.
func localError(err error) error {
	if err == nil {
		return nil
	}
	retryable := isTransient(err)
	var mapped *llms.Error
	if errors.As(lcopenai.MapError(err), &mapped) {
		switch mapped.Code {
		case llms.ErrCodeRateLimit, llms.ErrCodeTimeout, llms.ErrCodeProviderUnavailable:
			retryable = true
		}
	}
	if m := localStatusPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		retryable = retryableStatus(code)
	}
	return appErr.ProviderUnavailable("local request failed", retryable, err)
}

func createLocalEmbedFactory(model string, args interface{}) (IEmbedder, error) {
	llm, err := newLocalLLM(model, true, args)
	if err != nil {
		return nil, err
	}
	emb, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &localEmbedder{embedder: emb, model: model}, nil
}

func createLocalGeneratorFactory(model string, args interface{}) (IGenerator, error) {
	llm, err := newLocalLLM(model, false, args)
	if err != nil {
		return nil, err
	}
	return &localGenerator{llm: llm}, nil
}

func init() {
	for _, name := range []string{"local", "ollama"} {
		RegisterEmbed(name, createLocalEmbedFactory)
		RegisterGenerator(name, createLocalGeneratorFactory)
	}
}
