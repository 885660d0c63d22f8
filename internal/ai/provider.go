package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnavailable means the provider is not configured (e.g. no credentials).
var ErrUnavailable = errors.New("ai provider unavailable")

// EmbedResult holds one vector per input text, in input order. Dims is 0 only
// when there was nothing to embed.
type EmbedResult struct {
	Vectors [][]float32
	Dims    int
	Model   string
}

type IEmbedder interface {
	Embed(ctx context.Context, texts []string) (*EmbedResult, error)
	ModelName() string
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type ITranscriber interface {
	// Transcribe converts audio to text. ext is a file extension hint
	// such as "mp3" or "wav".
	Transcribe(ctx context.Context, audio []byte, ext string) (string, error)
}

type EmbedFactory func(model string, args interface{}) (IEmbedder, error)
type GeneratorFactory func(model string, args interface{}) (IGenerator, error)
type TranscriberFactory func(model string, args interface{}) (ITranscriber, error)

var (
	registryMu          sync.RWMutex
	embedRegistry       = map[string]EmbedFactory{}
	generatorRegistry   = map[string]GeneratorFactory{}
	transcriberRegistry = map[string]TranscriberFactory{}
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func RegisterEmbed(name string, factory EmbedFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	embedRegistry[key] = factory
	registryMu.Unlock()
}

func RegisterGenerator(name string, factory GeneratorFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	generatorRegistry[key] = factory
	registryMu.Unlock()
}

func RegisterTranscriber(name string, factory TranscriberFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	transcriberRegistry[key] = factory
	registryMu.Unlock()
}

// NewEmbedder builds the configured embedding backend. The returned embedder
// enforces the batch contract regardless of backend.
func NewEmbedder(name, model string, args interface{}) (IEmbedder, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("ai.embedding.provider is required")
	}
	registryMu.RLock()
	factory := embedRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported embedding provider: %s", name)
	}
	e, err := factory(model, args)
	if err != nil {
		return nil, err
	}
	return &checkedEmbedder{next: e, provider: key}, nil
}

func NewGenerator(name, model string, args interface{}) (IGenerator, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, ErrUnavailable
	}
	registryMu.RLock()
	factory := generatorRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported generator provider: %s", name)
	}
	return factory(model, args)
}

func NewTranscriber(name, model string, args interface{}) (ITranscriber, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, ErrUnavailable
	}
	registryMu.RLock()
	factory := transcriberRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported transcriber provider: %s", name)
	}
	return factory(model, args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
