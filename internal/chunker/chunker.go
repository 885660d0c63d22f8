// Package chunker splits text into token-bounded, overlapping windows.
package chunker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/xxxsen/mrecall/internal/model"
)

// DefaultEncoding is the fixed tokenization scheme used for every chunk.
const DefaultEncoding = "cl100k_base"

// Tokenizer maps text to a token stream and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Params bounds one window and the overlap between neighbours.
type Params struct {
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	Overlap   int `json:"overlap" yaml:"overlap"`
}

func (p Params) Validate() error {
	if p.MaxTokens <= 0 {
		return fmt.Errorf("chunk max_tokens must be positive, got %d", p.MaxTokens)
	}
	if p.Overlap < 0 || p.Overlap >= p.MaxTokens {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", p.MaxTokens, p.Overlap)
	}
	return nil
}

var defaultParams = map[model.ArtifactType]Params{
	model.ArtifactTypeWeb:   {MaxTokens: 800, Overlap: 100},
	model.ArtifactTypeAudio: {MaxTokens: 500, Overlap: 80},
	model.ArtifactTypePDF:   {MaxTokens: 700, Overlap: 120},
	model.ArtifactTypeNote:  {MaxTokens: 800, Overlap: 100},
}

// DefaultParams returns the window parameters for an artifact type.
func DefaultParams(t model.ArtifactType) Params {
	if p, ok := defaultParams[t]; ok {
		return p
	}
	return defaultParams[model.ArtifactTypeWeb]
}

// Window is one emitted chunk with its token range [Start, End).
type Window struct {
	Text  string
	Start int
	End   int
}

func (w Window) TokenCount() int {
	return w.End - w.Start
}

// Windows tokenizes text and emits successive windows of p.MaxTokens tokens,
// each starting p.MaxTokens-p.Overlap after the previous one. The last window
// ends at the end of the stream. An empty stream yields no windows.
func Windows(tok Tokenizer, text string, p Params) ([]Window, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	tokens := tok.Encode(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	step := p.MaxTokens - p.Overlap
	out := make([]Window, 0, len(tokens)/step+1)
	for start := 0; start < len(tokens); start += step {
		end := start + p.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, Window{Text: tok.Decode(tokens[start:end]), Start: start, End: end})
		if end == len(tokens) {
			break
		}
	}
	return out, nil
}

// Chunk is Windows without the token ranges.
func Chunk(tok Tokenizer, text string, p Params) ([]string, error) {
	windows, err := Windows(tok, text, p)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(windows))
	for i, w := range windows {
		out[i] = w.Text
	}
	return out, nil
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

var (
	encodingMu    sync.Mutex
	encodingCache = map[string]*tiktoken.Tiktoken{}
)

// BPE ranks ship with the binary so workers never fetch them at runtime.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// NewTiktoken loads a BPE encoding once per process.
func NewTiktoken(encoding string) (Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	encodingMu.Lock()
	defer encodingMu.Unlock()
	if enc, ok := encodingCache[encoding]; ok {
		return &tiktokenTokenizer{enc: enc}, nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	encodingCache[encoding] = enc
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode maps tokens back to text. A window boundary may split a multi-byte
// rune across two tokens; the dangling bytes become U+FFFD.
func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return strings.ToValidUTF8(t.enc.Decode(tokens), "\uFFFD")
}

// WordTokenizer treats each whitespace separated word as one token. It needs
// no vocabulary download and is used where cl100k_base is unavailable.
type WordTokenizer struct {
	mu    sync.Mutex
	vocab []string
	index map[string]int
}

func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{index: map[string]int{}}
}

func (w *WordTokenizer) Encode(text string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	words := strings.Fields(text)
	out := make([]int, len(words))
	for i, word := range words {
		id, ok := w.index[word]
		if !ok {
			id = len(w.vocab)
			w.vocab = append(w.vocab, word)
			w.index[word] = id
		}
		out[i] = id
	}
	return out
}

func (w *WordTokenizer) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	parts := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if id >= 0 && id < len(w.vocab) {
			parts = append(parts, w.vocab[id])
		}
	}
	return strings.Join(parts, " ")
}
