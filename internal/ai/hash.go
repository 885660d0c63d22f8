package ai

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"
)

const defaultHashDims = 384

type hashConfig struct {
	Dims int `json:"dims"`
}

// hashEmbedder derives unit vectors from blake2b digests. Equal texts map to
// equal vectors, which makes it usable offline and in tests.
type hashEmbedder struct {
	dims  int
	model string
}

func NewHashEmbedder(dims int) IEmbedder {
	if dims <= 0 {
		dims = defaultHashDims
	}
	return &hashEmbedder{dims: dims, model: fmt.Sprintf("hash-%d", dims)}
}

func (h *hashEmbedder) ModelName() string {
	return h.model
}

func (h *hashEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors = append(vectors, h.vector(text))
	}
	return &EmbedResult{Vectors: vectors, Dims: h.dims, Model: h.model}, nil
}

func (h *hashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dims)
	buf := make([]byte, 4+len(text))
	copy(buf[4:], text)
	var norm float64
	for block := 0; block*16 < h.dims; block++ {
		binary.BigEndian.PutUint32(buf[:4], uint32(block))
		sum := blake2b.Sum512(buf)
		for j := 0; j < 16 && block*16+j < h.dims; j++ {
			u := binary.BigEndian.Uint32(sum[j*4 : j*4+4])
			v := float64(u)/float64(math.MaxUint32)*2 - 1
			vec[block*16+j] = float32(v)
			norm += v * v
		}
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec
}

func init() {
	RegisterEmbed("hash", func(model string, args interface{}) (IEmbedder, error) {
		cfg := &hashConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		return NewHashEmbedder(cfg.Dims), nil
	})
}
