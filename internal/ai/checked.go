package ai

import (
	"context"
	"fmt"

	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// checkedEmbedder guards the embedding contract: empty input returns an empty
// result, and every backend answer must have one vector per text, all of the
// same non-zero length.
type checkedEmbedder struct {
	next     IEmbedder
	provider string
}

func (c *checkedEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if len(texts) == 0 {
		return &EmbedResult{Model: c.next.ModelName()}, nil
	}
	res, err := c.next.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Vectors) != len(texts) {
		got := 0
		if res != nil {
			got = len(res.Vectors)
		}
		return nil, appErr.ProviderUnavailable(
			fmt.Sprintf("%s returned %d vectors for %d texts", c.provider, got, len(texts)), false, nil)
	}
	dims := len(res.Vectors[0])
	if dims == 0 {
		return nil, appErr.ProviderUnavailable(c.provider+" returned an empty vector", false, nil)
	}
	for i, v := range res.Vectors {
		if len(v) != dims {
			return nil, appErr.ProviderUnavailable(
				fmt.Sprintf("%s returned vector %d with %d dims, expected %d", c.provider, i, len(v), dims), false, nil)
		}
	}
	res.Dims = dims
	if res.Model == "" {
		res.Model = c.next.ModelName()
	}
	return res, nil
}

func (c *checkedEmbedder) ModelName() string {
	return c.next.ModelName()
}
