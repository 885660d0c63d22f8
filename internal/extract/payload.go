package extract

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/xxxsen/mrecall/internal/filestore"
	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// PayloadLoader returns the raw upload bytes of an artifact, either from the
// file store (object_key) or hex encoded in metadata.
type PayloadLoader struct {
	store filestore.Store
}

func NewPayloadLoader(store filestore.Store) *PayloadLoader {
	return &PayloadLoader{store: store}
}

func (l *PayloadLoader) Load(ctx context.Context, a *model.Artifact) ([]byte, error) {
	if a.ObjectKey != "" {
		if l.store == nil {
			return nil, appErr.Configuration("artifact payload is in the file store but no file store is configured")
		}
		data, err := filestore.ReadAll(ctx, l.store, a.ObjectKey)
		if err != nil {
			return nil, appErr.ExtractionFailed("read payload "+a.ObjectKey, isTransient(err), err)
		}
		return data, nil
	}
	encoded := strings.TrimSpace(a.MetaString(model.MetaKeyBytes))
	if encoded == "" {
		return nil, appErr.ExtractionFailed("artifact has no payload bytes", false, nil)
	}
	data, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, appErr.ExtractionFailed("artifact payload is not valid hex", false, err)
	}
	return data, nil
}
