// Package extract turns artifacts into a title and plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// MinTextChars is the shortest web, pdf or note text accepted as a document.
const MinTextChars = 50

type Result struct {
	Title string
	Text  string
}

type Extractor interface {
	Extract(ctx context.Context, a *model.Artifact) (*Result, error)
}

// Set dispatches to the extractor registered for an artifact's type.
type Set struct {
	byType map[model.ArtifactType]Extractor
}

func NewSet() *Set {
	return &Set{byType: make(map[model.ArtifactType]Extractor)}
}

func (s *Set) Register(t model.ArtifactType, e Extractor) *Set {
	s.byType[t] = e
	return s
}

func (s *Set) Extract(ctx context.Context, a *model.Artifact) (*Result, error) {
	e, ok := s.byType[a.Type]
	if !ok {
		return nil, appErr.ExtractionFailed(fmt.Sprintf("no extractor for artifact type %q", a.Type), false, nil)
	}
	return e.Extract(ctx, a)
}

func requireMinText(kind, text string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTextChars {
		return "", appErr.ExtractionFailed(
			fmt.Sprintf("%s extraction yielded too little text (%d chars)", kind, utf8.RuneCountInString(text)), false, nil)
	}
	return text, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}

func fallbackTitle(a *model.Artifact, def string) string {
	if t := strings.TrimSpace(a.MetaString(model.MetaKeyTitle)); t != "" {
		return t
	}
	if f := strings.TrimSpace(a.MetaString(model.MetaKeyFilename)); f != "" {
		return f
	}
	if a.SourceURI != "" {
		return a.SourceURI
	}
	return def
}
