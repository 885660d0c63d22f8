package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

type PDFExtractor struct {
	payload *PayloadLoader
}

func NewPDFExtractor(payload *PayloadLoader) *PDFExtractor {
	return &PDFExtractor{payload: payload}
}

func (e *PDFExtractor) Extract(ctx context.Context, a *model.Artifact) (*Result, error) {
	data, err := e.payload.Load(ctx, a)
	if err != nil {
		return nil, err
	}
	text, err := pdfText(ctx, data)
	if err != nil {
		return nil, appErr.ExtractionFailed("read pdf", false, err)
	}
	text, err = requireMinText("pdf", text)
	if err != nil {
		return nil, err
	}
	return &Result{Title: fallbackTitle(a, "PDF document"), Text: text}, nil
}

// pdfText joins the text of every non-empty page with a blank line.
func pdfText(ctx context.Context, content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, err := page.GetPlainText(nil)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip unreadable pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}
		if pt = strings.TrimSpace(pt); pt != "" {
			pages = append(pages, pt)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
