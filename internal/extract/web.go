package extract

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

const (
	WebUserAgent        = "mrecall/1.0 (+personal knowledge ingestion)"
	defaultFetchTimeout = 15 * time.Second
	maxPageBytes        = 10 << 20
)

type WebExtractor struct {
	client *http.Client
}

func NewWebExtractor(timeout time.Duration) *WebExtractor {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &WebExtractor{client: &http.Client{Timeout: timeout}}
}

func (w *WebExtractor) Extract(ctx context.Context, a *model.Artifact) (*Result, error) {
	rawURL := strings.TrimSpace(a.SourceURI)
	if rawURL == "" {
		return nil, appErr.ExtractionFailed("web artifact has no url", false, nil)
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, appErr.ExtractionFailed("invalid url "+rawURL, false, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, appErr.ExtractionFailed("invalid url "+rawURL, false, err)
	}
	req.Header.Set("User-Agent", WebUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, appErr.ExtractionFailed("fetch "+rawURL+" failed", isTransient(err), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, appErr.ExtractionFailed(fmt.Sprintf("fetch %s: %s", rawURL, resp.Status), retryableStatus(resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, appErr.ExtractionFailed("read "+rawURL+" failed", isTransient(err), err)
	}

	var title, text string
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		text = string(body)
	} else {
		title, text, err = parseHTML(body, pageURL)
		if err != nil {
			return nil, appErr.ExtractionFailed("parse html of "+rawURL, false, err)
		}
	}
	text, err = requireMinText("web", text)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = fallbackTitle(a, rawURL)
	}
	logutil.GetLogger(ctx).Debug("web page extracted",
		zap.String("url", rawURL), zap.String("title", title), zap.Int("chars", len(text)))
	return &Result{Title: title, Text: text}, nil
}
