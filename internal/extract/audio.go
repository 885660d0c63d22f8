package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/mrecall/internal/ai"
	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

const (
	minAudioBytes      = 200
	minTranscriptChars = 5
)

type AudioExtractor struct {
	payload     *PayloadLoader
	transcriber ai.ITranscriber
}

// NewAudioExtractor accepts a nil transcriber; extraction then fails with a
// configuration error.
func NewAudioExtractor(payload *PayloadLoader, transcriber ai.ITranscriber) *AudioExtractor {
	return &AudioExtractor{payload: payload, transcriber: transcriber}
}

func (e *AudioExtractor) Extract(ctx context.Context, a *model.Artifact) (*Result, error) {
	if e.transcriber == nil {
		return nil, appErr.Configuration("audio transcription is not configured (ai.transcriber)")
	}
	data, err := e.payload.Load(ctx, a)
	if err != nil {
		return nil, err
	}
	if len(data) < minAudioBytes {
		return nil, appErr.ExtractionFailed(fmt.Sprintf("audio payload too small (%d bytes)", len(data)), false, nil)
	}
	filename := a.MetaString(model.MetaKeyFilename)
	transcript, err := e.transcriber.Transcribe(ctx, data, AudioExtHint(filename, a.MetaString(model.MetaKeyContentType)))
	if err != nil {
		return nil, err
	}
	transcript = strings.TrimSpace(transcript)
	if utf8.RuneCountInString(transcript) < minTranscriptChars {
		return nil, appErr.ExtractionFailed("transcript is empty or too short", false, nil)
	}
	return &Result{Title: fallbackTitle(a, "Audio recording"), Text: transcript}, nil
}

// AudioExtHint picks the file extension passed to the transcription backend.
func AudioExtHint(filename, contentType string) string {
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")); ext != "" && len(ext) <= 6 {
		return ext
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"):
		return "mp3"
	case strings.Contains(ct, "m4a"):
		return "m4a"
	}
	return "wav"
}
