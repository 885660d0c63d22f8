package extract

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/mrecall/internal/model"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// NoteExtractor reads markdown stored in metadata["content"].
type NoteExtractor struct {
	md goldmark.Markdown
}

func NewNoteExtractor() *NoteExtractor {
	return &NoteExtractor{md: goldmark.New()}
}

func (e *NoteExtractor) Extract(ctx context.Context, a *model.Artifact) (*Result, error) {
	_ = ctx
	source := a.MetaString(model.MetaKeyContent)
	if strings.TrimSpace(source) == "" {
		return nil, appErr.ExtractionFailed("note artifact has no content", false, nil)
	}
	heading, body := e.render([]byte(source))
	body, err := requireMinText("note", body)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(a.MetaString(model.MetaKeyTitle))
	if title == "" {
		title = heading
	}
	if title == "" {
		title = "Untitled note"
	}
	return &Result{Title: title, Text: body}, nil
}

// render strips markdown syntax, keeping one line per block, and returns the
// first heading alongside the text.
func (e *NoteExtractor) render(src []byte) (string, string) {
	doc := e.md.Parser().Parse(text.NewReader(src))
	var heading string
	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering && heading == "" {
				heading = strings.TrimSpace(string(node.Text(src)))
			}
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				return ast.WalkSkipChildren, nil
			}
		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(src))
			}
		}
		if !entering && n.Type() == ast.TypeBlock {
			b.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return heading, strings.Join(out, "\n")
}
