package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const standardPrompt = `Extract the text content of the attached document.
Return only the raw extracted text, with no commentary, no markdown fences and no summary.
Perform OCR where text is only available as an image.
Preserve paragraph breaks.
Ignore page numbers, running headers and footers, and other page furniture.`

const deepPrompt = `Extract every piece of text from the attached document, including text inside images,
diagrams, stamps, tables and handwriting. Perform OCR wherever needed.
Return only the raw extracted text, with no commentary, no markdown fences and no summary.
Preserve paragraph breaks.`

// Adapter decodes plain text locally and delegates every other format to a generative-document service.
type Adapter struct {
	generator ports.DocumentGenerator
}

func New(generator ports.DocumentGenerator) *Adapter {
	return &Adapter{generator: generator}
}

func (a *Adapter) Extract(ctx context.Context, file domain.FileRef, mode domain.ExtractionMode) (string, error) {
	var text string
	if IsPlainText(file.MimeType) {
		text = strings.ToValidUTF8(string(file.Data), "")
	} else {
		generated, err := a.generate(ctx, file, mode)
		if err != nil {
			return "", err
		}
		text = generated
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.WrapError(domain.ErrExtractionEmpty, "extract text", fmt.Errorf("%s produced no text", file.Name))
	}
	return text, nil
}

func (a *Adapter) generate(ctx context.Context, file domain.FileRef, mode domain.ExtractionMode) (string, error) {
	if a.generator == nil {
		return "", domain.WrapError(domain.ErrExtractionUnavailable, "extract text", errors.New("no document service configured"))
	}
	text, err := a.generator.Generate(ctx, PromptFor(mode), file)
	if err != nil {
		if domain.IsKind(err, domain.ErrExtractionUnavailable) {
			return "", err
		}
		return "", domain.WrapError(domain.ErrExtractionUnavailable, "extract text", err)
	}
	return text, nil
}

func PromptFor(mode domain.ExtractionMode) string {
	if mode == domain.ExtractionDeep {
		return deepPrompt
	}
	return standardPrompt
}

// IsPlainText reports whether the MIME type is decoded locally without the document service.
func IsPlainText(mimeType string) bool {
	switch baseMime(mimeType) {
	case "text/plain", "text/markdown", "text/x-markdown", "text/csv":
		return true
	default:
		return false
	}
}

func baseMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
