// Package native renders binary document formats into text that a text-only
// generative model can clean up. It never performs OCR.
package native

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNoTextLayer       = errors.New("pdf has no extractable text layer")
)

// Attachment is a document prepared for a generate call: either rendered text or base64 images.
type Attachment struct {
	Text   string
	Images []string
}

func Render(file domain.FileRef) (Attachment, error) {
	mimeType := normalizeMime(file.MimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return Attachment{Images: []string{base64.StdEncoding.EncodeToString(file.Data)}}, nil
	case mimeType == "application/pdf":
		text, err := PDFText(file.Data)
		return Attachment{Text: text}, err
	case mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		text, err := SpreadsheetText(file.Data)
		return Attachment{Text: text}, err
	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		text, err := DocxText(file.Data)
		return Attachment{Text: text}, err
	case mimeType == "text/html" || mimeType == "application/xhtml+xml":
		text, err := HTMLText(file.Data)
		return Attachment{Text: text}, err
	case strings.HasPrefix(mimeType, "text/") || mimeType == "application/json":
		return Attachment{Text: strings.ToValidUTF8(string(file.Data), "")}, nil
	default:
		return Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, file.MimeType)
	}
}

func PDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", ErrNoTextLayer
	}
	return text, nil
}

// SpreadsheetText renders every sheet as tab-separated rows under a "## <sheet>" heading.
func SpreadsheetText(data []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer book.Close()

	var b strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + sheet + "\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// DocxText reads word/document.xml and keeps the w:t runs, one paragraph per
// line. Table cells are paragraphs too, so their text is kept in reading order.
func DocxText(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	part, err := archive.Open("word/document.xml")
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer part.Close()

	var (
		lines   []string
		current strings.Builder
		inText  bool
	)
	decoder := xml.NewDecoder(part)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br", "cr":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(current.String()); line != "" {
					lines = append(lines, line)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// HTMLText keeps visible text nodes, one block element per line.
func HTMLText(data []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var lines []string
	var current strings.Builder
	flush := func() {
		if line := strings.Join(strings.Fields(current.String()), " "); line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			current.WriteString(n.Data)
			current.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.Data) {
			flush()
		}
	}
	walk(root)
	flush()
	return strings.Join(lines, "\n"), nil
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article", "blockquote", "pre":
		return true
	default:
		return false
	}
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
