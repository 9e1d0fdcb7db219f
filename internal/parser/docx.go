package parser

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/docjudge/internal/model"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Paragraphs are joined by newline,
// empty paragraphs included so blank-line structure survives.
type DOCXParser struct{}

func (p *DOCXParser) Parse(_ context.Context, r io.Reader, filename string) (*model.Extraction, error) {
	tmp, size, err := spoolTemp(r, "docjudge-docx-*.docx")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	doc, err := parseDocx(tmp, size)
	if err != nil {
		return nil, &MalformedDocumentError{Filename: filename, Err: err}
	}

	var paras []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		paras = append(paras, docxParagraphText(para))
	}

	return &model.Extraction{Text: strings.Join(paras, "\n"), Pages: 1}, nil
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return buf.String()
}

func parseDocx(r io.ReaderAt, size int64) (doc *docx.Docx, err error) {
	defer recoverMalformed("docx", &err)
	return docx.Parse(r, size)
}
