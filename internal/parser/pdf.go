package parser

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/docjudge/internal/model"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// PDFParser extracts the text layer page by page. Pages with no text are
// OCRed when enabled and the OCR tools are present; otherwise they stay blank.
type PDFParser struct {
	opts Options
}

func (p *PDFParser) Parse(ctx context.Context, r io.Reader, filename string) (*model.Extraction, error) {
	tmp, _, err := spoolTemp(r, "docjudge-pdf-*.pdf")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	pages, err := extractPDFPages(tmpPath)
	if err != nil && p.opts.FallbackPdftotext {
		if p.opts.Log != nil {
			p.opts.Log.Warn("pdf library failed, trying pdftotext", "file", filename, "error", err)
		}
		pages, err = extractPdftotext(ctx, tmpPath)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &MalformedDocumentError{Filename: filename, Err: err}
	}

	ocrOK := p.opts.UseOCR && p.opts.OCR.Available()
	out := &model.Extraction{Pages: len(pages)}
	for i, text := range pages {
		if strings.TrimSpace(text) != "" || !ocrOK {
			continue
		}
		recovered, err := p.opts.OCR.PDFPage(ctx, tmpPath, i+1)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if p.opts.Log != nil {
				p.opts.Log.Warn("ocr failed, page left blank", "file", filename, "page", i+1, "error", err)
			}
			continue
		}
		pages[i] = recovered
		out.OCRUsed = true
	}

	out.Text = strings.Join(pages, "\n")
	return out, nil
}

// extractPDFPages returns the text of every page. The pdf library panics on
// malformed objects; that surfaces here as an error.
func extractPDFPages(path string) (pages []string, err error) {
	defer recoverMalformed("pdf", &err)

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages = make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

func extractPdftotext(ctx context.Context, path string) ([]string, error) {
	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-").Output()
	if err != nil {
		return nil, eris.Wrap(err, "pdftotext")
	}
	pages := strings.Split(strings.TrimSuffix(string(out), "\f"), "\f")
	return pages, nil
}
