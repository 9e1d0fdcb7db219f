// Package parser extracts plain text from supported document formats.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docjudge/internal/model"
	"github.com/dgallion1/docjudge/internal/ocr"
	"github.com/rotisserie/eris"
)

// ErrUnsupportedFileType matches any *UnsupportedFileTypeError.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// UnsupportedFileTypeError reports an extension with no extractor.
type UnsupportedFileTypeError struct {
	Ext string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Ext)
}

func (e *UnsupportedFileTypeError) Is(target error) bool {
	return target == ErrUnsupportedFileType
}

// ErrMalformedDocument matches any *MalformedDocumentError.
var ErrMalformedDocument = errors.New("malformed document")

// MalformedDocumentError reports a file of a supported type whose contents
// could not be read.
type MalformedDocumentError struct {
	Filename string
	Err      error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Filename, e.Err)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

func (e *MalformedDocumentError) Is(target error) bool {
	return target == ErrMalformedDocument
}

// recoverMalformed converts a panic raised by a format library into *err.
// It must be deferred directly.
func recoverMalformed(format string, err *error) {
	if r := recover(); r != nil {
		*err = eris.Errorf("malformed %s: %v", format, r)
	}
}

// Parser converts raw document bytes into extracted text.
type Parser interface {
	Parse(ctx context.Context, r io.Reader, filename string) (*model.Extraction, error)
}

// Options tune extraction.
type Options struct {
	UseOCR            bool        // OCR pages that carry no text layer
	OCR               *ocr.Engine // nil disables OCR regardless of UseOCR
	FallbackPdftotext bool        // retry with pdftotext when the PDF library fails
	Log               *slog.Logger
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".pdf":
		return &PDFParser{opts: opts}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, &UnsupportedFileTypeError{Ext: ext}
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExtractText dispatches on the extension of path and extracts its text.
func ExtractText(ctx context.Context, path string, opts Options) (*model.Extraction, error) {
	p, err := ForFile(path, opts)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", filepath.Base(path))
	}
	defer f.Close()

	ext, err := p.Parse(ctx, f, filepath.Base(path))
	if err != nil {
		return nil, eris.Wrapf(err, "extract %s", filepath.Base(path))
	}
	return ext, nil
}

// spoolTemp copies r into a temp file. The PDF and DOCX libraries need
// random access, so uploads are spooled to disk first.
func spoolTemp(r io.Reader, pattern string) (*os.File, int64, error) {
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, 0, eris.Wrap(err, "create temp file")
	}
	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, eris.Wrap(err, "write temp file")
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, eris.Wrap(err, "seek temp file")
	}
	return tmp, size, nil
}
