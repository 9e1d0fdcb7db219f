package parser

import (
	"context"
	"io"
	"strings"

	"github.com/dgallion1/docjudge/internal/model"
	"github.com/rotisserie/eris"
)

// TextParser handles UTF-8 plain text files.
type TextParser struct{}

func (p *TextParser) Parse(_ context.Context, r io.Reader, filename string) (*model.Extraction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", filename)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	return &model.Extraction{Text: text, Pages: 1}, nil
}
