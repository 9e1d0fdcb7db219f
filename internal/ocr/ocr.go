// Package ocr recovers text from scanned PDF pages by rasterizing them with
// pdftoppm and reading the images with tesseract.
package ocr

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnavailable is returned when the OCR toolchain is not installed.
var ErrUnavailable = eris.New("ocr tools unavailable")

type Config struct {
	Pdftoppm  string // binary name or path, default "pdftoppm"
	Tesseract string // binary name or path, default "tesseract"
	Lang      string // tesseract language, default "eng"
	DPI       int    // rasterization DPI, default 300
}

// Engine OCRs individual PDF pages.
type Engine struct {
	cfg    Config
	runner Runner
	log    *slog.Logger
}

func NewEngine(cfg Config, runner Runner, log *slog.Logger) *Engine {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if log == nil {
		log = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Log: log}
	}
	return &Engine{cfg: cfg, runner: runner, log: log}
}

// Available reports whether both external tools can be found.
func (e *Engine) Available() bool {
	if e == nil {
		return false
	}
	for _, bin := range []string{e.cfg.Pdftoppm, e.cfg.Tesseract} {
		if _, err := e.runner.LookPath(bin); err != nil {
			e.log.Debug("ocr tool missing", "tool", bin, "error", err)
			return false
		}
	}
	return true
}

// PDFPage renders one page (1-based) of the PDF at path and returns its text.
func (e *Engine) PDFPage(ctx context.Context, path string, page int) (string, error) {
	if !e.Available() {
		return "", ErrUnavailable
	}

	tmpDir, err := os.MkdirTemp("", "docjudge-ocr-*")
	if err != nil {
		return "", eris.Wrap(err, "create ocr temp dir")
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	n := strconv.Itoa(page)
	// pdftoppm -f N -l N -r DPI -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-f", n, "-l", n, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", eris.Wrapf(err, "pdftoppm page %d: %s", page, truncate(string(errb), 200))
	}

	// Output is prefix-N.png with N zero-padded to the document's page count width.
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", eris.Errorf("pdftoppm rendered no image for page %d", page)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, matches[0], "stdout", "-l", e.cfg.Lang)
	if err != nil {
		return "", eris.Wrapf(err, "tesseract page %d: %s", page, truncate(string(errb), 200))
	}
	return strings.TrimSpace(string(out)), nil
}
