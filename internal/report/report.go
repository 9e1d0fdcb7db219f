// Package report renders a DocumentJudgment for people and other tools.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/dgallion1/docjudge/internal/pipeline"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// Format names an output encoding.
type Format string

const (
	JSON     Format = "json"
	YAML     Format = "yaml"
	Markdown Format = "markdown"
	HTML     Format = "html"
)

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = eris.New("unknown report format")

// ParseFormat accepts a format name case-insensitively; "md" and "yml" are
// aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "markdown", "md":
		return Markdown, nil
	case "html":
		return HTML, nil
	}
	return "", eris.Wrapf(ErrUnknownFormat, "%q", s)
}

// Render writes j to w in the given format.
func Render(w io.Writer, j *pipeline.DocumentJudgment, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return eris.Wrap(enc.Encode(j), "encode json")
	case YAML:
		return renderYAML(w, j)
	case Markdown:
		_, err := io.WriteString(w, ToMarkdown(j))
		return eris.Wrap(err, "write markdown")
	case HTML:
		return renderHTML(w, j)
	}
	return eris.Wrapf(ErrUnknownFormat, "%q", f)
}

// renderYAML goes through JSON so custom marshalers and json tags decide
// the field names.
func renderYAML(w io.Writer, j *pipeline.DocumentJudgment) error {
	b, err := json.Marshal(j)
	if err != nil {
		return eris.Wrap(err, "encode judgment")
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return eris.Wrap(err, "decode judgment")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return eris.Wrap(enc.Close(), "close yaml encoder")
}

// ToMarkdown formats the judgment as a Markdown report.
func ToMarkdown(j *pipeline.DocumentJudgment) string {
	var b strings.Builder
	title := j.Metadata.Filename
	if title == "" {
		title = "document"
	}
	fmt.Fprintf(&b, "# Document judgment: %s\n\n", title)
	fmt.Fprintf(&b, "- **Recommendation:** %s\n", j.Recommendation)
	fmt.Fprintf(&b, "- **Score:** %.2f\n", j.Score)
	fmt.Fprintf(&b, "- **Confidence:** %.2f\n", j.Confidence)
	fmt.Fprintf(&b, "- **Need full read:** %s\n", yesNo(j.NeedFullRead))
	fmt.Fprintf(&b, "- **Backend:** %s\n\n", j.Backend)

	b.WriteString("## Summary\n\n")
	if j.DocSummary != "" {
		b.WriteString(j.DocSummary)
	} else {
		b.WriteString("_No document summary._")
	}
	fmt.Fprintf(&b, "\n\nDocument confidence: %.2f\n\n", j.DocConfidence)

	writeList(&b, "Insights", j.Insights)
	writeList(&b, "Uncertainties", j.Uncertainties)
	writeList(&b, "Read reasons", j.ReadReasons)

	b.WriteString("## Topics\n\n")
	if len(j.Topics) == 0 {
		b.WriteString("_None._\n\n")
	} else {
		quoted := make([]string, len(j.Topics))
		for i, t := range j.Topics {
			quoted[i] = "`" + strings.ReplaceAll(t, "`", "'") + "`"
		}
		b.WriteString(strings.Join(quoted, ", ") + "\n\n")
	}

	b.WriteString("## Chunks\n\n")
	for _, c := range j.Chunks {
		fmt.Fprintf(&b, "### Chunk %d", c.ChunkID)
		if c.Degraded {
			b.WriteString(" (degraded)")
		}
		b.WriteString("\n\n")
		if c.Summary != "" {
			b.WriteString(c.Summary + "\n\n")
		}
		if errMark, ok := c.KeyInfo["error"].(string); ok {
			fmt.Fprintf(&b, "Key info unavailable: `%s`\n\n", errMark)
		}
	}

	m := j.Metadata
	b.WriteString("## Metadata\n\n| Field | Value |\n|---|---|\n")
	rows := [][2]string{
		{"Extension", m.Extension},
		{"Size (bytes)", fmt.Sprint(m.SizeBytes)},
		{"Pages", fmt.Sprint(m.Pages)},
		{"OCR used", yesNo(m.OCRUsed)},
		{"Characters", fmt.Sprint(m.CharCount)},
		{"Chunks", fmt.Sprintf("%d (size %d, overlap %d)", m.ChunkCount, m.ChunkSize, m.ChunkOverlap)},
		{"Estimated tokens", fmt.Sprint(m.EstimatedTokens)},
		{"SHA-256", m.ContentHash},
		{"Run", j.RunID},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", r[0], strings.ReplaceAll(r[1], "|", "\\|"))
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	fmt.Fprintf(b, "## %s\n\n", heading)
	if len(items) == 0 {
		b.WriteString("_None._\n\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", strings.ReplaceAll(it, "\n", " "))
	}
	b.WriteString("\n")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<main class="docjudge-report">
{{.Body}}
</main>
</body>
</html>
`))

// renderHTML converts the Markdown report and sanitizes the result, since
// summaries and insights are model output.
func renderHTML(w io.Writer, j *pipeline.DocumentJudgment) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert([]byte(ToMarkdown(j)), &buf); err != nil {
		return eris.Wrap(err, "render markdown")
	}
	clean := bluemonday.UGCPolicy().SanitizeBytes(buf.Bytes())

	err := page.Execute(w, struct {
		Title string
		Body  template.HTML
	}{
		Title: "Document judgment: " + j.Metadata.Filename,
		Body:  template.HTML(clean),
	})
	return eris.Wrap(err, "write html")
}
