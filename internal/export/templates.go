package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
	"unicode"
)

//go:embed templates/*.html
var templateFS embed.FS

var planTemplate = template.Must(
	template.New("plan.html").Funcs(template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"percent": func(f float64) string {
			return fmt.Sprintf("%.0f%%", f*100)
		},
		"check": func(b bool) string {
			if b {
				return "✓"
			}
			return ""
		},
		"lower":       strings.ToLower,
		"statusLabel": StatusLabel,
		"paragraphs":  Paragraphs,
	}).ParseFS(templateFS, "templates/plan.html"),
)

// TemplateData holds data for plan template rendering
type TemplateData struct {
	Plan
	GeneratedAt time.Time
	GeneratedBy string
}

// RenderPlanHTML renders the plan template with provided data
func RenderPlanHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// StatusLabel turns a status value such as "NeedsReview" into "Needs review".
func StatusLabel(status string) string {
	var b strings.Builder
	for i, r := range status {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Paragraphs splits section text on blank lines.
func Paragraphs(content string) []string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(normalized, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}
