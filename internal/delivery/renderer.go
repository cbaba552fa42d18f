package delivery

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/croply/fieldreport/internal/report"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Renderer renders report documents to HTML using the embedded template set.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"title": func(s string) string {
			return cases.Title(language.English).String(s)
		},
		"lower":     strings.ToLower,
		"riskColor": riskColor,
	}

	tmpl, err := template.New("reports").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse report templates: %w", err)
	}

	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the HTML body for a document using its template variant.
func (r *Renderer) Render(doc *report.Document) (string, error) {
	name := fmt.Sprintf("report_%s.tmpl", doc.Variant)

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, doc); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// riskColor maps a risk category to its accent color.
func riskColor(category string) string {
	switch category {
	case report.RiskVeryHigh:
		return "#c0392b"
	case report.RiskHigh:
		return "#e67e22"
	case report.RiskMedium:
		return "#f39c12"
	case report.RiskLow:
		return "#27ae60"
	default:
		return "#2e7d32"
	}
}
