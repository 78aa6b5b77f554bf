package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var ledgerTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"statusClass": func(status string) string {
			return strings.ReplaceAll(strings.ToLower(status), " ", "-")
		},
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/ledger.html")
	if err != nil {
		ledgerTemplate = template.Must(template.New("ledger").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	ledgerTemplate = template.Must(template.New("ledger").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds the rendered ledger.
type TemplateData struct {
	Title       string
	Scope       string
	GeneratedBy string
	GeneratedAt time.Time
	Evidence    []EvidenceRow
	Reports     []ReportRow
	Certified   int
}

type EvidenceRow struct {
	ID         string
	Task       string
	Submitter  string
	Department string
	Submitted  string
	Status     string
	Feedback   string
	SignOff    string
}

type ReportRow struct {
	ID         string
	Submitter  string
	Department string
	Period     string
	Status     string
	FileName   string
}

func RenderLedgerHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := ledgerTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.Scope}} | {{.GeneratedBy}} | {{formatDate .GeneratedAt "Jan 2, 2006"}}</p>
  <h2>Checklist Evidence</h2>
  <ul>{{range .Evidence}}<li>{{.Task}} - {{.Submitter}} - {{.Status}}</li>{{end}}</ul>
  <h2>DMAX Reports</h2>
  <ul>{{range .Reports}}<li>{{.Period}} - {{.Submitter}} - {{.Status}}</li>{{end}}</ul>
</body>
</html>`
