package output

import (
	"bytes"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// TemplateFormatter formats output using a custom Go text/template. The
// template receives the Result; rows expose .Path and .Cells.
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// NewTemplateFormatter creates a new template formatter with the given template string.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{
		templateStr: templateStr,
	}
}

// SetTemplate sets or updates the template string.
func (f *TemplateFormatter) SetTemplate(templateStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateStr = templateStr
	f.template = nil
}

// templateFuncs are the helpers available to custom templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// {{date .CreatedAt "2006-01-02"}}
		"date": func(t time.Time, layout string) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(layout)
		},
		// {{bytes 1048576}}
		"bytes": func(size int64) string {
			return humanize.IBytes(uint64(size))
		},
		// {{join .Cells ","}}
		"join": strings.Join,
		// {{field . "Failed"}} looks in Meta, then Summary.
		"field": func(r *Result, label string) string {
			for _, fields := range [][]Field{r.Meta, r.Summary} {
				for _, f := range fields {
					if strings.EqualFold(f.Label, label) {
						return f.Value
					}
				}
			}
			return ""
		},
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}
	return f.template.Execute(w, r)
}

const defaultTemplate = `{{range .Rows}}{{join .Cells "\t"}}
{{end}}`

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter(defaultTemplate)
	})
}

// Ensure TemplateFormatter implements Formatter.
var _ Formatter = (*TemplateFormatter)(nil)
