package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/stratum-app/backend/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

type definition struct {
	subject  string // {{var}} placeholders are filled from the variables
	required []string
	body     *template.Template
}

var definitions = map[string]*definition{
	models.EmailTemplatePortalInvite: {
		subject:  "You're invited to the {{organization_name}} owner portal",
		required: []string{"owner_name", "organization_name", "invite_url", "expires_in"},
	},
	models.EmailTemplateLevyNotice: {
		subject:  "Levy notice for lot {{lot_number}}: {{schedule_name}}",
		required: []string{"owner_name", "organization_name", "scheme_name", "schedule_name", "lot_number", "amount", "period_start", "period_end"},
	},
}

func init() {
	for name, def := range definitions {
		def.body = template.Must(template.New(name+".html").Option("missingkey=zero").ParseFS(templateFS, "templates/"+name+".html"))
	}
}

// Rendered is a ready-to-send email.
type Rendered struct {
	Subject string
	HTML    string
}

// Render fills the named template with vars. Missing required variables are an error.
func Render(name string, vars map[string]string) (*Rendered, error) {
	def, ok := definitions[name]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}
	var missing []string
	for _, k := range def.required {
		if strings.TrimSpace(vars[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("template %s missing variables: %s", name, strings.Join(missing, ", "))
	}

	var buf bytes.Buffer
	if err := def.body.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	subject := def.subject
	for k, v := range vars {
		subject = strings.ReplaceAll(subject, "{{"+k+"}}", v)
	}
	return &Rendered{Subject: subject, HTML: buf.String()}, nil
}

// FormatCents renders an amount in cents as dollars, e.g. 123456 -> "$1,234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	dollars := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range dollars {
		if i > 0 && (len(dollars)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}
