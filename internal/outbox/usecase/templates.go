package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	apperrors "github.com/allisson/identity/internal/errors"
	"github.com/allisson/identity/internal/outbox/domain"
)

const invitationTemplate = "invitation"

//go:embed templates/*.html
var templatesFS embed.FS

var emailTemplates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// ErrUnknownTemplate indicates a notification.email.* payload named a template that does not exist.
var ErrUnknownTemplate = apperrors.Wrap(apperrors.ErrInvalidInput, "unknown email template")

var emailSubjects = map[string]string{
	domain.TemplatePasswordReset:     "Reset your password",
	domain.TemplateEmailVerification: "Verify your email address",
}

func renderTemplate(name string, data any) (string, error) {
	tmpl := emailTemplates.Lookup(name + ".html")
	if tmpl == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", apperrors.Wrap(err, "failed to render email template")
	}
	return buf.String(), nil
}
