// Package email sends plan notifications via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if len(to) == 0 {
		return nil
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-coparent"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// ReviewRequestData feeds the "needs your review" notification.
type ReviewRequestData struct {
	AppName       string
	RecipientName string
	AuthorName    string
	SectionTitle  string
	Note          string
	VersionNumber int
	PlanURL       string
}

// SendReviewRequest tells the other parent that a section changed and is
// waiting for their initials.
func (s *Service) SendReviewRequest(to []string, data ReviewRequestData) error {
	if data.AppName == "" {
		data.AppName = "Parenting Plan"
	}
	subject := fmt.Sprintf("%s updated \"%s\" and needs your review", data.AuthorName, data.SectionTitle)
	html, err := renderTemplate(reviewRequestTemplate, data)
	if err != nil {
		return fmt.Errorf("render review request template: %w", err)
	}
	text := fmt.Sprintf(
		"%s saved version %d of \"%s\" (%s). Please review the section and add your initials if you agree.",
		data.AuthorName, data.VersionNumber, data.SectionTitle, data.Note,
	)
	if data.PlanURL != "" {
		text += "\r\n\r\n" + data.PlanURL
	}
	return s.SendHTMLEmail(to, subject, text, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reviewRequestTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.SectionTitle}} needs your review</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2f6f5e; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2f6f5e; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .note { background: #f3f7f5; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Hi {{if .RecipientName}}{{.RecipientName}}{{else}}there{{end}},</p>

    <p>{{.AuthorName}} saved version {{.VersionNumber}} of <strong>{{.SectionTitle}}</strong>.
    Your initials on this section were cleared until you review the change.</p>

    <div class="note">{{.Note}}</div>
{{if .PlanURL}}
    <p>
        <a href="{{.PlanURL}}" class="button">Review the section</a>
    </p>
{{end}}
    <div class="footer">
        <p>You are receiving this because you are a party to this parenting plan.</p>
    </div>
</body>
</html>`
