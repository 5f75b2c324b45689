package sendgrid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/resilience"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type Options struct {
	APIKey             string
	FromEmail          string
	FromName           string
	ResilienceExecutor *resilience.Executor
}

// Notifier sends summary emails through SendGrid. Without an API key every
// call reports ErrNotificationDisabled.
type Notifier struct {
	sender   mailSender
	from     *mail.Email
	executor *resilience.Executor
}

func New(options Options) *Notifier {
	fromName := options.FromName
	if fromName == "" {
		fromName = "PDF Summarizer"
	}
	n := &Notifier{
		from:     mail.NewEmail(fromName, options.FromEmail),
		executor: options.ResilienceExecutor,
	}
	if strings.TrimSpace(options.APIKey) != "" {
		n.sender = sg.NewSendClient(options.APIKey)
	}
	return n
}

func (n *Notifier) Enabled() bool {
	return n.sender != nil
}

func (n *Notifier) Notify(ctx context.Context, to, subject, body string) error {
	if n.sender == nil {
		return domain.WrapError(domain.ErrNotificationDisabled, "sendgrid send", errors.New("SENDGRID_API_KEY not configured"))
	}

	htmlBody, err := renderHTML(subject, body)
	if err != nil {
		return domain.WrapError(domain.ErrNotification, "render email", err)
	}
	message := mail.NewSingleEmail(n.from, subject, mail.NewEmail("", to), body, htmlBody)

	call := func(callCtx context.Context) error {
		resp, err := n.sender.SendWithContext(callCtx, message)
		if err != nil {
			return fmt.Errorf("sendgrid request: %w", err)
		}
		if resp.StatusCode >= 300 {
			return &StatusError{StatusCode: resp.StatusCode, Body: truncate(resp.Body, 512)}
		}
		return nil
	}

	if n.executor != nil {
		err = n.executor.Execute(ctx, "sendgrid.send", call, classifySendError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.WrapError(domain.ErrNotification, "sendgrid send", err)
	}
	return nil
}

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sendgrid status %d: %s", e.StatusCode, e.Body)
}

func classifySendError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<h2>{{.Title}}</h2>
{{range .Paragraphs}}<p>{{range $i, $line := .}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
{{end}}</body>
</html>`))

func renderHTML(title, body string) (string, error) {
	var paragraphs [][]string
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		paragraphs = append(paragraphs, strings.Split(block, "\n"))
	}

	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Title      string
		Paragraphs [][]string
	}{Title: title, Paragraphs: paragraphs})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
