package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type Sender interface {
	Send(ctx context.Context, recipients []string, subject string, htmlBody string) error
}

type SendgridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

var _ Sender = (*SendgridSender)(nil)

func NewSendgridSender(apiKey string, fromName string, fromAddress string, appName string) *SendgridSender {
	return &SendgridSender{
		key:        apiKey,
		from:       sgmail.NewEmail(fromName, fromAddress),
		subjPrefix: "[" + appName + "] ",
	}
}

// Send delivers one request with a personalization per recipient, so no
// recipient sees the other addresses.
func (s *SendgridSender) Send(ctx context.Context, recipients []string, subject string, htmlBody string) error {
	if len(recipients) == 0 {
		return nil
	}

	req := sendgrid.GetRequest(s.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(recipients, subject, htmlBody))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("failed to send email: status %d: %s", res.StatusCode, res.Body)
	}
	slog.Default().Debug("email sent", "subject", subject, "recipients", len(recipients))
	return nil
}

func (s *SendgridSender) prepare(recipients []string, subject string, htmlBody string) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	for _, to := range recipients {
		p := sgmail.NewPersonalization()
		p.Subject = s.subjPrefix + subject
		p.AddTos(sgmail.NewEmail("", to))
		m.AddPersonalizations(p)
	}
	m.AddContent(sgmail.NewContent("text/html", htmlBody))
	return m
}
