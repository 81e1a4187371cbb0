package report

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// SendGridSink e-mails the rendered PDF through the SendGrid v3 API and,
// when an Archiver is set, keeps a copy of every sent report.
type SendGridSink struct {
	APIKey    string
	Host      string // empty means https://api.sendgrid.com
	FromName  string
	FromEmail string
	Archiver  Archiver
	Logger    *zap.Logger
}

func (s *SendGridSink) Deliver(ctx context.Context, r Report, destination string) error {
	if s.APIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is not set")
	}
	pdf, err := RenderPDF(r)
	if err != nil {
		return err
	}

	from := mail.NewEmail(s.FromName, s.FromEmail)
	to := mail.NewEmail("", destination)
	message := mail.NewV3MailInit(from, r.Subject(), to, mail.NewContent("text/plain", Body))

	attachment := mail.NewAttachment()
	attachment.SetContent(base64.StdEncoding.EncodeToString(pdf))
	attachment.SetType("application/pdf")
	attachment.SetFilename(r.Filename())
	attachment.SetDisposition("attachment")
	message.AddAttachment(attachment)

	host := s.Host
	if host == "" {
		host = "https://api.sendgrid.com"
	}
	request := sendgrid.GetRequest(s.APIKey, "/v3/mail/send", host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		s.logger().Error("[Deliver] sendgrid request failed", zap.String("to", destination), zap.Error(err))
		return fmt.Errorf("send report: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger().Error("[Deliver] sendgrid API error",
			zap.Int("status", response.StatusCode), zap.String("body", response.Body))
		return fmt.Errorf("send report: sendgrid returned status %d", response.StatusCode)
	}
	s.logger().Info("[Deliver] report sent",
		zap.Int("user_id", r.UserID), zap.String("file", r.Filename()), zap.Int("status", response.StatusCode))

	if s.Archiver != nil {
		// The mail is already out, so archive errors are only logged.
		if err := s.Archiver.Archive(ctx, r.ArchiveKey(), pdf); err != nil {
			s.logger().Warn("[Deliver] archive failed", zap.String("key", r.ArchiveKey()), zap.Error(err))
		}
	}
	return nil
}

func (s *SendGridSink) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
