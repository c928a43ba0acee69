package email

import (
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/smtp"
	"regexp"
	"strings"
	"time"

	"git.quorum.forum/qf/qf/src/config"
	"git.quorum.forum/qf/qf/src/oops"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"
)

// Sender delivers notification email. The content core only composes messages;
// anything beyond handing them to a mailer (digest batching, bounce handling)
// lives elsewhere.
type Sender interface {
	Send(ctx context.Context, subject string, contentHTML string, recipients []Recipient) error
}

type Recipient struct {
	Address string
	Name    string
}

var EmailRegex = regexp.MustCompile(`^[^:\p{Cc} ]+@[^:\p{Cc} ]+\.[^:\p{Cc} ]+$`)

func IsEmail(address string) bool {
	return EmailRegex.Match([]byte(address))
}

// SMTPSender sends through the configured SMTP relay, one message per
// recipient. Transient failures are retried with exponential backoff, and a
// rate limiter keeps us under the relay's sending cap.
type SMTPSender struct {
	limiter *rate.Limiter
}

var _ Sender = &SMTPSender{}

func NewSMTPSender() *SMTPSender {
	perSecond := config.Config.Email.PerSecondLimit
	if perSecond <= 0 {
		perSecond = 10
	}
	return &SMTPSender{
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

const maxSendAttempts = 3

func (s *SMTPSender) Send(ctx context.Context, subject string, contentHTML string, recipients []Recipient) error {
	for _, recipient := range recipients {
		if err := s.limiter.Wait(ctx); err != nil {
			return oops.New(err, "canceled while waiting to send email")
		}

		b := &backoff.Backoff{
			Min:    500 * time.Millisecond,
			Max:    10 * time.Second,
			Jitter: true,
		}
		var lastErr error
		for attempt := 0; attempt < maxSendAttempts; attempt++ {
			lastErr = sendMail(recipient.Address, recipient.Name, subject, contentHTML)
			if lastErr == nil {
				break
			}
			select {
			case <-ctx.Done():
				return oops.New(ctx.Err(), "canceled while retrying email send")
			case <-time.After(b.Duration()):
			}
		}
		if lastErr != nil {
			return oops.New(lastErr, "failed to send email to %s", recipient.Address)
		}
	}
	return nil
}

func sendMail(toAddress, toName, subject, contentHTML string) error {
	if config.Config.Email.ForceToAddress != "" {
		toAddress = config.Config.Email.ForceToAddress
	}
	contents := prepMailContents(
		makeHeaderAddress(toAddress, toName),
		makeHeaderAddress(config.Config.Email.FromAddress, config.Config.Email.FromName),
		subject,
		contentHTML,
	)
	return smtp.SendMail(
		fmt.Sprintf("%s:%d", config.Config.Email.ServerAddress, config.Config.Email.ServerPort),
		smtp.PlainAuth("", config.Config.Email.MailerUsername, config.Config.Email.MailerPassword, config.Config.Email.ServerAddress),
		config.Config.Email.FromAddress,
		[]string{toAddress},
		contents,
	)
}

func makeHeaderAddress(email, fullname string) string {
	if fullname != "" {
		encoded := mime.BEncoding.Encode("utf-8", fullname)
		if encoded == fullname {
			encoded = strings.ReplaceAll(encoded, `"`, `\"`)
			encoded = fmt.Sprintf("\"%s\"", encoded)
		}
		return fmt.Sprintf("%s <%s>", encoded, email)
	} else {
		return email
	}
}

func prepMailContents(toLine string, fromLine string, subject string, contentHTML string) []byte {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("To: %s\r\n", toLine))
	builder.WriteString(fmt.Sprintf("From: %s\r\n", fromLine))
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	builder.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	builder.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	builder.WriteString("\r\n")
	writer := quotedprintable.NewWriter(&builder)
	writer.Write([]byte(contentHTML))
	writer.Close()
	builder.WriteString("\r\n")

	return []byte(builder.String())
}
