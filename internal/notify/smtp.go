package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/linkup-social/flowkit/workflows"
)

// SMTPConfig holds the mail transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier implements workflows.Notifier over plain SMTP. Delivery is
// at-least-once: a retried step may send the same mail twice, which is the
// documented trade-off for the reminder and digest flows.
type SMTPNotifier struct {
	config SMTPConfig
	auth   smtp.Auth

	// sendMail is swappable for tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ workflows.Notifier = (*SMTPNotifier)(nil)

func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &SMTPNotifier{
		config:   config,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	return n.sendMail(addr, n.auth, n.config.From, []string{to}, []byte(msg.String()))
}
