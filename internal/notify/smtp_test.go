package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestSMTPNotifier_Send(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{
		Host: "mail.example.com",
		Port: 2525,
		From: "no-reply@linkup.social",
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		if a != nil {
			t.Fatal("no auth expected without a username")
		}
		return nil
	}

	err := n.Send(context.Background(), "grace@example.com", "Hello there", "Line one.\nLine two.\n")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotAddr != "mail.example.com:2525" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if gotFrom != "no-reply@linkup.social" {
		t.Fatalf("from = %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "grace@example.com" {
		t.Fatalf("to = %v", gotTo)
	}

	msg := string(gotMsg)
	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	if !found {
		t.Fatal("message has no header/body separator")
	}
	for _, want := range []string{
		"From: no-reply@linkup.social",
		"To: grace@example.com",
		"Subject: Hello there",
		"Content-Type: text/plain; charset=UTF-8",
	} {
		if !strings.Contains(headers, want) {
			t.Fatalf("headers missing %q:\n%s", want, headers)
		}
	}
	if body != "Line one.\nLine two.\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestSMTPNotifier_AuthFromUsername(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{
		Host:     "mail.example.com",
		Port:     587,
		Username: "mailer",
		Password: "secret",
		From:     "no-reply@linkup.social",
	})
	if n.auth == nil {
		t.Fatal("expected PlainAuth when a username is configured")
	}
}

func TestSMTPNotifier_RespectsCancelledContext(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "mail.example.com", Port: 25})
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("sendMail must not be called with a cancelled context")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, "x@example.com", "s", "b"); err == nil {
		t.Fatal("expected context error")
	}
}
