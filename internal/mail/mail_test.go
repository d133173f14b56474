package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imrishuroy/go-esewa-storefront/internal/events"
)

func TestSMTPSenderComposesMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.test", Port: 2525, Username: "u", Password: "p", From: "shop@test"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if a == nil {
			t.Fatalf("expected auth when username is set")
		}
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	err := s.Send(context.Background(), events.EmailPayload{To: "sita@example.com", Subject: "Activate", HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if gotAddr != "smtp.test:2525" || gotFrom != "shop@test" || len(gotTo) != 1 || gotTo[0] != "sita@example.com" {
		t.Fatalf("unexpected envelope: %s %s %v", gotAddr, gotFrom, gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Activate\r\n") || !strings.HasSuffix(gotMsg, "\r\n\r\n<p>hi</p>") {
		t.Fatalf("unexpected message: %q", gotMsg)
	}
}

func TestSMTPSenderErrors(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.test", Port: 25})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }

	if err := s.Send(context.Background(), events.EmailPayload{}); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
	if err := s.Send(context.Background(), events.EmailPayload{To: "a@b.c"}); err == nil || !strings.Contains(err.Error(), "relay down") {
		t.Fatalf("expected relay error, got %v", err)
	}
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := LogSender{Logger: zap.New(core)}
	if err := s.Send(context.Background(), events.EmailPayload{To: "a@b.c", Subject: "Reset"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if logs.Len() != 1 || logs.All()[0].ContextMap()["subject"] != "Reset" {
		t.Fatalf("expected one log entry, got %+v", logs.All())
	}
}
