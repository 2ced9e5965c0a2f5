// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig holds SMTP notifier settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	UseTLS   bool
	Timeout  time.Duration
}

// EmailNotifier sends alert notifications over SMTP.
type EmailNotifier struct {
	cfg EmailConfig
}

// NewEmailNotifier creates an SMTP email notifier.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &EmailNotifier{cfg: cfg}
}

// Name implements Notifier.
func (n *EmailNotifier) Name() string {
	return "email"
}

// Send implements Notifier.
func (n *EmailNotifier) Send(ctx context.Context, d *Delivery) error {
	return n.sendSMTP(ctx, n.buildMessage(d))
}

func (n *EmailNotifier) buildMessage(d *Delivery) string {
	a := d.Alert

	subject := fmt.Sprintf("[Vigil] %s alert: %s", strings.ToUpper(string(a.Priority)), a.Type)
	if d.Event == EventEscalated {
		subject = fmt.Sprintf("[Vigil] Alert escalated to %s: %s", strings.ToUpper(string(a.Priority)), a.Type)
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: Vigil <%s>\r\n", n.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(n.cfg.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("X-Vigil-Delivery-ID: %s\r\n", d.ID))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")

	msg.WriteString(a.Description)
	msg.WriteString("\r\n\r\n")
	msg.WriteString(fmt.Sprintf("Alert ID:  %d\r\n", a.ID))
	msg.WriteString(fmt.Sprintf("Type:      %s\r\n", a.Type))
	msg.WriteString(fmt.Sprintf("Priority:  %s\r\n", a.Priority))
	if a.SubjectName != "" {
		msg.WriteString(fmt.Sprintf("Subject:   %s\r\n", a.SubjectName))
	}
	if a.Location != "" {
		msg.WriteString(fmt.Sprintf("Location:  %s\r\n", a.Location))
	} else if a.CameraID != "" {
		msg.WriteString(fmt.Sprintf("Camera:    %s\r\n", a.CameraID))
	}
	msg.WriteString(fmt.Sprintf("Raised at: %s\r\n", a.CreatedAt.Format(time.RFC3339)))

	return msg.String()
}

func (n *EmailNotifier) sendSMTP(ctx context.Context, msg string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	dialer := &net.Dialer{Timeout: n.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if n.cfg.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: n.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}

	if n.cfg.Username != "" && n.cfg.Password != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, to := range n.cfg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("set recipient %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open message body: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message body: %w", err)
	}

	return client.Quit()
}
