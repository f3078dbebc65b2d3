// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/models"
)

// EmailChannel delivers messages over SMTP.
type EmailChannel struct {
	addr     string
	host     string
	username string
	password string
	useTLS   bool
	from     string
	fromName string
	timeout  time.Duration
}

// NewEmailChannel creates the SMTP channel from delivery configuration.
func NewEmailChannel(cfg config.DeliveryConfig) *EmailChannel {
	host := cfg.SMTPAddr
	if h, _, err := net.SplitHostPort(cfg.SMTPAddr); err == nil {
		host = h
	}
	fromName := cfg.FromName
	if fromName == "" {
		fromName = "Herald"
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmailChannel{
		addr:     cfg.SMTPAddr,
		host:     host,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		useTLS:   cfg.SMTPUseTLS,
		from:     cfg.EmailFrom,
		fromName: fromName,
		timeout:  timeout,
	}
}

func (c *EmailChannel) Name() models.DeliveryChannel { return models.ChannelEmail }

func (c *EmailChannel) SupportsHTML() bool { return true }

func (c *EmailChannel) Validate(recipient models.Recipient) error {
	return ValidateEmail(recipient.Email)
}

// Send builds the MIME message and pushes it through one SMTP session.
// Connection and timeout failures are transient; protocol rejections are not.
func (c *EmailChannel) Send(ctx context.Context, msg *models.Message) error {
	body := c.buildMessage(msg)

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Transient(fmt.Errorf("connect to SMTP server: %w", err))
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		return Transient(fmt.Errorf("create SMTP client: %w", err))
	}
	defer func() { _ = client.Close() }()

	if c.useTLS {
		tlsConfig := &tls.Config{
			ServerName: c.host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return Transient(fmt.Errorf("start TLS: %w", err))
		}
	}

	if c.username != "" && c.password != "" {
		auth := smtp.PlainAuth("", c.username, c.password, c.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(msg.Recipient.Email); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return Transient(fmt.Errorf("start message data: %w", err))
	}
	if _, err := writer.Write([]byte(body)); err != nil {
		return Transient(fmt.Errorf("write message data: %w", err))
	}
	if err := writer.Close(); err != nil {
		return Transient(fmt.Errorf("finish message data: %w", err))
	}

	// A failed QUIT after accepted DATA is not a delivery failure.
	_ = client.Quit()
	return nil
}

// headerValue strips CR and LF from a header value. Subjects are built from
// event text, so a crafted title must not be able to inject extra headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// buildMessage constructs the raw message with headers, multipart when both
// body variants are present.
func (c *EmailChannel) buildMessage(msg *models.Message) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", headerValue(c.fromName), headerValue(c.from)))
	b.WriteString(fmt.Sprintf("To: %s\r\n", headerValue(msg.Recipient.Email)))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", headerValue(msg.Content.Subject)))
	b.WriteString(fmt.Sprintf("X-Herald-Message-ID: %s\r\n", msg.ID))
	b.WriteString(fmt.Sprintf("X-Herald-Message-Type: %s\r\n", msg.Type))
	b.WriteString("MIME-Version: 1.0\r\n")

	text := msg.Content.Body
	if msg.Content.ActionURL != "" {
		text += "\r\n\r\n" + msg.Content.ActionURL
	}
	html := msg.Content.HTMLBody

	switch {
	case html != "" && text != "":
		boundary := fmt.Sprintf("herald_%d", time.Now().UnixNano())
		b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary))

		b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(text)
		b.WriteString("\r\n")

		b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(html)
		b.WriteString("\r\n")

		b.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	case html != "":
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(html)
	default:
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(text)
	}

	return b.String()
}
