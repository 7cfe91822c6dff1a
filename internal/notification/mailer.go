package notification

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"
)

// Mailer sends ticket confirmation emails over SMTP. The QR code goes in as
// an inline PNG attachment referenced from the HTML body.
type Mailer struct {
	cfg    config.EmailConfig
	logger *logger.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg config.EmailConfig, log *logger.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: log, send: smtp.SendMail}
}

// SendTicket emails one attendee their ticket with the QR code attached.
func (m *Mailer) SendTicket(to, name, eventTitle, orderNumber string, qrPNG []byte) error {
	msg, err := m.buildMessage(to, name, eventTitle, orderNumber, qrPNG)
	if err != nil {
		return fmt.Errorf("build ticket email for %s: %w", to, err)
	}

	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort
	auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)

	if err := m.send(addr, auth, m.cfg.FromAddress, []string{to}, msg); err != nil {
		return fmt.Errorf("send ticket email to %s: %w", to, err)
	}

	m.logger.Info("EMAIL", fmt.Sprintf("Sent ticket for order %s to %s", orderNumber, to))
	return nil
}

func (m *Mailer) buildMessage(to, name, eventTitle, orderNumber string, qrPNG []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your ticket for %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/related; boundary=%s\r\n\r\n",
		m.cfg.FromAddress, to, eventTitle, writer.Boundary(),
	)

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	htmlPart, err := writer.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(htmlPart,
		`<html><body>
<p>Hi %s,</p>
<p>Your registration for <strong>%s</strong> is confirmed. Order reference: %s.</p>
<p>Show this QR code at the entrance:</p>
<img src="cid:ticket-qr" alt="Ticket QR code" />
</body></html>`,
		name, eventTitle, orderNumber,
	)

	qrHeader := textproto.MIMEHeader{}
	qrHeader.Set("Content-Type", "image/png")
	qrHeader.Set("Content-Transfer-Encoding", "base64")
	qrHeader.Set("Content-ID", "<ticket-qr>")
	qrHeader.Set("Content-Disposition", `inline; filename="ticket.png"`)
	qrPart, err := writer.CreatePart(qrHeader)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(qrPNG)
	for len(encoded) > 76 {
		fmt.Fprintf(qrPart, "%s\r\n", encoded[:76])
		encoded = encoded[76:]
	}
	fmt.Fprintf(qrPart, "%s\r\n", encoded)

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return append([]byte(headers), buf.Bytes()...), nil
}
