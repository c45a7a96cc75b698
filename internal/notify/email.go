package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"

	"github.com/yuin/goldmark"
)

// EmailChannel sends the digest via SMTP: a short text body plus the full
// digest rendered to a standalone HTML attachment. Recipients are handled
// independently; one failed send never blocks the rest.
type EmailChannel struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string

	// sendMail is swappable for tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailChannel(host string, port int, username, password, from string, to []string) *EmailChannel {
	return &EmailChannel{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

func (c *EmailChannel) Name() string { return "email" }

// Deliver renders the digest once and sends one message per recipient. A
// rendering failure aborts this channel only; per-recipient failures are
// collected into a DeliveryError.
func (c *EmailChannel) Deliver(_ context.Context, digest *Digest) error {
	attachment, err := renderHTMLDocument(digest)
	if err != nil {
		return fmt.Errorf("email: render digest: %w", err)
	}

	subject := "ArXiv update"
	body := digest.Header() + "\nSee the summary in the attachment.\n"
	filename := fmt.Sprintf("summary_%s.html", digest.Until.Format("2006_01_02"))

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	auth := smtp.PlainAuth("", c.username, c.password, c.host)

	var failed []RecipientError
	delivered := 0
	for _, recipient := range c.to {
		msg, err := buildMessage(c.from, recipient, subject, body, filename, attachment)
		if err != nil {
			return fmt.Errorf("email: build message: %w", err)
		}
		if err := c.sendMail(addr, auth, c.from, []string{recipient}, msg); err != nil {
			failed = append(failed, RecipientError{Recipient: recipient, Err: err})
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		return &DeliveryError{Channel: c.Name(), Delivered: delivered, Failed: failed}
	}
	return nil
}

// renderHTMLDocument converts the digest's Markdown into a complete HTML
// document suitable as a standalone attachment.
func renderHTMLDocument(digest *Digest) ([]byte, error) {
	var inner bytes.Buffer
	if err := goldmark.Convert([]byte(digest.Markdown()), &inner); err != nil {
		return nil, err
	}

	var doc bytes.Buffer
	doc.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><style>\n")
	doc.WriteString("body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; max-width: 700px; margin: 0 auto; padding: 20px; color: #333; }\n")
	doc.WriteString("h1 { border-bottom: 2px solid #b31b1b; padding-bottom: 10px; }\n")
	doc.WriteString("h2 { color: #16213e; }\n")
	doc.WriteString("</style></head><body>\n")
	doc.Write(inner.Bytes())
	doc.WriteString("\n</body></html>")
	return doc.Bytes(), nil
}

// buildMessage assembles a multipart/mixed MIME message with a plain-text
// body and one base64-encoded HTML attachment.
func buildMessage(from, to, subject, body, filename string, attachment []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", w.Boundary())

	textPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=\"UTF-8\""},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	attachPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("text/html; charset=\"UTF-8\"; name=%q", filename)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", filename)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 0 {
		n := 76
		if len(encoded) < n {
			n = len(encoded)
		}
		if _, err := attachPart.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return nil, err
		}
		encoded = encoded[n:]
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
