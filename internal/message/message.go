// Package message parses raw RFC 5322 messages with go-message.
package message

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/nhle/mailctl/internal/backend"
)

// Body holds the readable parts of a message.
type Body struct {
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type"`
}

func createReader(raw []byte) (*mail.Reader, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
		return nil, err
	}
	return mr, nil
}

// ParseEnvelope builds a native envelope from a raw message. Flags are left
// to the caller.
func ParseEnvelope(id string, raw []byte) (backend.Envelope, error) {
	mr, err := createReader(raw)
	if err != nil {
		return backend.Envelope{}, fmt.Errorf("parsing message %s: %w", id, err)
	}
	defer mr.Close()

	env := envelopeFromHeader(id, mr.Header)
	env.HasAttachment = hasAttachment(mr)
	return env, nil
}

func envelopeFromHeader(id string, h mail.Header) backend.Envelope {
	env := backend.Envelope{ID: id}

	env.Subject, _ = h.Subject()
	env.MessageID, _ = h.MessageID()
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		env.InReplyTo = ids[0]
	}
	if date, err := h.Date(); err == nil {
		env.Date = date
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		env.From = backend.Address{Name: from[0].Name, Addr: from[0].Address}
	}
	if to, err := h.AddressList("To"); err == nil && len(to) > 0 {
		env.To = backend.Address{Name: to[0].Name, Addr: to[0].Address}
	}
	return env
}

func hasAttachment(mr *mail.Reader) bool {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return false
		}
		if _, ok := part.Header.(*mail.AttachmentHeader); ok {
			return true
		}
	}
}

// ParseBody parses a raw RFC 2822 message using go-message and extracts
// the text/plain body, text/html body, and attachment metadata.
func ParseBody(raw []byte) Body {
	mr, err := createReader(raw)
	if err != nil {
		// If parsing fails, treat the whole thing as plain text
		return Body{TextBody: string(raw)}
	}
	defer mr.Close()

	var body Body
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				body.TextBody = string(data)
			case strings.HasPrefix(contentType, "text/html"):
				body.HTMLBody = string(data)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			// Read to get size without storing content
			n, readErr := io.Copy(io.Discard, part.Body)
			if readErr != nil {
				continue
			}

			body.Attachments = append(body.Attachments, Attachment{
				Filename: filename,
				Size:     n,
				MIMEType: contentType,
			})
		}
	}

	return body
}

// Addresses returns the envelope sender and recipients of a raw message,
// taken from the From, To, Cc and Bcc headers.
func Addresses(raw []byte) (string, []string, error) {
	mr, err := createReader(raw)
	if err != nil {
		return "", nil, fmt.Errorf("parsing message headers: %w", err)
	}
	defer mr.Close()

	from, err := mr.Header.AddressList("From")
	if err != nil {
		return "", nil, fmt.Errorf("parsing From header: %w", err)
	}
	if len(from) == 0 {
		return "", nil, errors.New("message has no From address")
	}

	var rcpts []string
	for _, key := range []string{"To", "Cc", "Bcc"} {
		list, err := mr.Header.AddressList(key)
		if err != nil {
			return "", nil, fmt.Errorf("parsing %s header: %w", key, err)
		}
		for _, addr := range list {
			rcpts = append(rcpts, addr.Address)
		}
	}
	if len(rcpts) == 0 {
		return "", nil, errors.New("message has no recipients")
	}

	return from[0].Address, rcpts, nil
}

// StripBcc removes the Bcc header so blind recipients stay hidden from the
// others. The body is copied untouched.
func StripBcc(raw []byte) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("reading message header: %w", err)
	}
	if !h.Has("Bcc") {
		return raw, nil
	}
	h.Del("Bcc")

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h); err != nil {
		return nil, fmt.Errorf("writing message header: %w", err)
	}
	if _, err := buf.ReadFrom(br); err != nil {
		return nil, fmt.Errorf("copying message body: %w", err)
	}
	return buf.Bytes(), nil
}
