package message

import (
	"strings"
	"testing"
	"time"
)

const plain = "From: Ann <ann@example.com>\r\n" +
	"To: Bob <bob@example.com>\r\n" +
	"Cc: carol@example.com\r\n" +
	"Subject: =?utf-8?q?caf=C3=A9?=\r\n" +
	"Date: Fri, 01 Mar 2024 09:30:00 +0000\r\n" +
	"Message-ID: <b@example.com>\r\n" +
	"In-Reply-To: <a@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"hello\r\n"

const multipart = "From: ann@example.com\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"see attached\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=report.csv\r\n" +
	"\r\n" +
	"a,b\r\n" +
	"--XYZ--\r\n"

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope("key", []byte(plain))
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}

	if env.ID != "key" {
		t.Errorf("ID = %q", env.ID)
	}
	if env.Subject != "café" {
		t.Errorf("Subject = %q, want decoded subject", env.Subject)
	}
	if env.MessageID != "b@example.com" || env.InReplyTo != "a@example.com" {
		t.Errorf("MessageID/InReplyTo = %q / %q", env.MessageID, env.InReplyTo)
	}
	if env.From.Name != "Ann" || env.From.Addr != "ann@example.com" {
		t.Errorf("From = %+v", env.From)
	}
	if env.To.Addr != "bob@example.com" {
		t.Errorf("To = %+v", env.To)
	}
	if !env.Date.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", env.Date)
	}
	if env.HasAttachment {
		t.Error("HasAttachment = true for a plain message")
	}
}

func TestParseEnvelopeAttachment(t *testing.T) {
	env, err := ParseEnvelope("key", []byte(multipart))
	if err != nil {
		t.Fatal(err)
	}
	if !env.HasAttachment {
		t.Error("HasAttachment = false")
	}
}

func TestParseBody(t *testing.T) {
	body := ParseBody([]byte(multipart))
	if strings.TrimSpace(body.TextBody) != "see attached" {
		t.Errorf("TextBody = %q", body.TextBody)
	}
	if len(body.Attachments) != 1 || body.Attachments[0].Filename != "report.csv" {
		t.Fatalf("Attachments = %+v", body.Attachments)
	}
	if body.Attachments[0].MIMEType != "text/csv" {
		t.Errorf("MIMEType = %q", body.Attachments[0].MIMEType)
	}
}

func TestAddresses(t *testing.T) {
	from, rcpts, err := Addresses([]byte(plain))
	if err != nil {
		t.Fatal(err)
	}
	if from != "ann@example.com" {
		t.Errorf("from = %q", from)
	}
	if strings.Join(rcpts, ",") != "bob@example.com,carol@example.com" {
		t.Errorf("rcpts = %v", rcpts)
	}

	_, _, err = Addresses([]byte("From: ann@example.com\r\n\r\nbody"))
	if err == nil {
		t.Error("Addresses() without recipients succeeded")
	}
}

func TestStripBcc(t *testing.T) {
	raw := "From: ann@example.com\r\nTo: bob@example.com\r\nBcc: eve@example.com\r\nSubject: s\r\n\r\nbody\r\n"
	out, err := StripBcc([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "eve@example.com") {
		t.Errorf("Bcc still present: %q", out)
	}
	if !strings.HasSuffix(string(out), "\r\n\r\nbody\r\n") || !strings.Contains(string(out), "Subject: s") {
		t.Errorf("message damaged: %q", out)
	}

	noBcc := []byte("From: a@b\r\n\r\nx")
	out, err = StripBcc(noBcc)
	if err != nil || string(out) != string(noBcc) {
		t.Errorf("StripBcc() without Bcc = %q, %v", out, err)
	}
}
