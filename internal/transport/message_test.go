package transport

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"
)

func TestNewMessageID_UsesSenderDomain(t *testing.T) {
	id := NewMessageID("alice@example.com")

	if !strings.HasPrefix(id, "<") || !strings.HasSuffix(id, "@example.com>") {
		t.Errorf("unexpected Message-ID format: %s", id)
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewMessageID("alice@example.com")
		if seen[id] {
			t.Fatalf("duplicate Message-ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestBuildMessage_SimpleBody(t *testing.T) {
	req := &Request{
		FromName:  "Alice",
		FromAddr:  "alice@example.com",
		Recipient: "bob@example.org",
		Subject:   "Hello",
		Body:      "<p>Hi Bob</p>",
	}
	msgID := NewMessageID(req.FromAddr)

	raw, err := BuildMessage(req, msgID, time.Now())
	if err != nil {
		t.Fatalf("BuildMessage failed: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("generated message does not parse: %v", err)
	}

	if got := msg.Header.Get("Message-ID"); got != msgID {
		t.Errorf("expected Message-ID %s, got %s", msgID, got)
	}
	if got := msg.Header.Get("To"); got != "bob@example.org" {
		t.Errorf("unexpected To header: %s", got)
	}
	if got := msg.Header.Get("In-Reply-To"); got != "" {
		t.Errorf("expected no In-Reply-To on fresh message, got %s", got)
	}

	from, err := mail.ParseAddress(msg.Header.Get("From"))
	if err != nil {
		t.Fatalf("From header does not parse: %v", err)
	}
	if from.Name != "Alice" || from.Address != "alice@example.com" {
		t.Errorf("unexpected From: %+v", from)
	}

	body, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding,
		strings.NewReader(strings.ReplaceAll(readAll(t, msg.Body), "\r\n", ""))))
	if err != nil {
		t.Fatalf("body does not decode: %v", err)
	}
	if string(body) != "<p>Hi Bob</p>" {
		t.Errorf("unexpected decoded body %q", body)
	}
}

func TestBuildMessage_ReplyThreadingHeaders(t *testing.T) {
	req := &Request{
		FromAddr:  "alice@example.com",
		Recipient: "bob@example.org",
		Subject:   "Re: Hello",
		Body:      "reply",
		InReplyTo: "<orig123@example.org>",
	}

	raw, err := BuildMessage(req, NewMessageID(req.FromAddr), time.Now())
	if err != nil {
		t.Fatalf("BuildMessage failed: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("generated message does not parse: %v", err)
	}
	if got := msg.Header.Get("In-Reply-To"); got != "<orig123@example.org>" {
		t.Errorf("unexpected In-Reply-To: %s", got)
	}
	if got := msg.Header.Get("References"); got != "<orig123@example.org>" {
		t.Errorf("unexpected References: %s", got)
	}
}

func TestBuildMessage_WithAttachment(t *testing.T) {
	content := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0x01, 0x02}
	req := &Request{
		FromAddr:  "alice@example.com",
		Recipient: "bob@example.org",
		Subject:   "Report",
		Body:      "<p>see attached</p>",
		Attachment: &Attachment{
			Filename:    "report.pdf",
			ContentType: "application/pdf",
			Content:     content,
		},
	}

	raw, err := BuildMessage(req, NewMessageID(req.FromAddr), time.Now())
	if err != nil {
		t.Fatalf("BuildMessage failed: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("generated message does not parse: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("Content-Type does not parse: %v", err)
	}
	if mediaType != "multipart/mixed" {
		t.Fatalf("expected multipart/mixed, got %s", mediaType)
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])

	text, err := mr.NextPart()
	if err != nil {
		t.Fatalf("missing text part: %v", err)
	}
	if ct := text.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected first part type: %s", ct)
	}

	att, err := mr.NextPart()
	if err != nil {
		t.Fatalf("missing attachment part: %v", err)
	}
	if ct := att.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("unexpected attachment type: %s", ct)
	}
	if cd := att.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="report.pdf"`) {
		t.Errorf("unexpected disposition: %s", cd)
	}

	decoded, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding,
		strings.NewReader(strings.ReplaceAll(readAll(t, att), "\r\n", ""))))
	if err != nil {
		t.Fatalf("attachment does not decode: %v", err)
	}
	if !bytes.Equal(decoded, content) {
		t.Errorf("attachment content mismatch: %v != %v", decoded, content)
	}

	if _, err := mr.NextPart(); err != io.EOF {
		t.Errorf("expected exactly two parts, got extra: %v", err)
	}
}

func TestBuildMessage_EncodesNonASCIISubject(t *testing.T) {
	req := &Request{
		FromAddr:  "alice@example.com",
		Recipient: "bob@example.org",
		Subject:   "Grüße aus Berlin",
		Body:      "x",
	}

	raw, err := BuildMessage(req, NewMessageID(req.FromAddr), time.Now())
	if err != nil {
		t.Fatalf("BuildMessage failed: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("generated message does not parse: %v", err)
	}

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		t.Fatalf("subject does not decode: %v", err)
	}
	if subject != "Grüße aus Berlin" {
		t.Errorf("unexpected decoded subject %q", subject)
	}
}

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("535 authentication failed")
	err := &Error{Stage: "auth", Err: cause}

	if !strings.Contains(err.Error(), "auth") || !strings.Contains(err.Error(), "535") {
		t.Errorf("unexpected error text: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to unwrap the cause")
	}
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(data)
}
