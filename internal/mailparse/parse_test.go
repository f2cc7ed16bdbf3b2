package mailparse

import (
	"strings"
	"testing"
)

func TestParse_PlainTextOnly(t *testing.T) {
	raw := "From: sender@example.com\r\n" +
		"To: recipient@example.com\r\n" +
		"Subject: Hello\r\n" +
		"\r\n" +
		"This is a plain text reply.\r\n"

	content, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if content.Subject != "Hello" {
		t.Errorf("subject = %q, want %q", content.Subject, "Hello")
	}
	if content.TextBody != "This is a plain text reply.\r\n" {
		t.Errorf("TextBody = %q", content.TextBody)
	}
	if content.Body() != content.TextBody {
		t.Errorf("Body() should prefer plain text")
	}
}

func TestParse_HTMLFallback(t *testing.T) {
	raw := "From: sender@example.com\r\n" +
		"Subject: HTML Email\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Hello</p>\r\n"

	content, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if content.TextBody != "" {
		t.Errorf("TextBody should be empty, got %q", content.TextBody)
	}
	if content.Body() != "<p>Hello</p>\r\n" {
		t.Errorf("Body() = %q", content.Body())
	}
}

func TestParse_MultipartAlternative(t *testing.T) {
	raw := "From: sender@example.com\r\n" +
		"Subject: Multipart\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"b-001\"\r\n" +
		"\r\n" +
		"--b-001\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Plain version.\r\n" +
		"--b-001\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>HTML version.</p>\r\n" +
		"--b-001--\r\n"

	content, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(content.TextBody, "Plain version.") {
		t.Errorf("TextBody = %q", content.TextBody)
	}
	if !strings.HasPrefix(content.HTMLBody, "<p>HTML version.</p>") {
		t.Errorf("HTMLBody = %q", content.HTMLBody)
	}
	if content.Body() != content.TextBody {
		t.Errorf("Body() should prefer the plain part")
	}
}

func TestParse_Base64Body(t *testing.T) {
	raw := "From: sender@example.com\r\n" +
		"Subject: Encoded\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"SGVsbG8gd29ybGQ=\r\n"

	content, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content.TextBody != "Hello world" {
		t.Errorf("TextBody = %q, want %q", content.TextBody, "Hello world")
	}
}

func TestParse_QuotedPrintableLatin1(t *testing.T) {
	raw := "From: sender@example.com\r\n" +
		"Subject: Charset\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Gr=FC=DFe\r\n"

	content, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(content.TextBody, "Grüße") {
		t.Errorf("TextBody = %q, want UTF-8 converted text", content.TextBody)
	}
}

func TestParse_SkipsAttachmentPart(t *testing.T) {
	raw := "From: sender@example.com\r\n" +
		"Subject: With attachment\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"b-002\"\r\n" +
		"\r\n" +
		"--b-002\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"See attached.\r\n" +
		"--b-002\r\n" +
		"Content-Type: text/plain; name=\"notes.txt\"\r\n" +
		"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
		"\r\n" +
		"attachment text that must not become the body\r\n" +
		"--b-002--\r\n"

	content, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(content.TextBody, "See attached.") {
		t.Errorf("TextBody = %q", content.TextBody)
	}
}

func TestParse_MalformedHeadersFail(t *testing.T) {
	if _, err := Parse([]byte("not a mime message")); err == nil {
		t.Error("expected error for raw text with no headers")
	}
}

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello", "Hello"},
		{"utf8 b-word", "=?UTF-8?B?R3LDvMOfZQ==?=", "Grüße"},
		{"latin1 q-word", "=?ISO-8859-1?Q?Gr=FC=DFe?=", "Grüße"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeHeader(tt.in); got != tt.want {
				t.Errorf("DecodeHeader(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
