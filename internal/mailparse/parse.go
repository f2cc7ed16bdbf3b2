// Package mailparse extracts readable text from raw RFC 5322 messages
// fetched during inbox reconciliation. Parsing is best-effort: a reply we
// cannot fully decode is still worth recording, so malformed parts degrade
// to raw bytes instead of failing the whole message.
package mailparse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Content holds the text extracted from an inbound message.
type Content struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// Body returns the preferred body text: plain text when present,
// otherwise HTML.
func (c Content) Body() string {
	if c.TextBody != "" {
		return c.TextBody
	}
	return c.HTMLBody
}

// Parse extracts the subject and body text from a raw message. Multipart
// bodies are walked recursively; the first text/plain and first text/html
// parts win. Attachments and unparseable parts are skipped.
func Parse(raw []byte) (*Content, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mailparse: failed to read message: %w", err)
	}

	content := &Content{
		Subject: DecodeHeader(msg.Header.Get("Subject")),
	}
	walkEntity(msg.Header, msg.Body, content)
	return content, nil
}

// header is the subset shared by mail.Header and textproto.MIMEHeader.
type header interface{ Get(string) string }

func walkEntity(h header, body io.Reader, content *Content) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		// No or malformed Content-Type; treat as text/plain per RFC 2045.
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			walkEntity(part.Header, part, content)
		}
	}

	if disp, _, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil && strings.EqualFold(disp, "attachment") {
		return
	}

	switch mediaType {
	case "text/plain":
		if content.TextBody == "" {
			content.TextBody = readText(h, body, params["charset"])
		}
	case "text/html":
		if content.HTMLBody == "" {
			content.HTMLBody = readText(h, body, params["charset"])
		}
	}
}

// readText decodes the transfer encoding and converts the part to UTF-8.
func readText(h header, body io.Reader, charset string) string {
	switch strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding"))) {
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return ""
	}

	if charset == "" {
		return string(raw)
	}
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// DecodeHeader decodes RFC 2047 encoded-words, falling back to the raw
// header text. Non-UTF-8 charsets (e.g. ISO-2022-JP) are converted to UTF-8.
func DecodeHeader(value string) string {
	if value == "" {
		return ""
	}
	decoder := &mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	if charset == "" {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
