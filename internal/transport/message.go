package transport

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewMessageID generates a globally unique Message-ID for the given sender
// address, of the form <random-token@sender-domain>.
func NewMessageID(fromAddr string) string {
	domain := fromAddr
	if i := strings.LastIndex(fromAddr, "@"); i >= 0 {
		domain = fromAddr[i+1:]
	}
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("<%s@%s>", token, domain)
}

// BuildMessage renders the full RFC 5322 message with the given Message-ID.
// The body is sent as a base64-encoded text/html part; an attachment, when
// present, turns the message into multipart/mixed.
func BuildMessage(req *Request, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	from := mail.Address{Name: req.FromName, Address: req.FromAddr}
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", req.Recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", req.Subject))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if req.InReplyTo != "" {
		fmt.Fprintf(&buf, "In-Reply-To: %s\r\n", req.InReplyTo)
		fmt.Fprintf(&buf, "References: %s\r\n", req.InReplyTo)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	if req.Attachment == nil {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		buf.WriteString("\r\n")
		writeBase64(&buf, []byte(req.Body))
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", mw.Boundary())
	buf.WriteString("\r\n")

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/html; charset=utf-8")
	textHeader.Set("Content-Transfer-Encoding", "base64")
	textPart, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	var textBuf bytes.Buffer
	writeBase64(&textBuf, []byte(req.Body))
	if _, err := textPart.Write(textBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("write text part: %w", err)
	}

	contentType := req.Attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	attHeader := textproto.MIMEHeader{}
	attHeader.Set("Content-Type", contentType)
	attHeader.Set("Content-Transfer-Encoding", "base64")
	attHeader.Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", req.Attachment.Filename))
	attPart, err := mw.CreatePart(attHeader)
	if err != nil {
		return nil, fmt.Errorf("create attachment part: %w", err)
	}
	var attBuf bytes.Buffer
	writeBase64(&attBuf, req.Attachment.Content)
	if _, err := attPart.Write(attBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("write attachment part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBase64 writes data base64-encoded, wrapped at 76 columns per RFC 2045.
func writeBase64(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
}
