package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

// Config holds SMTP submission endpoint configuration. Submission uses
// implicit TLS on the configured port.
type Config struct {
	Host string
	Port int
	// Timeout bounds the whole submission: dial, auth, and transfer.
	// It is the engine's only bound on a stuck delivery.
	Timeout time.Duration
	// InsecureSkipVerify disables certificate verification. Off by
	// default; only for trusted test servers.
	InsecureSkipVerify bool
}

// SMTPSender submits messages over SMTPS using SASL PLAIN authentication.
type SMTPSender struct {
	cfg Config
	log zerolog.Logger
}

// NewSMTPSender creates an SMTPSender for the configured endpoint.
func NewSMTPSender(cfg Config, log zerolog.Logger) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPSender{cfg: cfg, log: log}
}

// Send opens an encrypted session, authenticates as the sending account,
// transmits the message, and returns the generated Message-ID.
func (s *SMTPSender) Send(ctx context.Context, req *Request) (*Result, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, &Error{Stage: "connect", Err: err}
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, &Error{Stage: "connect", Err: err}
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", req.FromAddr, req.Password)); err != nil {
		return nil, &Error{Stage: "auth", Err: err}
	}

	messageID := NewMessageID(req.FromAddr)
	now := time.Now()
	raw, err := BuildMessage(req, messageID, now)
	if err != nil {
		return nil, &Error{Stage: "submit", Err: fmt.Errorf("build message: %w", err)}
	}

	if err := c.Mail(req.FromAddr, nil); err != nil {
		return nil, &Error{Stage: "submit", Err: err}
	}
	if err := c.Rcpt(req.Recipient, nil); err != nil {
		return nil, &Error{Stage: "submit", Err: err}
	}

	w, err := c.Data()
	if err != nil {
		return nil, &Error{Stage: "submit", Err: err}
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, &Error{Stage: "submit", Err: err}
	}
	if err := w.Close(); err != nil {
		// The server rejected the message after transfer; this is not
		// a success.
		return nil, &Error{Stage: "submit", Err: err}
	}

	if err := c.Quit(); err != nil {
		s.log.Debug().Err(err).Msg("smtp quit failed after accepted message")
	}

	return &Result{MessageID: messageID, Timestamp: now}, nil
}

var _ Sender = (*SMTPSender)(nil)
