package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"

	"github.com/sungwon/mail-scheduler/internal/mailparse"
)

// Config holds IMAP connection settings.
type Config struct {
	Host               string
	Port               int
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// IMAPDialer opens TLS IMAP sessions against a single server.
type IMAPDialer struct {
	cfg Config
	log zerolog.Logger
}

// NewIMAPDialer creates a dialer for the configured IMAP server.
func NewIMAPDialer(cfg Config, log zerolog.Logger) *IMAPDialer {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &IMAPDialer{cfg: cfg, log: log}
}

// Dial connects, authenticates, and selects INBOX read-only.
func (d *IMAPDialer) Dial(ctx context.Context, email, password string) (Session, error) {
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)

	dialer := &net.Dialer{Timeout: d.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialer.Timeout {
			dialer.Timeout = remaining
		}
	}

	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{
		ServerName:         d.cfg.Host,
		InsecureSkipVerify: d.cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, &Error{Stage: "connect", Err: err}
	}
	c.Timeout = d.cfg.Timeout

	if err := c.Login(email, password); err != nil {
		c.Logout()
		return nil, &Error{Stage: "login", Err: err}
	}

	if _, err := c.Select("INBOX", true); err != nil {
		c.Logout()
		return nil, &Error{Stage: "select", Err: err}
	}

	d.log.Debug().Str("account", email).Str("server", addr).Msg("inbox session opened")
	return &imapSession{client: c}, nil
}

type imapSession struct {
	client *client.Client
}

func (s *imapSession) SearchSince(since time.Time) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.SentSince = since

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, &Error{Stage: "search", Err: err}
	}
	return uids, nil
}

func (s *imapSession) FetchEnvelopes(uids []uint32) ([]Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, ch)
	}()

	var messages []Message
	for msg := range ch {
		if msg.Envelope == nil {
			continue
		}
		messages = append(messages, envelopeMessage(msg))
	}
	if err := <-done; err != nil {
		return nil, &Error{Stage: "fetch", Err: err}
	}
	return messages, nil
}

func (s *imapSession) FetchBody(uid uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	// Peek leaves the \Seen flag untouched so unmatched replies are
	// re-examined on later passes.
	section := &imap.BodySectionName{Peek: true}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, []imap.FetchItem{section.FetchItem()}, ch)
	}()

	var raw []byte
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			<-done
			return nil, &Error{Stage: "fetch", Err: err}
		}
		raw = data
	}
	if err := <-done; err != nil {
		return nil, &Error{Stage: "fetch", Err: err}
	}
	if raw == nil {
		return nil, &Error{Stage: "fetch", Err: fmt.Errorf("uid %d: no body returned", uid)}
	}
	return raw, nil
}

func (s *imapSession) Close() error {
	return s.client.Logout()
}

func envelopeMessage(msg *imap.Message) Message {
	env := msg.Envelope
	m := Message{
		UID:       msg.Uid,
		MessageID: env.MessageId,
		InReplyTo: env.InReplyTo,
		Subject:   mailparse.DecodeHeader(env.Subject),
		Date:      env.Date,
	}
	if len(env.From) > 0 {
		from := env.From[0]
		if name := mailparse.DecodeHeader(from.PersonalName); name != "" {
			m.From = fmt.Sprintf("%s <%s>", name, from.Address())
		} else {
			m.From = from.Address()
		}
	}
	return m
}

var _ Dialer = (*IMAPDialer)(nil)
