// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package mailer delivers the emails of the auth flows
package mailer

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/pret/core/logger"
)

// Message is an email with a plain text and an html body
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends messages
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Log is a mailer which only logs messages
type Log struct{}

// Send logs the message
func (Log) Send(ctx context.Context, m Message) error {
	logger.Component(ctx, "mailer").WithField("to", m.To).Infof("not sending email '%s': %s", m.Subject, m.Text)
	return nil
}

// Memory is a mailer which keeps all messages, for tests
type Memory struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message
func (mm *Memory) Send(_ context.Context, m Message) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.messages = append(mm.messages, m)
	return nil
}

// Messages returns all messages sent so far
func (mm *Memory) Messages() []Message {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return append([]Message(nil), mm.messages...)
}

// Last returns the last message sent to an address
func (mm *Memory) Last(to string) (Message, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for i := len(mm.messages) - 1; i >= 0; i-- {
		if mm.messages[i].To == to {
			return mm.messages[i], true
		}
	}
	return Message{}, false
}

// SMTPBuilder is a builder helper for the SMTP mailer
type SMTPBuilder struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromName  string
	FromEmail string
}

// SMTP sends messages through an SMTP relay with PLAIN auth
type SMTP struct {
	addr string
	auth smtp.Auth
	from string
	name string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSMTP creates an SMTP mailer
func NewSMTP(b *SMTPBuilder) *SMTP {
	if b.Host == "" {
		panic("SMTP host is missing")
	}
	s := &SMTP{
		addr: net.JoinHostPort(b.Host, strconv.Itoa(b.Port)),
		from: b.FromEmail,
		name: b.FromName,
		send: smtp.SendMail,
		now:  time.Now,
	}
	if b.User != "" {
		s.auth = smtp.PlainAuth("", b.User, b.Password, b.Host)
	}
	return s
}

// Send sends the message as multipart/alternative
func (s *SMTP) Send(ctx context.Context, m Message) error {
	rlog := logger.Component(ctx, "mailer")
	rlog.Debugf("sending email from: %s <%s>", s.name, s.from)
	if err := s.send(s.addr, s.auth, s.from, []string{m.To}, s.compose(m)); err != nil {
		return fmt.Errorf("cannot send email to %s: %w", m.To, err)
	}
	rlog.WithField("to", m.To).Infoln("email sent:", m.Subject)
	return nil
}

const boundary = "pret-alternative-boundary"

func (s *SMTP) compose(m Message) []byte {
	var b strings.Builder
	header := func(key, value string) {
		b.WriteString(key + ": " + value + "\r\n")
	}
	header("From", mime.QEncoding.Encode("utf-8", s.name)+" <"+s.from+">")
	header("To", m.To)
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", s.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `multipart/alternative; boundary="`+boundary+`"`)
	b.WriteString("\r\n")
	for _, part := range []struct{ kind, body string }{{"text/plain", m.Text}, {"text/html", m.HTML}} {
		if part.body == "" {
			continue
		}
		b.WriteString("--" + boundary + "\r\n")
		header("Content-Type", part.kind+"; charset=utf-8")
		b.WriteString("\r\n" + part.body + "\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
