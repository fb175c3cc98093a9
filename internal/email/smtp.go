package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements Sender using a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

// Send delivers msg as text/plain. Replies carry In-Reply-To and References so
// mail clients thread them under the lead's message.
func (s *SMTPSender) Send(ctx context.Context, out OutboundEmail) SendResult {
	msg, err := s.build(out)
	if err != nil {
		return SendResult{Error: err.Error()}
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("smtp client: %v", err)}
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return SendResult{Error: fmt.Sprintf("smtp send: %v", err)}
	}

	return SendResult{Success: true, MessageID: msg.GetMessageID()}
}

func (s *SMTPSender) build(out OutboundEmail) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(out.To); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(out.Subject)
	msg.SetMessageID()
	if out.InReplyTo != "" {
		ref := angleBracket(out.InReplyTo)
		msg.SetGenHeader(gomail.HeaderInReplyTo, ref)
		msg.SetGenHeader(gomail.HeaderReferences, ref)
	}
	msg.SetBodyString(gomail.TypeTextPlain, out.Body)
	return msg, nil
}

func angleBracket(id string) string {
	if id == "" || id[0] == '<' {
		return id
	}
	return "<" + id + ">"
}
