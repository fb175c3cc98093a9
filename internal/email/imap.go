package email

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	imap "github.com/BrianLeishman/go-imap"
)

// IMAPInbox polls a mailbox for unseen replies.
type IMAPInbox struct {
	host     string
	port     int
	username string
	password string
	folder   string
	now      func() time.Time

	mu   sync.Mutex
	uids map[string]int
}

// NewIMAPInbox creates an inbox reader for folder (INBOX when empty).
func NewIMAPInbox(host string, port int, username, password, folder string) *IMAPInbox {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPInbox{
		host:     host,
		port:     port,
		username: username,
		password: password,
		folder:   folder,
		now:      time.Now,
		uids:     make(map[string]int),
	}
}

func (b *IMAPInbox) dial(ctx context.Context) (*imap.Dialer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := imap.New(b.username, b.password, b.host, b.port)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	if err := conn.SelectFolder(b.folder); err != nil {
		conn.Close()
		return nil, fmt.Errorf("imap select %s: %w", b.folder, err)
	}
	return conn, nil
}

// RecentInbound returns unseen messages received within hoursBack hours, oldest first.
func (b *IMAPInbox) RecentInbound(ctx context.Context, hoursBack float64) ([]InboundEmail, error) {
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	cutoff := b.now().UTC().Add(-time.Duration(hoursBack * float64(time.Hour)))
	// IMAP SINCE has day granularity; the exact cutoff is applied below.
	criteria := "UNSEEN SINCE " + cutoff.Format("02-Jan-2006")
	uids, err := conn.GetUIDs(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	fetched, err := conn.GetEmails(uids...)
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	out := make([]InboundEmail, 0, len(fetched))
	b.mu.Lock()
	defer b.mu.Unlock()
	for uid, msg := range fetched {
		received := msg.Received
		if received.IsZero() {
			received = msg.Sent
		}
		if !received.IsZero() && received.Before(cutoff) {
			continue
		}
		id := strings.Trim(msg.MessageID, "<> ")
		if id == "" {
			id = fmt.Sprintf("uid-%d", uid)
		}
		b.uids[id] = uid

		body := strings.TrimSpace(msg.Text)
		if body == "" && msg.HTML != "" {
			body = HTMLToText(msg.HTML)
		}
		out = append(out, InboundEmail{
			MessageID:  id,
			From:       formatAddresses(msg.From),
			Subject:    msg.Subject,
			Body:       body,
			ReceivedAt: received.UTC(),
		})
	}
	sortInbound(out)
	return out, nil
}

// MarkRead flags a message returned by RecentInbound as seen.
func (b *IMAPInbox) MarkRead(ctx context.Context, messageID string) error {
	b.mu.Lock()
	uid, ok := b.uids[messageID]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	conn, err := b.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.MarkSeen(uid); err != nil {
		return fmt.Errorf("imap mark seen: %w", err)
	}
	b.mu.Lock()
	delete(b.uids, messageID)
	b.mu.Unlock()
	return nil
}

func formatAddresses(addrs imap.EmailAddresses) string {
	parts := make([]string, 0, len(addrs))
	for addr, name := range addrs {
		if name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", name, addr))
			continue
		}
		parts = append(parts, addr)
	}
	return strings.Join(parts, ", ")
}
