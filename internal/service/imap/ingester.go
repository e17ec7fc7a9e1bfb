package imap

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap/v2"

	"github.com/harrowgate/epv/internal/domain"
	"github.com/harrowgate/epv/pkg/logger"
)

// MailboxUser is one configured recipient this mailbox ingests mail for.
// A single configured user receives every message; multiple users are
// matched by whether their AddressPostfix appears in the message's To
// header (a `user+postfix@domain` convention).
type MailboxUser struct {
	Username       string
	AddressPostfix string
}

// ContentWriter persists a message's HTML body under a path relative to
// the content root.
type ContentWriter interface {
	WriteHTML(ctx context.Context, relPath string, body []byte) error
}

// Config is everything the ingester needs to connect to one mailbox and
// resolve ownership of the messages it finds there.
type Config struct {
	Auth         AuthConfig
	Mailbox      string
	ReadMailbox  string
	PollInterval time.Duration
	Users        []MailboxUser
}

// Ingester polls one IMAP mailbox on a ticker, storing new messages and
// moving processed ones out of the way. Its lifecycle (Start/Stop via
// ticker + stop/stopped channels) follows the same shape as the teacher's
// bounce poller.
type Ingester struct {
	cfg     Config
	emails  domain.EmailRepository
	content ContentWriter
	log     logger.Logger

	newClient func() Client

	mu          sync.Mutex
	running     bool
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

func NewIngester(cfg Config, emails domain.EmailRepository, content ContentWriter, log logger.Logger) *Ingester {
	return &Ingester{
		cfg:       cfg,
		emails:    emails,
		content:   content,
		log:       log,
		newClient: NewClient,
	}
}

// Start runs the poll loop until ctx is cancelled or Stop is called. It
// blocks, so callers run it in its own goroutine.
func (ing *Ingester) Start(ctx context.Context) {
	ing.mu.Lock()
	if ing.running {
		ing.mu.Unlock()
		return
	}
	ing.running = true
	ing.stopChan = make(chan struct{})
	ing.stoppedChan = make(chan struct{})
	ing.mu.Unlock()

	defer close(ing.stoppedChan)

	ticker := time.NewTicker(ing.cfg.PollInterval)
	defer ticker.Stop()

	ing.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ing.stopChan:
			return
		case <-ticker.C:
			ing.poll(ctx)
		}
	}
}

// Stop signals the poll loop to exit and waits for it to finish.
func (ing *Ingester) Stop() {
	ing.mu.Lock()
	if !ing.running {
		ing.mu.Unlock()
		return
	}
	ing.running = false
	stopChan := ing.stopChan
	stoppedChan := ing.stoppedChan
	ing.mu.Unlock()

	close(stopChan)
	select {
	case <-stoppedChan:
	case <-time.After(5 * time.Second):
		ing.log.Warn("IMAP ingester stop timed out")
	}
}

func (ing *Ingester) poll(ctx context.Context) {
	client := ing.newClient()
	if err := client.Connect(ing.cfg.Auth); err != nil {
		ing.log.WithField("error", err.Error()).Error("failed to connect to IMAP mailbox")
		return
	}
	defer client.Close()

	messages, err := client.FetchAllMessages(ing.cfg.Mailbox)
	if err != nil {
		ing.log.WithField("error", err.Error()).Error("failed to fetch messages")
		return
	}
	if len(messages) == 0 {
		return
	}

	logFields := ing.log.WithField("mailbox", ing.cfg.Mailbox).WithField("message_count", len(messages))
	logFields.Info("processing mailbox messages")

	var processed []goimap.UID
	stored := 0

	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if ing.ingestOne(ctx, msg, logFields) {
			stored++
		}
		processed = append(processed, msg.UID)
	}

	if len(processed) > 0 {
		if err := client.Move(processed, ing.cfg.ReadMailbox); err != nil {
			logFields.WithField("error", err.Error()).Error("failed to move processed messages")
		}
	}

	if stored > 0 {
		logFields.WithField("stored", stored).Info("ingested new messages")
	}
}

// ingestOne parses, resolves ownership, stores and records one message. It
// returns true if a new row was stored; any failure is logged and the
// message is treated as processed regardless, matching the poller's
// never-abort-the-batch style.
func (ing *Ingester) ingestOne(ctx context.Context, msg Message, logFields logger.Logger) bool {
	fields := logFields.WithField("uid", msg.UID)

	parsed, err := parseMessage(msg.RawBody)
	if err != nil {
		fields.WithField("error", err.Error()).Warn("failed to parse message")
		return false
	}
	if parsed.HTML == "" {
		fields.Warn("message has no text/html part, skipping")
		return false
	}

	user, ok := resolveUser(ing.cfg.Users, parsed.To)
	if !ok {
		fields.WithField("to", parsed.To).Warn("no configured user matches recipient, skipping")
		return false
	}

	id := contentID(msg.RawBody)

	exists, err := ing.emails.Exists(ctx, id)
	if err != nil {
		fields.WithField("error", err.Error()).Error("failed to check existing message")
		return false
	}
	if exists {
		return false
	}

	relPath := path.Join(user, id+".html")
	if err := ing.content.WriteHTML(ctx, relPath, []byte(parsed.HTML)); err != nil {
		fields.WithField("error", err.Error()).Error("failed to write message body")
		return false
	}

	record := &domain.EmailRecord{
		ID:         id,
		HTMLPath:   relPath,
		User:       user,
		Registered: time.Now().UnixMilli(),
		FromAddr:   parsed.From,
		ToAddr:     parsed.To,
		Subject:    parsed.Subject,
	}
	if err := ing.emails.Insert(ctx, record); err != nil {
		fields.WithField("error", err.Error()).Error("failed to insert message row")
		return false
	}

	return true
}

// resolveUser matches the message's To header against the configured
// mailbox users. A single configured user owns every message in the
// mailbox; multiple users are matched by address postfix.
func resolveUser(users []MailboxUser, toAddr string) (string, bool) {
	if len(users) == 0 {
		return "", false
	}
	if len(users) == 1 {
		return users[0].Username, true
	}
	lower := strings.ToLower(toAddr)
	for _, u := range users {
		if u.AddressPostfix != "" && strings.Contains(lower, strings.ToLower(u.AddressPostfix)) {
			return u.Username, true
		}
	}
	return "", false
}
