package mailing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gomail/gomail"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/pkg/logger"
)

// AttachmentResolver validates an attachment reference and returns a safe
// absolute path, or an error when the reference must be rejected. A
// rejection fails that recipient's send only, never the whole campaign.
type AttachmentResolver interface {
	Resolve(path string) (string, error)
}

// FileResolver is the default resolver: the path must point at an existing
// regular file.
type FileResolver struct{}

func (FileResolver) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve attachment %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("attachment not readable: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("attachment %q is a directory", path)
	}
	return abs, nil
}

// SMTPMailer performs exactly one send per call: dial, authenticate,
// transmit one rendered message, quit. No connection is reused between
// sends, so one bad account can never corrupt a cached connection used by
// later sends on a different account.
type SMTPMailer struct {
	// MaxRetries bounds additional attempts after the first, for
	// retryable failure kinds only.
	MaxRetries int
	// RetryBase seeds the exponential backoff between attempts.
	RetryBase time.Duration
	// Resolver validates attachment paths; defaults to FileResolver.
	Resolver AttachmentResolver

	// dial is swapped out by tests to avoid real sockets.
	dial func(acct *domain.MailAccount) (gomail.SendCloser, error)
}

// NewSMTPMailer returns a mailer with bounded retries (default 3) and
// one-second base backoff.
func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{
		MaxRetries: 3,
		RetryBase:  time.Second,
		Resolver:   FileResolver{},
	}
}

func (m *SMTPMailer) dialer(acct *domain.MailAccount) (gomail.SendCloser, error) {
	if m.dial != nil {
		return m.dial(acct)
	}
	d := gomail.NewDialer(acct.Host, acct.Port, acct.Username, acct.Password)
	d.SSL = acct.Security == domain.SecuritySSL
	return dialWithTimeout(d, acct.Timeout())
}

// dialWithTimeout bounds connection establishment. The dialer has no
// deadline support of its own, so a hung connect is abandoned to its
// goroutine; the socket dies with the process.
func dialWithTimeout(d *gomail.Dialer, timeout time.Duration) (gomail.SendCloser, error) {
	type dialResult struct {
		sc  gomail.SendCloser
		err error
	}
	ch := make(chan dialResult, 1)
	go func() {
		sc, err := d.Dial()
		ch <- dialResult{sc, err}
	}()
	select {
	case res := <-ch:
		return res.sc, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("connect to %s:%d timed out after %s", d.Host, d.Port, timeout)
	}
}

// Send transmits one rendered message through one account, retrying
// transient failures with exponential backoff before surfacing a final
// typed failure. A nil return means the message was accepted.
func (m *SMTPMailer) Send(ctx context.Context, acct *domain.MailAccount, msg *domain.RenderedMessage) error {
	attachments, aerr := m.resolveAttachments(msg.Attachments)
	if aerr != nil {
		return &SendError{Kind: KindAttachment, Account: acct.Label(), Recipient: msg.To, Err: aerr}
	}

	var lastErr *SendError
	for attempt := 0; attempt <= m.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(attempt-1, m.RetryBase)); err != nil {
				return lastErr
			}
			logger.Debug("retrying send", "recipient", msg.To, "account", acct.Label(), "attempt", attempt)
		}

		err := m.attempt(acct, msg, attachments)
		if err == nil {
			return nil
		}

		lastErr = classifySendError(err, acct.Label(), msg.To)
		if !lastErr.Retryable() {
			return lastErr
		}
		logger.Warn("send attempt failed", "recipient", msg.To, "account", acct.Label(),
			"attempt", attempt, "kind", string(lastErr.Kind), "error", err.Error())
	}
	return lastErr
}

// attempt is one full dial-auth-send-quit cycle.
func (m *SMTPMailer) attempt(acct *domain.MailAccount, msg *domain.RenderedMessage, attachments []string) error {
	sc, err := m.dialer(acct)
	if err != nil {
		se := classifySendError(err, acct.Label(), msg.To)
		if se.Kind == KindTransmission {
			// No reply code before the session exists means the
			// connection itself failed.
			se.Kind = KindConnection
		}
		return se
	}
	defer sc.Close()

	gm := buildMessage(acct, msg, attachments)
	return gomail.Send(sc, gm)
}

func buildMessage(acct *domain.MailAccount, msg *domain.RenderedMessage, attachments []string) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", acct.Sender(), acct.FromName)
	gm.SetAddressHeader("To", msg.To, msg.ToName)
	gm.SetHeader("Subject", msg.Subject)

	switch {
	case msg.Text != "" && msg.HTML != "":
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		gm.SetBody("text/html", msg.HTML)
	default:
		gm.SetBody("text/plain", msg.Text)
	}

	for _, path := range attachments {
		gm.Attach(path)
	}
	return gm
}

func (m *SMTPMailer) resolveAttachments(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	resolver := m.Resolver
	if resolver == nil {
		resolver = FileResolver{}
	}
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := resolver.Resolve(p)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, abs)
	}
	return resolved, nil
}

// TestConnection dials and authenticates without sending, used to verify
// account credentials.
func (m *SMTPMailer) TestConnection(acct *domain.MailAccount) error {
	if err := acct.Validate(); err != nil {
		return &SendError{Kind: KindConfig, Account: acct.Label(), Err: err}
	}
	sc, err := m.dialer(acct)
	if err != nil {
		se := classifySendError(err, acct.Label(), "")
		if se.Kind == KindTransmission {
			se.Kind = KindConnection
		}
		return se
	}
	return sc.Close()
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
