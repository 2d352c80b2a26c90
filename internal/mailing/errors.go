package mailing

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
)

// ErrNoUsableAccounts is returned when zero accounts survive pool
// initialization. It aborts the campaign before any send is attempted.
var ErrNoUsableAccounts = errors.New("no usable smtp accounts")

// ErrKind classifies a send failure. Everything except KindConfig is
// recoverable at the campaign level: the recipient is recorded as failed
// and the batch continues. Having zero usable accounts is not a send
// failure; that is the ErrNoUsableAccounts sentinel.
type ErrKind string

const (
	KindConfig            ErrKind = "config"
	KindConnection        ErrKind = "connection"
	KindAuth              ErrKind = "auth"
	KindRecipientRejected ErrKind = "recipient_rejected"
	KindSenderRejected    ErrKind = "sender_rejected"
	KindTransmission      ErrKind = "transmission"
	KindAttachment        ErrKind = "attachment"
)

// SendError is a typed send failure. The per-recipient failure path is
// ordinary data flow, not control flow: callers switch on Kind instead of
// matching exception types.
type SendError struct {
	Kind      ErrKind
	Account   string // account label, may be empty for pre-dial failures
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error", e.Kind)
	}
	if e.Account != "" {
		return fmt.Sprintf("%s error via %s: %v", e.Kind, e.Account, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt on the same account could
// plausibly succeed. Credential and server-side rejections fail the same
// way every time; retrying them only burns pacing budget.
func (e *SendError) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindTransmission:
		return true
	default:
		return false
	}
}

// classifySendError maps transport-level errors onto the taxonomy using
// SMTP reply codes where available.
//
//	530/534/535  authentication
//	550/551/553  recipient or sender rejected
//	552/554     transmission (size, policy, data)
//	net errors  connection
func classifySendError(err error, account, recipient string) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}

	kind := KindTransmission

	var tpErr *textproto.Error
	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.As(err, &tpErr):
		switch tpErr.Code {
		case 530, 534, 535, 538:
			kind = KindAuth
		case 550, 551, 553:
			kind = KindRecipientRejected
			if senderRejection(tpErr.Msg) {
				kind = KindSenderRejected
			}
		case 552, 554:
			kind = KindTransmission
		case 421:
			kind = KindConnection
		}
	case errors.As(err, &opErr), errors.As(err, &netErr):
		kind = KindConnection
	}

	return &SendError{Kind: kind, Account: account, Recipient: recipient, Err: err}
}

// senderRejection reports whether a 55x reply text blames the envelope
// sender rather than the recipient. The reply code alone cannot tell the
// two apart; servers that reject the MAIL FROM say so in the text.
func senderRejection(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "sender") || strings.Contains(m, "from address")
}
