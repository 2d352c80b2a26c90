package domain

import (
	"fmt"
	"time"
)

// SecurityMode selects the transport security used for an SMTP connection.
type SecurityMode string

const (
	SecurityNone SecurityMode = "none"
	SecurityTLS  SecurityMode = "tls" // STARTTLS upgrade after EHLO
	SecuritySSL  SecurityMode = "ssl" // implicit TLS from the first byte
)

// MailAccount holds one outbound SMTP credential plus its connection and
// rate parameters. Accounts are read-only to the engine during a campaign
// run; editing happens in the surrounding application between runs.
type MailAccount struct {
	ID       string       `json:"id" yaml:"id"`
	Name     string       `json:"name" yaml:"name"`
	Host     string       `json:"host" yaml:"host"`
	Port     int          `json:"port" yaml:"port"`
	Username string       `json:"username" yaml:"username"`
	Password string       `json:"-" yaml:"password"`
	Security SecurityMode `json:"security" yaml:"security"`

	// FromEmail defaults to Username when empty.
	FromName  string `json:"from_name" yaml:"from_name"`
	FromEmail string `json:"from_email" yaml:"from_email"`

	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// Optional send caps. Zero means unlimited.
	MaxPerHour int `json:"max_per_hour" yaml:"max_per_hour"`
	MaxPerDay  int `json:"max_per_day" yaml:"max_per_day"`

	// Minimum delay between two sends through this account, in seconds.
	MinDelaySeconds float64 `json:"min_delay_seconds" yaml:"min_delay_seconds"`
}

// Validate checks the configuration shape required before an account can be
// placed into a sending rotation.
func (a *MailAccount) Validate() error {
	if a.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("smtp port must be between 1 and 65535, got %d", a.Port)
	}
	if a.Username == "" {
		return fmt.Errorf("smtp username is required")
	}
	if a.Password == "" {
		return fmt.Errorf("smtp password is required")
	}
	switch a.Security {
	case SecurityNone, SecurityTLS, SecuritySSL:
	case "":
		// Normalized to TLS by Sender(); accepted here.
	default:
		return fmt.Errorf("unknown security mode %q", a.Security)
	}
	return nil
}

// Label returns the human-readable identity of the account, used in
// outcome records and logs.
func (a *MailAccount) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("%s@%s:%d", a.Username, a.Host, a.Port)
}

// Sender returns the from address for messages sent through this account,
// falling back to the SMTP username.
func (a *MailAccount) Sender() string {
	if a.FromEmail != "" {
		return a.FromEmail
	}
	return a.Username
}

// Timeout returns the connection timeout as a duration, defaulting to 30s.
func (a *MailAccount) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// MinDelay returns the minimum spacing between two sends through this
// account. Zero means no per-account spacing.
func (a *MailAccount) MinDelay() time.Duration {
	if a.MinDelaySeconds <= 0 {
		return 0
	}
	return time.Duration(a.MinDelaySeconds * float64(time.Second))
}
