package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// LeadStatus enumerates the lifecycle states of a lead in the list manager.
type LeadStatus string

const (
	LeadActive       LeadStatus = "active"
	LeadUnsubscribed LeadStatus = "unsubscribed"
	LeadBounced      LeadStatus = "bounced"
)

// emailRe is an RFC-shaped (not RFC-complete) address check. Full RFC 5322
// validation is the mail server's job; this catches structural garbage
// before it enters a campaign.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Lead is one addressee plus the variable values used for personalization.
// Duplicate emails within one campaign are permitted; de-duplication is an
// upstream list-management concern.
type Lead struct {
	ID        string     `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	FirstName string     `json:"first_name" db:"first_name"`
	LastName  string     `json:"last_name" db:"last_name"`
	Company   string     `json:"company" db:"company"`
	Title     string     `json:"title" db:"title"`
	Phone     string     `json:"phone" db:"phone"`
	Status    LeadStatus `json:"status" db:"status"`

	// CustomFields carries arbitrary personalization values from list
	// imports. On name collision with a canonical field, the custom value
	// wins: it represents deliberate personalization.
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the address passes the RFC-shaped check.
func ValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// Normalize cleans up whitespace and the email address in place.
func (l *Lead) Normalize() {
	l.Email = NormalizeEmail(l.Email)
	l.FirstName = strings.TrimSpace(l.FirstName)
	l.LastName = strings.TrimSpace(l.LastName)
	l.Company = strings.TrimSpace(l.Company)
	l.Title = strings.TrimSpace(l.Title)
	l.Phone = strings.TrimSpace(l.Phone)
}

// Validate checks that the lead can be accepted into a campaign.
func (l *Lead) Validate() error {
	if !ValidEmail(l.Email) {
		return fmt.Errorf("invalid email address: %q", l.Email)
	}
	return nil
}

// FullName joins first and last name, skipping empty parts.
func (l *Lead) FullName() string {
	parts := make([]string, 0, 2)
	if l.FirstName != "" {
		parts = append(parts, l.FirstName)
	}
	if l.LastName != "" {
		parts = append(parts, l.LastName)
	}
	return strings.Join(parts, " ")
}

// DisplayName returns the name used in the To header: the full name when
// present, otherwise the email address.
func (l *Lead) DisplayName() string {
	if name := l.FullName(); name != "" {
		return name
	}
	return l.Email
}

// Vars builds the variable map for template rendering: canonical identity
// fields first, lead custom fields layered on top so that explicit custom
// fields override canonical ones on name collision.
func (l *Lead) Vars() map[string]any {
	vars := map[string]any{
		"email":      l.Email,
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"full_name":  l.FullName(),
		"company":    l.Company,
		"title":      l.Title,
		"phone":      l.Phone,
	}
	for k, v := range l.CustomFields {
		vars[k] = v
	}
	return vars
}
