package domain

import "regexp"

// placeholderRe matches {{name}} references in template strings.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// MessageTemplate holds the subject and body sources for a campaign.
// Placeholders use {{name}} syntax; matching against supplied variables is
// by exact key, and a placeholder with no supplied value renders as an
// empty string, not an error.
type MessageTemplate struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Subject  string `json:"subject" db:"subject"`
	HTMLBody string `json:"html_body" db:"html_body"`
	TextBody string `json:"text_body" db:"text_body"`
}

// Placeholders returns the distinct placeholder names referenced anywhere
// in the subject, HTML, or text body, in first-seen order, case preserved.
func (t *MessageTemplate) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	for _, src := range []string{t.Subject, t.HTMLBody, t.TextBody} {
		for _, m := range placeholderRe.FindAllStringSubmatch(src, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// RenderedMessage is a template after placeholder substitution, ready to
// transmit through one account.
type RenderedMessage struct {
	To          string   `json:"to"`
	ToName      string   `json:"to_name"`
	Subject     string   `json:"subject"`
	HTML        string   `json:"html"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}
