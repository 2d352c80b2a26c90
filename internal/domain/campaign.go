package domain

import "time"

// RunStatus enumerates the lifecycle states of a campaign run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunAborted   RunStatus = "aborted"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunCancelled || s == RunAborted
}

// CampaignSettings carries the per-campaign delivery knobs.
type CampaignSettings struct {
	// DelaySeconds is the base pacing delay between sends.
	DelaySeconds float64 `json:"delay_seconds" db:"delay_seconds"`
	// RandomizeDelay draws the actual delay uniformly from base ±30%.
	RandomizeDelay bool `json:"randomize_delay" db:"randomize_delay"`
	// MaxRetries bounds per-send retry attempts inside the mailer.
	MaxRetries int `json:"max_retries" db:"max_retries"`
	// Attachments are file paths resolved at send time; a path the
	// resolver rejects fails that recipient's send only.
	Attachments []string `json:"attachments,omitempty" db:"-"`
}

// Campaign represents one execution of sending a rendered template to a
// lead list via a pool of accounts.
type Campaign struct {
	ID       string           `json:"id" db:"id"`
	Name     string           `json:"name" db:"name"`
	Template MessageTemplate  `json:"template" db:"-"`
	Settings CampaignSettings `json:"settings" db:"-"`
	Status   RunStatus        `json:"status" db:"status"`

	// Summary counters, populated from the result at run end.
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	SentCount       int `json:"sent_count" db:"sent_count"`
	FailedCount     int `json:"failed_count" db:"failed_count"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// SendOutcome is the per-recipient record of one send attempt. Outcomes are
// appended in recipient order and never mutated afterwards.
type SendOutcome struct {
	LeadID  string    `json:"lead_id" db:"lead_id"`
	Email   string    `json:"email" db:"email"`
	Account string    `json:"account" db:"account"`
	Success bool      `json:"success" db:"success"`
	Reason  string    `json:"reason,omitempty" db:"reason"`
	SentAt  time.Time `json:"sent_at" db:"sent_at"`
}

// CampaignResult aggregates the outcomes of one run. The outcome list is a
// faithful, order-preserving log: recipients are processed in the order
// supplied and outcomes are appended in that same order.
type CampaignResult struct {
	CampaignID string        `json:"campaign_id"`
	Total      int           `json:"total"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Status     RunStatus     `json:"status"`
	Outcomes   []SendOutcome `json:"outcomes"`

	// Warnings collects non-fatal setup problems, e.g. accounts excluded
	// from rotation because they failed validation.
	Warnings []string `json:"warnings,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Processed returns how many recipients have a recorded outcome.
func (r *CampaignResult) Processed() int { return r.Sent + r.Failed }

// Record appends an outcome and bumps the matching counter.
func (r *CampaignResult) Record(o SendOutcome) {
	if o.Success {
		r.Sent++
	} else {
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// ProgressUpdate is delivered to observers after each recipient is
// processed, regardless of success or failure.
type ProgressUpdate struct {
	CampaignID string `json:"campaign_id"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Message    string `json:"message"`
}
