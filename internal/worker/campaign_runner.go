package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/pkg/logger"
)

// cancelPollInterval bounds how long a pacing sleep can delay noticing a
// cancel request.
const cancelPollInterval = 100 * time.Millisecond

var (
	ErrNoRecipients  = errors.New("campaign has no recipients")
	ErrAlreadyRan    = errors.New("campaign runner already started")
	ErrNoAccountPool = errors.New("campaign has no account pool")
)

// Mailer transmits one rendered message through one account.
type Mailer interface {
	Send(ctx context.Context, acct *domain.MailAccount, msg *domain.RenderedMessage) error
}

// Renderer personalizes the campaign template for one lead.
type Renderer interface {
	Render(lead *domain.Lead, attachments []string) (*domain.RenderedMessage, error)
}

// AccountSource hands out sending accounts in rotation order.
type AccountSource interface {
	Next() *domain.MailAccount
	Len() int
	Warnings() []string
}

// Pacer computes the wait between consecutive recipients.
type Pacer interface {
	DelayFor() time.Duration
}

// RateGate decides whether an account may send one more message. A nil
// gate means no caps are enforced.
type RateGate interface {
	Allow(ctx context.Context, acct *domain.MailAccount) (bool, error)
}

// ProgressFunc is invoked after each recipient is processed, success or
// failure alike. It runs on the runner goroutine and must not block.
type ProgressFunc func(domain.ProgressUpdate)

// RunnerConfig wires one campaign run.
type RunnerConfig struct {
	Campaign   *domain.Campaign
	Leads      []domain.Lead
	Accounts   AccountSource
	Mailer     Mailer
	Renderer   Renderer
	Pacer      Pacer
	Gate       RateGate
	OnProgress ProgressFunc
}

// CampaignRunner executes one campaign: it walks the lead list in order,
// rotates accounts round-robin, sends one message per lead, and records
// one outcome per processed lead. A failed send marks that lead failed and
// the run continues; only cancellation or a failed precondition stops it
// early.
//
// The runner is single-use. Cancel may be called from any goroutine; the
// in-flight send finishes, no new send starts, and processed outcomes are
// kept.
type CampaignRunner struct {
	cfg RunnerConfig

	started   atomic.Bool
	cancelled atomic.Bool

	// lastSend tracks when each account last transmitted, for per-account
	// minimum spacing. Touched only on the run goroutine.
	lastSend map[string]time.Time

	mu     sync.Mutex
	status domain.RunStatus
	result *domain.CampaignResult
}

func NewCampaignRunner(cfg RunnerConfig) *CampaignRunner {
	return &CampaignRunner{
		cfg:      cfg,
		status:   domain.RunIdle,
		lastSend: make(map[string]time.Time),
	}
}

// Status returns the runner's current lifecycle state.
func (r *CampaignRunner) Status() domain.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Cancel requests a cooperative stop. Safe to call repeatedly and at any
// point in the lifecycle; cancelling a finished run is a no-op.
func (r *CampaignRunner) Cancel() {
	r.cancelled.Store(true)
}

// Progress returns a point-in-time snapshot of the running result.
func (r *CampaignRunner) Progress() domain.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	update := domain.ProgressUpdate{
		CampaignID: r.cfg.Campaign.ID,
		Total:      len(r.cfg.Leads),
		Message:    string(r.status),
	}
	if r.result != nil {
		update.Current = r.result.Processed()
	}
	return update
}

// Result returns the final result once the run reached a terminal state,
// or nil while it is still running.
func (r *CampaignRunner) Result() *domain.CampaignResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.status.Terminal() {
		return nil
	}
	return r.result
}

// Run executes the campaign to a terminal state. It returns the result in
// every case, including aborts, so callers can persist whatever outcomes
// exist.
func (r *CampaignRunner) Run(ctx context.Context) (*domain.CampaignResult, error) {
	if !r.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRan
	}

	result := &domain.CampaignResult{
		CampaignID: r.cfg.Campaign.ID,
		Total:      len(r.cfg.Leads),
		StartedAt:  time.Now(),
	}

	if err := r.checkPreconditions(result); err != nil {
		r.finish(result, domain.RunAborted)
		logger.Error("campaign aborted before first send",
			"campaign_id", r.cfg.Campaign.ID, "error", err.Error())
		return result, err
	}

	result.Warnings = r.cfg.Accounts.Warnings()
	r.setRunning(result)
	logger.Info("campaign started", "campaign_id", r.cfg.Campaign.ID,
		"recipients", len(r.cfg.Leads), "accounts", r.cfg.Accounts.Len())

	for i := range r.cfg.Leads {
		if r.cancelled.Load() || ctx.Err() != nil {
			r.finish(result, domain.RunCancelled)
			logger.Info("campaign cancelled", "campaign_id", r.cfg.Campaign.ID,
				"processed", result.Processed(), "total", result.Total)
			return result, nil
		}

		lead := &r.cfg.Leads[i]
		outcome, ok := r.processLead(ctx, lead)
		if !ok {
			// Cancelled while waiting out an account's minimum spacing;
			// the lead was never attempted, so no outcome is recorded.
			r.finish(result, domain.RunCancelled)
			logger.Info("campaign cancelled", "campaign_id", r.cfg.Campaign.ID,
				"processed", result.Processed(), "total", result.Total)
			return result, nil
		}
		r.record(result, outcome)

		if i < len(r.cfg.Leads)-1 {
			r.pace(ctx)
		}
	}

	// A cancel that lands after the last recipient was processed changes
	// nothing: every recipient has an outcome, so the run completed.
	r.finish(result, domain.RunCompleted)
	logger.Info("campaign finished", "campaign_id", r.cfg.Campaign.ID,
		"status", string(domain.RunCompleted), "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

func (r *CampaignRunner) checkPreconditions(result *domain.CampaignResult) error {
	if len(r.cfg.Leads) == 0 {
		return ErrNoRecipients
	}
	if r.cfg.Accounts == nil || r.cfg.Accounts.Len() == 0 {
		return ErrNoAccountPool
	}
	if r.cfg.Mailer == nil || r.cfg.Renderer == nil {
		return fmt.Errorf("runner is missing a mailer or renderer")
	}
	return nil
}

// processLead renders and sends one message, converting any failure into a
// recorded outcome. Nothing a single lead does can end the run. The bool
// is false only when the run was cancelled before the lead was attempted.
func (r *CampaignRunner) processLead(ctx context.Context, lead *domain.Lead) (domain.SendOutcome, bool) {
	outcome := domain.SendOutcome{
		LeadID: lead.ID,
		Email:  lead.Email,
		SentAt: time.Now(),
	}

	acct, err := r.pickAccount(ctx)
	if err != nil {
		outcome.Reason = err.Error()
		return outcome, true
	}
	outcome.Account = acct.Label()

	if !r.waitAccountReady(ctx, acct) {
		return outcome, false
	}

	msg, err := r.cfg.Renderer.Render(lead, r.cfg.Campaign.Settings.Attachments)
	if err != nil {
		outcome.Reason = fmt.Sprintf("render failed: %v", err)
		logger.Warn("render failed", "campaign_id", r.cfg.Campaign.ID,
			"recipient", lead.Email, "error", err.Error())
		return outcome, true
	}

	err = r.cfg.Mailer.Send(ctx, acct, msg)
	r.lastSend[acct.Label()] = time.Now()
	if err != nil {
		outcome.Reason = err.Error()
		logger.Warn("send failed", "campaign_id", r.cfg.Campaign.ID,
			"recipient", lead.Email, "account", acct.Label(), "error", err.Error())
		return outcome, true
	}

	outcome.Success = true
	outcome.SentAt = time.Now()
	logger.Debug("message sent", "campaign_id", r.cfg.Campaign.ID,
		"recipient", lead.Email, "account", acct.Label())
	return outcome, true
}

// waitAccountReady blocks until the account's minimum spacing since its
// previous send has elapsed. Returns false when the run is cancelled
// during the wait.
func (r *CampaignRunner) waitAccountReady(ctx context.Context, acct *domain.MailAccount) bool {
	spacing := acct.MinDelay()
	if spacing <= 0 {
		return true
	}
	last, ok := r.lastSend[acct.Label()]
	if !ok {
		return true
	}
	return r.sleepCancellable(ctx, spacing-time.Since(last))
}

// pickAccount takes the next account in rotation, skipping past accounts
// whose rate cap is exhausted. At most one full rotation is tried; when
// every account is capped the lead fails rather than stalling the run.
func (r *CampaignRunner) pickAccount(ctx context.Context) (*domain.MailAccount, error) {
	if r.cfg.Gate == nil {
		return r.cfg.Accounts.Next(), nil
	}
	for i := 0; i < r.cfg.Accounts.Len(); i++ {
		acct := r.cfg.Accounts.Next()
		ok, err := r.cfg.Gate.Allow(ctx, acct)
		if err != nil {
			return nil, fmt.Errorf("rate gate check failed: %w", err)
		}
		if ok {
			return acct, nil
		}
	}
	return nil, fmt.Errorf("all accounts are at their send cap")
}

// pace sleeps for the policy delay between recipients.
func (r *CampaignRunner) pace(ctx context.Context) {
	if r.cfg.Pacer == nil {
		return
	}
	r.sleepCancellable(ctx, r.cfg.Pacer.DelayFor())
}

// sleepCancellable sleeps for d, waking at least every 100ms to check for
// cancellation so a long delay never holds up a cancel request. Returns
// false when the sleep was cut short.
func (r *CampaignRunner) sleepCancellable(ctx context.Context, d time.Duration) bool {
	for d > 0 {
		if r.cancelled.Load() || ctx.Err() != nil {
			return false
		}
		step := cancelPollInterval
		if d < step {
			step = d
		}
		time.Sleep(step)
		d -= step
	}
	return !r.cancelled.Load() && ctx.Err() == nil
}

func (r *CampaignRunner) setRunning(result *domain.CampaignResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = domain.RunRunning
	result.Status = domain.RunRunning
	r.result = result
}

func (r *CampaignRunner) record(result *domain.CampaignResult, outcome domain.SendOutcome) {
	r.mu.Lock()
	result.Record(outcome)
	processed := result.Processed()
	r.mu.Unlock()

	if r.cfg.OnProgress != nil {
		msg := fmt.Sprintf("sent to %s", outcome.Email)
		if !outcome.Success {
			msg = fmt.Sprintf("failed for %s: %s", outcome.Email, outcome.Reason)
		}
		r.cfg.OnProgress(domain.ProgressUpdate{
			CampaignID: r.cfg.Campaign.ID,
			Current:    processed,
			Total:      result.Total,
			Message:    msg,
		})
	}
}

func (r *CampaignRunner) finish(result *domain.CampaignResult, status domain.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result.Status = status
	result.CompletedAt = time.Now()
	r.status = status
	r.result = result
}
