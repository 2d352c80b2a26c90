package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/mailing"
	"github.com/mailforge/bulksender/internal/pkg/logger"
	"github.com/mailforge/bulksender/internal/worker"
)

// Service implements campaign business logic. It validates lifecycle
// transitions, assembles the runner wiring for a send, and persists the
// final result when a run reaches a terminal state. All public methods are
// safe for concurrent use if the underlying repository is.
type Service struct {
	repo     Repository
	accounts AccountSource
	leads    LeadSource
	manager  *worker.Manager
	gate     worker.RateGate

	// templates is shared across runs so repeated sends of the same
	// campaign reuse the parsed template.
	templates *mailing.TemplateService

	// NewMailer builds the mailer for one run. Replaceable so tests can
	// run campaigns without opening sockets.
	NewMailer func(settings domain.CampaignSettings) worker.Mailer
}

// NewService creates a campaign service. The gate may be nil when no send
// caps are enforced.
func NewService(repo Repository, accounts AccountSource, leads LeadSource, manager *worker.Manager, gate worker.RateGate) *Service {
	return &Service{
		repo:      repo,
		accounts:  accounts,
		leads:     leads,
		manager:   manager,
		gate:      gate,
		templates: mailing.NewTemplateService(),
	}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name     string                  `json:"name"`
	Template domain.MessageTemplate  `json:"template"`
	Settings domain.CampaignSettings `json:"settings"`
}

// Create validates and persists a new campaign in idle status. The
// template must parse; catching that here means a bad template fails at
// creation instead of at send time.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.Template.Subject == "" {
		return nil, fmt.Errorf("template subject is required")
	}
	if input.Template.HTMLBody == "" && input.Template.TextBody == "" {
		return nil, fmt.Errorf("template needs an html or text body")
	}
	if _, err := mailing.NewMessageRenderer(s.templates, input.Template); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTemplate, err)
	}

	c := &domain.Campaign{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Template:  input.Template,
		Settings:  input.Settings,
		Status:    domain.RunIdle,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	logger.Info("campaign created", "campaign_id", c.ID, "name", c.Name)
	return c, nil
}

// Get returns a single campaign, with live status overlaid while a run is
// in flight.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if status, ok := s.manager.Status(id); ok && !c.Status.Terminal() {
		c.Status = status
	}
	return c, nil
}

// List returns all campaigns.
func (s *Service) List(ctx context.Context) ([]domain.Campaign, error) {
	return s.repo.List(ctx)
}

// Delete removes a campaign that is not currently running.
func (s *Service) Delete(ctx context.Context, id string) error {
	if status, ok := s.manager.Status(id); ok && status == domain.RunRunning {
		return ErrAlreadyRunning
	}
	return s.repo.Delete(ctx, id)
}

// Start launches a campaign run on its own worker goroutine. It performs
// the pre-run checks, wires the runner, and returns as soon as the run is
// accepted; progress is observed via Progress and the final result via
// Result.
func (s *Service) Start(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if status, ok := s.manager.Status(id); ok && status == domain.RunRunning {
		return ErrAlreadyRunning
	}

	leads, err := s.activeLeads(ctx)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	if len(leads) == 0 {
		return ErrNoRecipients
	}

	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	pool, err := mailing.NewAccountPool(accounts)
	if err != nil {
		return err
	}

	renderer, err := mailing.NewMessageRenderer(s.templates, c.Template)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadTemplate, err)
	}

	mailer := s.buildMailer(c.Settings)
	pacer := mailing.NewPacingPolicy(
		time.Duration(c.Settings.DelaySeconds*float64(time.Second)),
		c.Settings.RandomizeDelay,
	)

	now := time.Now()
	c.Status = domain.RunRunning
	c.StartedAt = &now
	c.TotalRecipients = len(leads)
	c.SentCount = 0
	c.FailedCount = 0
	c.CompletedAt = nil
	if err := s.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("mark campaign running: %w", err)
	}

	cfg := worker.RunnerConfig{
		Campaign: c,
		Leads:    leads,
		Accounts: pool,
		Mailer:   mailer,
		Renderer: renderer,
		Pacer:    pacer,
		Gate:     s.gate,
	}
	err = s.manager.Start(context.Background(), cfg, func(result *domain.CampaignResult, runErr error) {
		s.recordResult(c.ID, result, runErr)
	})
	if err != nil {
		if errors.Is(err, worker.ErrRunInProgress) {
			return ErrAlreadyRunning
		}
		return err
	}
	return nil
}

// Cancel requests a cooperative stop of a running campaign.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.manager.Cancel(id); err != nil {
		return ErrNotRunning
	}
	return nil
}

// Progress reports how far a run has advanced.
func (s *Service) Progress(ctx context.Context, id string) (domain.ProgressUpdate, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return domain.ProgressUpdate{}, err
	}
	p, err := s.manager.Progress(id)
	if err != nil {
		return domain.ProgressUpdate{}, ErrNotRunning
	}
	return p, nil
}

// Result returns the final result of the most recent run, preferring the
// in-memory copy and falling back to the persisted one.
func (s *Service) Result(ctx context.Context, id string) (*domain.CampaignResult, error) {
	if result, err := s.manager.Result(id); err == nil {
		return result, nil
	}
	return s.repo.GetResult(ctx, id)
}

func (s *Service) buildMailer(settings domain.CampaignSettings) worker.Mailer {
	if s.NewMailer != nil {
		return s.NewMailer(settings)
	}
	mailer := mailing.NewSMTPMailer()
	if settings.MaxRetries > 0 {
		mailer.MaxRetries = settings.MaxRetries
	}
	return mailer
}

func (s *Service) activeLeads(ctx context.Context) ([]domain.Lead, error) {
	all, err := s.leads.ListLeads(ctx)
	if err != nil {
		return nil, err
	}
	leads := make([]domain.Lead, 0, len(all))
	for _, l := range all {
		if l.Status == "" || l.Status == domain.LeadActive {
			leads = append(leads, l)
		}
	}
	return leads, nil
}

// recordResult persists the terminal state of a run. It runs on the
// runner's goroutine after the campaign context may already be gone, so it
// uses a fresh context.
func (s *Service) recordResult(campaignID string, result *domain.CampaignResult, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if runErr != nil {
		logger.Error("campaign run ended with error", "campaign_id", campaignID, "error", runErr.Error())
	}

	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		logger.Error("load campaign for result", "campaign_id", campaignID, "error", err.Error())
		return
	}
	c.Status = result.Status
	c.SentCount = result.Sent
	c.FailedCount = result.Failed
	c.TotalRecipients = result.Total
	completed := result.CompletedAt
	c.CompletedAt = &completed
	if err := s.repo.Update(ctx, c); err != nil {
		logger.Error("persist campaign summary", "campaign_id", campaignID, "error", err.Error())
	}
	if err := s.repo.SaveResult(ctx, result); err != nil {
		logger.Error("persist campaign result", "campaign_id", campaignID, "error", err.Error())
	}
}
