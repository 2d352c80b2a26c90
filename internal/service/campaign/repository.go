package campaign

import (
	"context"

	"github.com/mailforge/bulksender/internal/domain"
)

// Repository defines the data access contract for campaigns and their run
// results. Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns all campaigns ordered by created_at descending.
	List(ctx context.Context) ([]domain.Campaign, error)

	// Update overwrites a campaign's mutable fields and summary counters.
	Update(ctx context.Context, c *domain.Campaign) error

	// Delete removes a campaign. Running campaigns cannot be deleted.
	Delete(ctx context.Context, id string) error

	// SaveResult persists a terminal run result with its outcome log.
	SaveResult(ctx context.Context, result *domain.CampaignResult) error

	// GetResult returns the most recent persisted result for a campaign.
	// Returns ErrNotFound when no run has finished yet.
	GetResult(ctx context.Context, campaignID string) (*domain.CampaignResult, error)
}

// AccountSource supplies the sending accounts available to a run.
type AccountSource interface {
	ListAccounts(ctx context.Context) ([]domain.MailAccount, error)
}

// LeadSource supplies the recipients of a run.
type LeadSource interface {
	ListLeads(ctx context.Context) ([]domain.Lead, error)
}
