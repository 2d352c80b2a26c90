// Package postgres implements the campaign repository against PostgreSQL
// using lib/pq. The template and settings documents are stored as JSONB so
// the schema does not chase every settings knob.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	tpl, err := json.Marshal(c.Template)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, template, settings, status,
		       total_recipients, sent_count, failed_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Name, tpl, settings, string(c.Status),
		c.TotalRecipients, c.SentCount, c.FailedCount, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var tpl, settings []byte
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, template, settings, status,
		       total_recipients, sent_count, failed_count,
		       created_at, started_at, completed_at
		FROM campaigns
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &tpl, &settings, &status,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount,
		&c.CreatedAt, &c.StartedAt, &c.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c.Status = domain.RunStatus(status)
	if err := json.Unmarshal(tpl, &c.Template); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if err := json.Unmarshal(settings, &c.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, status, total_recipients, sent_count, failed_count,
		       created_at, started_at, completed_at
		FROM campaigns
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		var status string
		if err := rows.Scan(&c.ID, &c.Name, &status,
			&c.TotalRecipients, &c.SentCount, &c.FailedCount,
			&c.CreatedAt, &c.StartedAt, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		c.Status = domain.RunStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	tpl, err := json.Marshal(c.Template)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET name = $2, template = $3, settings = $4, status = $5,
		    total_recipients = $6, sent_count = $7, failed_count = $8,
		    started_at = $9, completed_at = $10
		WHERE id = $1
	`, c.ID, c.Name, tpl, settings, string(c.Status),
		c.TotalRecipients, c.SentCount, c.FailedCount,
		c.StartedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// SaveResult replaces any previous result for the campaign. Outcomes are
// written in order with their position so the log reads back in recipient
// order.
func (r *CampaignRepo) SaveResult(ctx context.Context, result *domain.CampaignResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save result: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM campaign_results WHERE campaign_id = $1`, result.CampaignID)
	if err != nil {
		return fmt.Errorf("clear previous result: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaign_results (campaign_id, total, sent, failed, status,
		       warnings, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, result.CampaignID, result.Total, result.Sent, result.Failed,
		string(result.Status), pq.Array(result.Warnings),
		result.StartedAt, result.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM send_outcomes WHERE campaign_id = $1`, result.CampaignID)
	if err != nil {
		return fmt.Errorf("clear previous outcomes: %w", err)
	}
	for i, o := range result.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO send_outcomes (campaign_id, position, lead_id, email,
			       account, success, reason, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, result.CampaignID, i, o.LeadID, o.Email, o.Account, o.Success, o.Reason, o.SentAt)
		if err != nil {
			return fmt.Errorf("insert outcome %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

func (r *CampaignRepo) GetResult(ctx context.Context, campaignID string) (*domain.CampaignResult, error) {
	result := &domain.CampaignResult{CampaignID: campaignID}
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT total, sent, failed, status, warnings, started_at, completed_at
		FROM campaign_results
		WHERE campaign_id = $1
	`, campaignID).Scan(&result.Total, &result.Sent, &result.Failed,
		&status, pq.Array(&result.Warnings), &result.StartedAt, &result.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	result.Status = domain.RunStatus(status)

	rows, err := r.db.QueryContext(ctx, `
		SELECT lead_id, email, account, success, reason, sent_at
		FROM send_outcomes
		WHERE campaign_id = $1
		ORDER BY position ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o domain.SendOutcome
		if err := rows.Scan(&o.LeadID, &o.Email, &o.Account, &o.Success, &o.Reason, &o.SentAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		result.Outcomes = append(result.Outcomes, o)
	}
	return result, rows.Err()
}
