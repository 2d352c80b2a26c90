package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/service/campaign"
)

func newMockRepo(t *testing.T) (*CampaignRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCampaignRepo(db), mock
}

func sampleCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:   "camp-1",
		Name: "spring outreach",
		Template: domain.MessageTemplate{
			Subject:  "Hi {{first_name}}",
			TextBody: "Hello",
		},
		Settings:  domain.CampaignSettings{DelaySeconds: 2, MaxRetries: 3},
		Status:    domain.RunIdle,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCampaignRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	c := sampleCampaign()

	mock.ExpectExec("INSERT INTO campaigns").
		WithArgs(c.ID, c.Name, sqlmock.AnyArg(), sqlmock.AnyArg(), "idle",
			0, 0, 0, c.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepoGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	c := sampleCampaign()

	tpl, err := json.Marshal(c.Template)
	require.NoError(t, err)
	settings, err := json.Marshal(c.Settings)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "name", "template", "settings", "status",
		"total_recipients", "sent_count", "failed_count",
		"created_at", "started_at", "completed_at",
	}).AddRow(c.ID, c.Name, tpl, settings, "completed", 3, 2, 1, c.CreatedAt, nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").WithArgs("camp-1").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "spring outreach", got.Name)
	assert.Equal(t, domain.RunCompleted, got.Status)
	assert.Equal(t, "Hi {{first_name}}", got.Template.Subject)
	assert.Equal(t, 3, got.Settings.MaxRetries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepoGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepoUpdateNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	c := sampleCampaign()

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), c)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepoDelete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM campaigns").WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Delete(context.Background(), "camp-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepoSaveResult(t *testing.T) {
	repo, mock := newMockRepo(t)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result := &domain.CampaignResult{
		CampaignID: "camp-1",
		Total:      2,
		Sent:       1,
		Failed:     1,
		Status:     domain.RunCompleted,
		Outcomes: []domain.SendOutcome{
			{LeadID: "lead-0", Email: "a@example.com", Account: "alpha", Success: true, SentAt: started},
			{LeadID: "lead-1", Email: "b@example.com", Account: "beta", Reason: "550 rejected", SentAt: started},
		},
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM campaign_results").WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO campaign_results").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM send_outcomes").WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO send_outcomes").
		WithArgs("camp-1", 0, "lead-0", "a@example.com", "alpha", true, "", started).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO send_outcomes").
		WithArgs("camp-1", 1, "lead-1", "b@example.com", "beta", false, "550 rejected", started).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveResult(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepoGetResult(t *testing.T) {
	repo, mock := newMockRepo(t)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM campaign_results").WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"total", "sent", "failed", "status", "warnings", "started_at", "completed_at",
		}).AddRow(2, 1, 1, "completed", `{"account bad excluded"}`, started, started.Add(time.Minute)))
	mock.ExpectQuery("SELECT (.+) FROM send_outcomes").WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"lead_id", "email", "account", "success", "reason", "sent_at",
		}).
			AddRow("lead-0", "a@example.com", "alpha", true, "", started).
			AddRow("lead-1", "b@example.com", "beta", false, "550 rejected", started))

	result, err := repo.GetResult(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, domain.RunCompleted, result.Status)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "a@example.com", result.Outcomes[0].Email)
	assert.False(t, result.Outcomes[1].Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepoGetResultNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM campaign_results").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"total"}))

	_, err := repo.GetResult(context.Background(), "nope")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}
