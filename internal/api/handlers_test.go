package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/repository/memory"
	"github.com/mailforge/bulksender/internal/service/campaign"
	"github.com/mailforge/bulksender/internal/worker"
)

type fakeTester struct{ err error }

func (f fakeTester) TestConnection(acct *domain.MailAccount) error { return f.err }

type okMailer struct{}

func (okMailer) Send(ctx context.Context, acct *domain.MailAccount, msg *domain.RenderedMessage) error {
	return nil
}

func newTestServer(t *testing.T) (http.Handler, *memory.Store, *campaign.Service) {
	t.Helper()
	store := memory.NewStore()
	svc := campaign.NewService(store, store, store, worker.NewManager(), nil)
	svc.NewMailer = func(domain.CampaignSettings) worker.Mailer { return okMailer{} }
	h := NewHandlers(svc, store, fakeTester{})
	return SetupRoutes(h, nil), store, svc
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAccountCRUD(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/accounts", map[string]interface{}{
		"name":     "primary",
		"host":     "smtp.example.com",
		"port":     587,
		"username": "u@example.com",
		"password": "secret",
		"security": "tls",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.MailAccount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	// The password never serializes back out.
	assert.NotContains(t, rec.Body.String(), "secret")

	rec = doJSON(t, handler, http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []domain.MailAccount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	assert.Len(t, accounts, 1)

	rec = doJSON(t, handler, http.MethodPost, "/api/accounts/"+created.ID+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	rec = doJSON(t, handler, http.MethodDelete, "/api/accounts/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/accounts/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAccountRejectsInvalid(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/accounts", map[string]interface{}{
		"name": "broken",
		"port": 587,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAccountTestFailureReported(t *testing.T) {
	store := memory.NewStore()
	svc := campaign.NewService(store, store, store, worker.NewManager(), nil)
	h := NewHandlers(svc, store, fakeTester{err: errors.New("auth error via primary: 535")})
	handler := SetupRoutes(h, nil)

	acct, err := store.AddAccount(context.Background(), domain.MailAccount{
		Name: "primary", Host: "smtp.example.com", Port: 587,
		Username: "u", Password: "p", Security: domain.SecurityTLS,
	})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/accounts/"+acct.ID+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":false`)
	assert.Contains(t, rec.Body.String(), "535")
}

func TestLeadValidation(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/leads", map[string]string{
		"email": "not-an-email",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/leads", map[string]string{
		"email":      "  Ana@Example.COM ",
		"first_name": "Ana",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var lead domain.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lead))
	assert.Equal(t, "ana@example.com", lead.Email)
	assert.Equal(t, domain.LeadActive, lead.Status)
}

func TestTemplateCRUD(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/templates", map[string]string{
		"name":      "intro",
		"subject":   "Hi {{first_name}}",
		"text_body": "Hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/templates", map[string]string{
		"name": "no-subject",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCampaignLifecycle(t *testing.T) {
	handler, store, _ := newTestServer(t)

	_, err := store.AddAccount(context.Background(), domain.MailAccount{
		Name: "primary", Host: "smtp.example.com", Port: 587,
		Username: "u@example.com", Password: "p", Security: domain.SecurityTLS,
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.AddLead(context.Background(), domain.Lead{
			Email: fmt.Sprintf("lead%d@example.com", i),
		})
		require.NoError(t, err)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name": "spring outreach",
		"template": map[string]string{
			"subject":   "Hi {{first_name}}",
			"text_body": "Hello",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var c domain.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	rec = doJSON(t, handler, http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		rec := doJSON(t, handler, http.MethodGet, "/api/campaigns/"+c.ID, nil)
		var got domain.Campaign
		if json.Unmarshal(rec.Body.Bytes(), &got) != nil {
			return false
		}
		return got.Status.Terminal()
	}, 3*time.Second, 20*time.Millisecond)

	rec = doJSON(t, handler, http.MethodGet, "/api/campaigns/"+c.ID+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.CampaignResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.RunCompleted, result.Status)
	assert.Equal(t, 3, result.Sent)
	assert.Len(t, result.Outcomes, 3)
}

func TestSendCampaignWithoutRecipients(t *testing.T) {
	handler, store, _ := newTestServer(t)

	_, err := store.AddAccount(context.Background(), domain.MailAccount{
		Name: "primary", Host: "smtp.example.com", Port: 587,
		Username: "u@example.com", Password: "p", Security: domain.SecurityTLS,
	})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name":     "empty list",
		"template": map[string]string{"subject": "Hi", "text_body": "x"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var c domain.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	rec = doJSON(t, handler, http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCancelNotRunningConflicts(t *testing.T) {
	handler, _, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name":     "idle",
		"template": map[string]string{"subject": "Hi", "text_body": "x"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var c domain.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	rec = doJSON(t, handler, http.MethodPost, "/api/campaigns/"+c.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnknownCampaign404(t *testing.T) {
	handler, _, _ := newTestServer(t)

	for _, path := range []string{
		"/api/campaigns/nope",
		"/api/campaigns/nope/progress",
		"/api/campaigns/nope/result",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}
