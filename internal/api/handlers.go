package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/pkg/logger"
	"github.com/mailforge/bulksender/internal/service/campaign"
)

// Directory is the account/lead/template store behind the CRUD endpoints.
type Directory interface {
	ListAccounts(ctx context.Context) ([]domain.MailAccount, error)
	AddAccount(ctx context.Context, a domain.MailAccount) (domain.MailAccount, error)
	GetAccount(ctx context.Context, id string) (*domain.MailAccount, error)
	DeleteAccount(ctx context.Context, id string) error

	ListLeads(ctx context.Context) ([]domain.Lead, error)
	AddLead(ctx context.Context, l domain.Lead) (domain.Lead, error)
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	DeleteLead(ctx context.Context, id string) error

	ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error)
	AddTemplate(ctx context.Context, t domain.MessageTemplate) (domain.MessageTemplate, error)
	GetTemplate(ctx context.Context, id string) (*domain.MessageTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// ConnTester verifies SMTP account credentials without sending.
type ConnTester interface {
	TestConnection(acct *domain.MailAccount) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	campaigns *campaign.Service
	dir       Directory
	tester    ConnTester
}

func NewHandlers(campaigns *campaign.Service, dir Directory, tester ConnTester) *Handlers {
	return &Handlers{campaigns: campaigns, dir: dir, tester: tester}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Error("encode response", "error", err.Error())
		}
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// serviceError maps service sentinel errors to HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, campaign.ErrAlreadyRunning), errors.Is(err, campaign.ErrNotRunning):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrNoRecipients), errors.Is(err, campaign.ErrBadTemplate):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- accounts ---

func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.dir.ListAccounts(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	// Password arrives through a dedicated field because MailAccount
	// never serializes it back out.
	var in struct {
		domain.MailAccount
		Password string `json:"password"`
	}
	if err := decode(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	acct := in.MailAccount
	acct.Password = in.Password
	if err := acct.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	created, err := h.dir.AddAccount(r.Context(), acct)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.dir.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// TestAccount dials and authenticates with the account's SMTP server.
func (h *Handlers) TestAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.dir.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	if err := h.tester.TestConnection(acct); err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// --- leads ---

func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.dir.ListLeads(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, leads)
}

func (h *Handlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	var lead domain.Lead
	if err := decode(r, &lead); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.dir.AddLead(r.Context(), lead)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.dir.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, lead)
}

func (h *Handlers) DeleteLead(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.DeleteLead(r.Context(), chi.URLParam(r, "id")); err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// --- templates ---

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.dir.ListTemplates(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, templates)
}

func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl domain.MessageTemplate
	if err := decode(r, &tpl); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if tpl.Subject == "" {
		respondError(w, http.StatusUnprocessableEntity, "subject is required")
		return
	}
	created, err := h.dir.AddTemplate(r.Context(), tpl)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.dir.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tpl)
}

func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// --- campaigns ---

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.List(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, campaigns)
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if err := decode(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.campaigns.Create(r.Context(), in)
	if err != nil {
		if errors.Is(err, campaign.ErrBadTemplate) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// SendCampaign starts a run and returns immediately; progress is polled.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.campaigns.Start(r.Context(), id); err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": id,
		"status":      string(domain.RunRunning),
	})
}

func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.campaigns.Cancel(r.Context(), id); err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": id,
		"status":      "cancelling",
	})
}

func (h *Handlers) CampaignProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.campaigns.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) CampaignResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.campaigns.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
