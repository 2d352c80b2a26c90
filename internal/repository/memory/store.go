// Package memory provides an in-process repository. It backs the default
// single-binary deployment and the service tests; the postgres package
// offers the durable alternative.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/service/campaign"
)

// Store keeps campaigns, results, accounts, leads, and templates in maps
// guarded by one RWMutex. Values are copied on the way in and out so
// callers can never mutate shared state through a returned pointer.
type Store struct {
	mu        sync.RWMutex
	campaigns map[string]domain.Campaign
	results   map[string]domain.CampaignResult
	accounts  map[string]domain.MailAccount
	leads     map[string]domain.Lead
	templates map[string]domain.MessageTemplate

	// insertion order, so lists are stable without timestamps
	accountOrder  []string
	leadOrder     []string
	templateOrder []string
}

func NewStore() *Store {
	return &Store{
		campaigns: make(map[string]domain.Campaign),
		results:   make(map[string]domain.CampaignResult),
		accounts:  make(map[string]domain.MailAccount),
		leads:     make(map[string]domain.Lead),
		templates: make(map[string]domain.MessageTemplate),
	}
}

// --- campaign.Repository ---

func (s *Store) Create(ctx context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = cloneCampaign(*c)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	out := cloneCampaign(c)
	return &out, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, cloneCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Update(ctx context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; !ok {
		return campaign.ErrNotFound
	}
	s.campaigns[c.ID] = cloneCampaign(*c)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return campaign.ErrNotFound
	}
	delete(s.campaigns, id)
	delete(s.results, id)
	return nil
}

func (s *Store) SaveResult(ctx context.Context, result *domain.CampaignResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *result
	copied.Outcomes = append([]domain.SendOutcome(nil), result.Outcomes...)
	copied.Warnings = append([]string(nil), result.Warnings...)
	s.results[result.CampaignID] = copied
	return nil
}

func (s *Store) GetResult(ctx context.Context, campaignID string) (*domain.CampaignResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[campaignID]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	out := r
	out.Outcomes = append([]domain.SendOutcome(nil), r.Outcomes...)
	out.Warnings = append([]string(nil), r.Warnings...)
	return &out, nil
}

// --- accounts ---

func (s *Store) ListAccounts(ctx context.Context) ([]domain.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MailAccount, 0, len(s.accountOrder))
	for _, id := range s.accountOrder {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

func (s *Store) AddAccount(ctx context.Context, a domain.MailAccount) (domain.MailAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if _, exists := s.accounts[a.ID]; !exists {
		s.accountOrder = append(s.accountOrder, a.ID)
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	out := a
	return &out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return campaign.ErrNotFound
	}
	delete(s.accounts, id)
	s.accountOrder = removeID(s.accountOrder, id)
	return nil
}

// --- leads ---

func (s *Store) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Lead, 0, len(s.leadOrder))
	for _, id := range s.leadOrder {
		out = append(out, cloneLead(s.leads[id]))
	}
	return out, nil
}

func (s *Store) AddLead(ctx context.Context, l domain.Lead) (domain.Lead, error) {
	l.Normalize()
	if err := l.Validate(); err != nil {
		return domain.Lead{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = domain.LeadActive
	}
	if _, exists := s.leads[l.ID]; !exists {
		s.leadOrder = append(s.leadOrder, l.ID)
	}
	s.leads[l.ID] = cloneLead(l)
	return l, nil
}

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	out := cloneLead(l)
	return &out, nil
}

func (s *Store) DeleteLead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[id]; !ok {
		return campaign.ErrNotFound
	}
	delete(s.leads, id)
	s.leadOrder = removeID(s.leadOrder, id)
	return nil
}

// --- templates ---

func (s *Store) ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MessageTemplate, 0, len(s.templateOrder))
	for _, id := range s.templateOrder {
		out = append(out, s.templates[id])
	}
	return out, nil
}

func (s *Store) AddTemplate(ctx context.Context, t domain.MessageTemplate) (domain.MessageTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if _, exists := s.templates[t.ID]; !exists {
		s.templateOrder = append(s.templateOrder, t.ID)
	}
	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	out := t
	return &out, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return campaign.ErrNotFound
	}
	delete(s.templates, id)
	s.templateOrder = removeID(s.templateOrder, id)
	return nil
}

// cloneLead copies the lead including its custom field map. A struct copy
// alone would leave both sides sharing the map.
func cloneLead(l domain.Lead) domain.Lead {
	if l.CustomFields != nil {
		fields := make(map[string]any, len(l.CustomFields))
		for k, v := range l.CustomFields {
			fields[k] = v
		}
		l.CustomFields = fields
	}
	return l
}

// cloneCampaign copies the campaign including the attachment slice inside
// its settings.
func cloneCampaign(c domain.Campaign) domain.Campaign {
	if c.Settings.Attachments != nil {
		c.Settings.Attachments = append([]string(nil), c.Settings.Attachments...)
	}
	return c
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
