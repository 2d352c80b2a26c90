package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/pkg/logger"
)

var (
	ErrRunInProgress = errors.New("campaign run already in progress")
	ErrRunNotFound   = errors.New("no run found for campaign")
)

// CompletionFunc receives the final result when a managed run reaches a
// terminal state. The error is non-nil only for aborted runs.
type CompletionFunc func(result *domain.CampaignResult, err error)

// Manager owns the lifecycle of campaign runs. Each run gets its own
// runner and goroutine; at most one run per campaign may be active at a
// time. Finished runners are kept so their results stay queryable until
// the same campaign is started again.
type Manager struct {
	mu      sync.Mutex
	runners map[string]*CampaignRunner

	wg sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{runners: make(map[string]*CampaignRunner)}
}

// Start launches a run in the background. It returns ErrRunInProgress if
// the campaign already has a non-terminal run.
func (m *Manager) Start(ctx context.Context, cfg RunnerConfig, done CompletionFunc) error {
	m.mu.Lock()
	if existing, ok := m.runners[cfg.Campaign.ID]; ok && !existing.Status().Terminal() {
		m.mu.Unlock()
		return ErrRunInProgress
	}
	runner := NewCampaignRunner(cfg)
	m.runners[cfg.Campaign.ID] = runner
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result, err := runner.Run(ctx)
		if done != nil {
			done(result, err)
		}
	}()
	return nil
}

// Cancel requests a cooperative stop of the campaign's active run.
func (m *Manager) Cancel(campaignID string) error {
	m.mu.Lock()
	runner, ok := m.runners[campaignID]
	m.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	if runner.Status().Terminal() {
		return ErrRunNotFound
	}
	runner.Cancel()
	logger.Info("cancel requested", "campaign_id", campaignID)
	return nil
}

// Progress returns the current progress of the campaign's most recent run.
func (m *Manager) Progress(campaignID string) (domain.ProgressUpdate, error) {
	m.mu.Lock()
	runner, ok := m.runners[campaignID]
	m.mu.Unlock()
	if !ok {
		return domain.ProgressUpdate{}, ErrRunNotFound
	}
	return runner.Progress(), nil
}

// Result returns the final result of the campaign's most recent run, or
// ErrRunNotFound while no terminal result exists.
func (m *Manager) Result(campaignID string) (*domain.CampaignResult, error) {
	m.mu.Lock()
	runner, ok := m.runners[campaignID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	result := runner.Result()
	if result == nil {
		return nil, ErrRunNotFound
	}
	return result, nil
}

// Status returns the lifecycle state of the campaign's most recent run.
func (m *Manager) Status(campaignID string) (domain.RunStatus, bool) {
	m.mu.Lock()
	runner, ok := m.runners[campaignID]
	m.mu.Unlock()
	if !ok {
		return domain.RunIdle, false
	}
	return runner.Status(), true
}

// Shutdown cancels every active run and waits for the runner goroutines
// to drain. In-flight sends finish; no new sends start.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for id, runner := range m.runners {
		if !runner.Status().Terminal() {
			logger.Info("cancelling run for shutdown", "campaign_id", id)
			runner.Cancel()
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}
