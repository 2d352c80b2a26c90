package mailing

import (
	"fmt"
	"sync"

	"github.com/mailforge/bulksender/internal/domain"
	"github.com/mailforge/bulksender/internal/pkg/logger"
)

// AccountPool holds the usable subset of configured accounts and hands out
// the next one in strict round-robin order for each send.
//
// Failures are per-send, not per-account: an account that fails every send
// stays in rotation. The rotation counter is mutex-protected so the pool
// stays correct if multiple campaigns ever share it, although the baseline
// design runs a single campaign worker.
type AccountPool struct {
	mu       sync.Mutex
	accounts []domain.MailAccount
	next     int
	warnings []string
}

// NewAccountPool validates each account's configuration shape, excludes
// accounts that fail validation from rotation, and records a warning for
// each exclusion. Returns ErrNoUsableAccounts when zero accounts remain.
func NewAccountPool(accounts []domain.MailAccount) (*AccountPool, error) {
	p := &AccountPool{}
	for _, acct := range accounts {
		if err := acct.Validate(); err != nil {
			warning := fmt.Sprintf("account %s excluded: %v", acct.Label(), err)
			p.warnings = append(p.warnings, warning)
			logger.Warn("account excluded from rotation", "account", acct.Label(), "error", err.Error())
			continue
		}
		p.accounts = append(p.accounts, acct)
	}
	if len(p.accounts) == 0 {
		return nil, ErrNoUsableAccounts
	}
	return p, nil
}

// Next returns the next usable account in round-robin order. It is
// deterministic given call count and never blocks.
func (p *AccountPool) Next() *domain.MailAccount {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct := &p.accounts[p.next%len(p.accounts)]
	p.next++
	return acct
}

// Len returns the number of usable accounts in rotation.
func (p *AccountPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.accounts)
}

// Warnings returns one message per account excluded during initialization,
// for inclusion in the final campaign report.
func (p *AccountPool) Warnings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.warnings))
	copy(out, p.warnings)
	return out
}
