package core

import "sync"

// AccountRotation hands out accounts round-robin in configured order.
type AccountRotation struct {
	mu       sync.Mutex
	accounts []Account
	cursor   int
}

// NewAccountRotation fails fast when no accounts are configured.
func NewAccountRotation(accounts []Account) (*AccountRotation, error) {
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	cp := make([]Account, len(accounts))
	copy(cp, accounts)
	return &AccountRotation{accounts: cp}, nil
}

// Next returns the account under the cursor and advances it.
func (r *AccountRotation) Next() (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.accounts) == 0 {
		return Account{}, ErrNoAccounts
	}
	account := r.accounts[r.cursor%len(r.accounts)]
	r.cursor++
	return account, nil
}

// Accounts returns a copy of the configured accounts.
func (r *AccountRotation) Accounts() []Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Account, len(r.accounts))
	copy(cp, r.accounts)
	return cp
}
