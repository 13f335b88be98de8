package ledger

// SeedAccount is a test helper that stores an account document directly when using
// the in-memory store, bypassing the update protocol.
func SeedAccount(s Store, acct Account) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if acct.CreatedAt.IsZero() {
			acct.CreatedAt = mem.now()
		}
		mem.accounts[acct.UserID] = acct
	}
}
