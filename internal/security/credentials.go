package security

import (
	"slices"
	"sync"
)

// CredentialsServiceName is the AppContext service key of the process
// CredentialStore.
const CredentialsServiceName = "security.credentials"

// CredentialStore collects the secrets found in module configuration
// (gateway tokens, exporter headers) so they can be redacted from logs,
// audit events and run messages.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Set stores a credential under name. Empty values are ignored.
func (s *CredentialStore) Set(name, value string) {
	if value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[name] = value
}

// Get returns the credential stored under name.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Names returns the sorted credential names.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns all credential values. Order is not guaranteed.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		values = append(values, v)
	}
	return values
}

// SyncCredentials registers every value of store as a literal secret.
// Values already known are skipped, so it is safe to call after each
// reload.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	if store == nil {
		return
	}
	for _, v := range store.Values() {
		r.mu.RLock()
		known := slices.Contains(r.literals, v)
		r.mu.RUnlock()
		if !known {
			r.AddLiteral(v)
		}
	}
}
