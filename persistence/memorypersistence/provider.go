package memorypersistence

import (
	"context"
	"sync"

	"github.com/vouchsafe/vouchsafe/persistence"
)

// Provider is an implementation of the persistence.Provider interface that
// stores journals in memory.
//
// The journals are owned by the provider, not the data store. They survive
// closure of the data store, allowing tests to simulate an engine crash and
// recovery by re-opening the same provider.
type Provider struct {
	m        sync.Mutex
	journals map[string]*journalState
}

// journalState holds the persisted form of a single instance's journal.
// Records are kept marshaled so that loading exercises the same round-trip
// as an on-disk store.
type journalState struct {
	generation uint64
	records    [][]byte
}

// Open returns the data store used to persist process journals.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	return &dataStore{provider: p}, nil
}

func (p *Provider) get(id string) *journalState {
	if p.journals == nil {
		p.journals = map[string]*journalState{}
	}

	s, ok := p.journals[id]
	if !ok {
		s = &journalState{}
		p.journals[id] = s
	}

	return s
}
