package sqlpersistence

import (
	"context"
	"database/sql"
	"sync"

	"github.com/vouchsafe/vouchsafe/persistence"
)

// Provider is an implementation of persistence.Provider for PostgreSQL.
//
// It is tested against the github.com/lib/pq driver.
type Provider struct {
	// DB is the PostgreSQL database to use.
	DB *sql.DB

	m      sync.Mutex
	locked bool
}

// Open returns the data store used to persist process journals.
//
// The data store is opened for exclusive use by this provider. If it is
// already open, ErrDataStoreLocked is returned. Exclusivity is not enforced
// across operating system processes.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.locked {
		return nil, persistence.ErrDataStoreLocked
	}

	p.locked = true

	return &dataStore{
		db: p.DB,
		release: func() error {
			p.m.Lock()
			defer p.m.Unlock()
			p.locked = false
			return nil
		},
	}, nil
}
