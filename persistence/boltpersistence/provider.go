package boltpersistence

import (
	"context"
	"os"
	"sync"

	"github.com/vouchsafe/vouchsafe/internal/x/bboltx"
	"github.com/vouchsafe/vouchsafe/persistence"
	"go.etcd.io/bbolt"
)

// Provider is an implementation of persistence.Provider for BoltDB that uses
// an existing open database.
type Provider struct {
	provider

	// DB is the BoltDB database to use.
	DB *bbolt.DB
}

// Open returns the data store used to persist process journals.
//
// The data store is opened for exclusive use. If it is already open,
// ErrDataStoreLocked is returned.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	return p.open(
		ctx,
		func() (*bbolt.DB, error) {
			return p.DB, nil
		},
		func(*bbolt.DB) error {
			// Don't actually close the database, since we didn't open it.
			return nil
		},
	)
}

// FileProvider is an implementation of persistence.Provider for BoltDB that
// opens a BoltDB database file.
type FileProvider struct {
	provider

	// Path is the path to the BoltDB database to open or create.
	Path string

	// Mode is the file mode for the created file.
	// If it is zero, 0600 (owner read/write only) is used.
	Mode os.FileMode

	// Options is the BoltDB options for the database.
	// If it is nil, bbolt.DefaultOptions is used.
	Options *bbolt.Options
}

// Open returns the data store used to persist process journals.
//
// The data store is opened for exclusive use. If it is already open,
// ErrDataStoreLocked is returned.
func (p *FileProvider) Open(ctx context.Context) (persistence.DataStore, error) {
	return p.open(
		ctx,
		func() (*bbolt.DB, error) {
			return bboltx.Open(ctx, p.Path, p.Mode, p.Options)
		},
		func(db *bbolt.DB) error {
			return db.Close()
		},
	)
}

// provider is the common implementation of Provider and FileProvider.
type provider struct {
	m      sync.Mutex
	db     *bbolt.DB
	close  func(db *bbolt.DB) error
	locked bool
}

func (p *provider) open(
	_ context.Context,
	open func() (*bbolt.DB, error),
	close func(db *bbolt.DB) error,
) (persistence.DataStore, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.locked {
		return nil, persistence.ErrDataStoreLocked
	}

	if p.db == nil {
		db, err := open()
		if err != nil {
			return nil, err
		}

		p.db = db
		p.close = close
	}

	p.locked = true

	return &dataStore{
		db:      p.db,
		release: p.release,
	}, nil
}

// release is called when the data store is closed, allowing the provider to
// be opened again.
func (p *provider) release() error {
	p.m.Lock()
	defer p.m.Unlock()

	p.locked = false

	if p.db != nil {
		db := p.db
		c := p.close

		p.db = nil
		p.close = nil

		return c(db)
	}

	return nil
}
