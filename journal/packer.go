package journal

import (
	"time"

	"github.com/google/uuid"
)

// Packer produces journal records containing events.
type Packer struct {
	// GenerateID is used to produce record IDs. If it is nil, a random UUID
	// is used.
	GenerateID func() string

	// Now is the clock used to produce record timestamps. If it is nil,
	// time.Now() is used.
	Now func() time.Time
}

// Pack returns a record containing ev with no journaled cause. Its causation
// and correlation IDs both refer to the record itself.
func (p *Packer) Pack(ev Event) *Record {
	id := p.generateID()

	return &Record{
		RecordID:      id,
		CausationID:   id,
		CorrelationID: id,
		CreatedAt:     p.now(),
		Event:         ev,
	}
}

// PackCausedBy returns a record containing ev that was caused by c.
func (p *Packer) PackCausedBy(c *Record, ev Event) *Record {
	return &Record{
		RecordID:      p.generateID(),
		CausationID:   c.RecordID,
		CorrelationID: c.CorrelationID,
		CreatedAt:     p.now(),
		Event:         ev,
	}
}

// NewID returns a new unique ID from the packer's ID generator. It is used
// for task, timer and child IDs so that they honor the same generator as
// record IDs.
func (p *Packer) NewID() string {
	return p.generateID()
}

func (p *Packer) generateID() string {
	if p.GenerateID != nil {
		return p.GenerateID()
	}

	return uuid.NewString()
}

func (p *Packer) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}

	return time.Now()
}
