package providertest

import (
	"context"
	"time"

	"github.com/dogmatiq/marshalkit"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/internal/x/gomegax"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/persistence"
)

// In is the set of values provided to Declare() by the provider-specific
// test suite.
type In struct {
	// NewProvider returns a new provider and a function that tears down any
	// resources it uses.
	NewProvider func() (persistence.Provider, func())
}

// Declare declares generic behavioral tests for a persistence provider.
func Declare(setup func(ctx context.Context) In) {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		provider persistence.Provider
		teardown func()
		ds       persistence.DataStore
	)

	ginkgo.BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		in := setup(ctx)
		if in.NewProvider == nil {
			ginkgo.Fail("NewProvider must be set")
		}

		provider, teardown = in.NewProvider()

		var err error
		ds, err = provider.Open(ctx)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		if ds != nil {
			ds.Close()
		}
		teardown()
		cancel()
	})

	ginkgo.Describe("func AppendRecords()", func() {
		ginkgo.It("round-trips records through the store", func() {
			expect := someRecords(0, 3)

			err := ds.AppendRecords(ctx, "<instance>", 0, 0, expect)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			j, err := ds.LoadJournal(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(j.Generation).To(gomega.BeNumerically("==", 0))
			gomega.Expect(j.Records).To(gomegax.EqualX(expect))
		})

		ginkgo.It("assigns contiguous offsets across batches", func() {
			err := ds.AppendRecords(ctx, "<instance>", 0, 0, someRecords(0, 2))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.AppendRecords(ctx, "<instance>", 0, 2, someRecords(2, 2))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			j, err := ds.LoadJournal(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(j.Records).To(gomega.HaveLen(4))

			for i, rec := range j.Records {
				gomega.Expect(rec.Offset).To(gomega.BeNumerically("==", i))
			}
		})

		ginkgo.It("returns a conflict when the offset is stale", func() {
			err := ds.AppendRecords(ctx, "<instance>", 0, 0, someRecords(0, 2))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.AppendRecords(ctx, "<instance>", 0, 1, someRecords(1, 1))
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))
		})

		ginkgo.It("returns a conflict when the generation is stale", func() {
			err := ds.AppendRecords(ctx, "<instance>", 0, 0, someRecords(0, 1))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.ResetJournal(ctx, "<instance>", 1, someRecords(0, 1))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.AppendRecords(ctx, "<instance>", 0, 1, someRecords(1, 1))
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))
		})

		ginkgo.It("does not persist any records when the batch conflicts", func() {
			err := ds.AppendRecords(ctx, "<instance>", 0, 1, someRecords(1, 2))
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))

			j, err := ds.LoadJournal(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(j.Records).To(gomega.BeEmpty())
		})

		ginkgo.It("keeps instances isolated from each other", func() {
			err := ds.AppendRecords(ctx, "<instance-a>", 0, 0, someRecords(0, 1))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			j, err := ds.LoadJournal(ctx, "<instance-b>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(j.Records).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("func LoadJournal()", func() {
		ginkgo.It("returns an empty journal for an unknown instance", func() {
			j, err := ds.LoadJournal(ctx, "<unknown>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(j.Generation).To(gomega.BeNumerically("==", 0))
			gomega.Expect(j.Records).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("func ResetJournal()", func() {
		ginkgo.It("discards prior history and begins the next generation", func() {
			err := ds.AppendRecords(ctx, "<instance>", 0, 0, someRecords(0, 3))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			seed := someRecords(0, 1)
			err = ds.ResetJournal(ctx, "<instance>", 1, seed)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			j, err := ds.LoadJournal(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(j.Generation).To(gomega.BeNumerically("==", 1))
			gomega.Expect(j.Records).To(gomegax.EqualX(seed))
		})

		ginkgo.It("returns a conflict when the generation is not the successor", func() {
			err := ds.AppendRecords(ctx, "<instance>", 0, 0, someRecords(0, 1))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.ResetJournal(ctx, "<instance>", 5, someRecords(0, 1))
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))
		})
	})

	ginkgo.Describe("func InstanceIDs()", func() {
		ginkgo.It("returns the IDs of persisted instances", func() {
			err := ds.AppendRecords(ctx, "<instance-a>", 0, 0, someRecords(0, 1))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.AppendRecords(ctx, "<instance-b>", 0, 0, someRecords(0, 1))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ids, err := ds.InstanceIDs(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.ConsistOf("<instance-a>", "<instance-b>"))
		})
	})

	ginkgo.Describe("func Close()", func() {
		ginkgo.It("prevents further operations", func() {
			err := ds.Close()
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.AppendRecords(ctx, "<instance>", 0, 0, someRecords(0, 1))
			gomega.Expect(err).To(gomega.Equal(persistence.ErrDataStoreClosed))

			_, err = ds.LoadJournal(ctx, "<instance>")
			gomega.Expect(err).To(gomega.Equal(persistence.ErrDataStoreClosed))

			ds = nil
		})

		ginkgo.It("retains journals across a close and re-open", func() {
			expect := someRecords(0, 2)

			err := ds.AppendRecords(ctx, "<instance>", 0, 0, expect)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Close()
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			ds = nil

			reopened, err := provider.Open(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer reopened.Close()

			j, err := reopened.LoadJournal(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(j.Records).To(gomegax.EqualX(expect))
		})
	})
}

// someRecords returns n records with offsets starting at first, containing a
// representative spread of event types.
func someRecords(first uint64, n int) []*journal.Record {
	packer := &journal.Packer{
		Now: func() time.Time {
			// A fixed wall-clock time keeps comparisons stable across the
			// marshaling round-trip.
			return time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
		},
	}

	var records []*journal.Record

	for i := 0; i < n; i++ {
		var ev journal.Event

		switch i % 3 {
		case 0:
			ev = &journal.ProcessStarted{
				ProcessType: "<process>",
				Input: marshalkit.Packet{
					MediaType: "application/json; type=Input",
					Data:      []byte(`{}`),
				},
			}
		case 1:
			ev = &journal.SignalReceived{
				Name: "<signal>",
				Payload: marshalkit.Packet{
					MediaType: "application/json; type=Payload",
					Data:      []byte(`{"value":1}`),
				},
			}
		default:
			ev = &journal.TimerScheduled{
				TimerID: "<timer>",
				Name:    "<deadline>",
				FireAt:  time.Date(2024, 5, 11, 9, 30, 0, 0, time.UTC),
			}
		}

		rec := packer.Pack(ev)
		rec.Offset = first + uint64(i)
		records = append(records, rec)
	}

	return records
}
