package journal_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/internal/x/gomegax"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/task"
)

var _ = Describe("func MarshalRecord() and UnmarshalRecord()", func() {
	var packer *journal.Packer

	BeforeEach(func() {
		id := 0

		packer = &journal.Packer{
			GenerateID: func() string {
				id++
				return fmt.Sprintf("<id-%d>", id)
			},
			Now: func() time.Time {
				return time.Date(2024, time.May, 10, 9, 30, 0, 0, time.UTC)
			},
		}
	})

	It("round-trips a record", func() {
		rec := packer.Pack(&journal.TaskScheduled{
			TaskID: "<task>",
			Name:   "extract-text",
			Policy: task.Policy{
				MaxAttempts: 3,
				BackoffMin:  100 * time.Millisecond,
			},
		})

		data, err := journal.MarshalRecord(rec)
		Expect(err).ShouldNot(HaveOccurred())

		got, err := journal.UnmarshalRecord(data)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(got).To(gomegax.EqualX(rec))
	})

	It("preserves causation and correlation IDs", func() {
		cause := packer.Pack(&journal.SignalReceived{
			Name: "validator-response",
		})
		rec := packer.PackCausedBy(cause, &journal.TimerCanceled{
			TimerID: "<timer>",
		})

		data, err := journal.MarshalRecord(rec)
		Expect(err).ShouldNot(HaveOccurred())

		got, err := journal.UnmarshalRecord(data)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(got.CausationID).To(Equal(cause.RecordID))
		Expect(got.CorrelationID).To(Equal(cause.CorrelationID))
	})

	It("does not persist the offset", func() {
		rec := packer.Pack(&journal.TimerFired{TimerID: "<timer>"})
		rec.Offset = 42

		data, err := journal.MarshalRecord(rec)
		Expect(err).ShouldNot(HaveOccurred())

		got, err := journal.UnmarshalRecord(data)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(got.Offset).To(BeZero())
	})

	It("returns an error if the record contains no event", func() {
		_, err := journal.MarshalRecord(&journal.Record{RecordID: "<id>"})
		Expect(err).Should(HaveOccurred())
	})

	It("returns an error if the event kind is not recognized", func() {
		_, err := journal.UnmarshalRecord([]byte(
			`{"record_id":"<id>","kind":"<unknown>","event":{}}`,
		))
		Expect(err).To(MatchError(`unrecognized event kind "<unknown>"`))
	})
})
