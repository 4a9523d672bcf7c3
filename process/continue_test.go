package process_test

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/fixtures"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/persistence"
	"github.com/vouchsafe/vouchsafe/persistence/memorypersistence"
	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
	"github.com/vouchsafe/vouchsafe/timer"
)

var _ = Describe("history ceiling", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		ds      persistence.DataStore
		defs    []process.Definition
		ceiling int
		sup     *process.Supervisor
		done    chan struct{}
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		defs = nil
		ceiling = 0
	})

	start := func() {
		var err error
		ds, err = (&memorypersistence.Provider{}).Open(ctx)
		Expect(err).ShouldNot(HaveOccurred())

		dispatcher := &task.Dispatcher{
			Handlers: &task.Registry{},
			Logger:   logging.DiscardLogger{},
		}

		timers := &timer.Service{
			Logger: logging.DiscardLogger{},
		}

		sup = &process.Supervisor{
			DataStore:      ds,
			Marshaler:      newMarshaler(),
			Packer:         &journal.Packer{},
			Tasks:          dispatcher,
			Timers:         timers,
			Logger:         logging.DiscardLogger{},
			HistoryCeiling: ceiling,
			MessageTimeout: 1 * time.Second,
		}

		for _, def := range defs {
			sup.RegisterDefinition(def)
		}

		dispatcher.Results = sup.DeliverTaskResult
		timers.Fired = sup.DeliverTimerFiring

		go timers.Run(ctx)

		done = make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			sup.Run(ctx)
		}()
	}

	AfterEach(func() {
		cancel()
		Eventually(done).Should(BeClosed())
		ds.Close()
	})

	// counter returns a definition that tracks a running count, carrying it
	// forward when the instance is continued.
	counter := func(name string) fixtures.ProcessDefinitionStub {
		return fixtures.ProcessDefinitionStub{
			NameFunc: func() string { return name },
			NewFunc:  func() process.Root { return &counterRoot{} },
			HandleStartFunc: func(
				_ context.Context,
				_ process.Root,
				s process.Scope,
				input interface{},
			) error {
				if t, ok := input.(Tally); ok {
					s.RecordEvent(t)
				}
				return nil
			},
			HandleSignalFunc: func(
				_ context.Context,
				r process.Root,
				s process.Scope,
				name string,
				_ interface{},
			) error {
				root := r.(*counterRoot)

				switch name {
				case "bump":
					s.RecordEvent(Tally{Count: root.Count + 1})
				case "rollover":
					s.ContinueAsNew(Tally{Count: root.Count + 1})
				}

				return nil
			},
			HandleQueryFunc: func(r process.Root, _ string) (interface{}, error) {
				return r.(*counterRoot).Count, nil
			},
		}
	}

	When("the definition continues explicitly", func() {
		BeforeEach(func() {
			def := counter("counter")
			defs = append(defs, &def)

			start()
		})

		It("restarts the instance with a fresh history", func() {
			err := sup.Start(ctx, "<inst>", "counter", nil)
			Expect(err).ShouldNot(HaveOccurred())

			for n := 0; n < 3; n++ {
				err = sup.Signal(ctx, "<inst>", "rollover", nil)
				Expect(err).ShouldNot(HaveOccurred())
			}

			st, err := sup.Status(ctx, "<inst>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(st).To(Equal(process.StatusRunning))

			count, err := sup.Query(ctx, "<inst>", "count")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(count).To(Equal(3))

			// Each continuation discards the prior generation's records.
			j, err := ds.LoadJournal(ctx, "<inst>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(j.Generation).To(BeEquivalentTo(3))
			Expect(j.Records).To(HaveLen(2))
		})
	})

	When("a continuable definition reaches the ceiling", func() {
		BeforeEach(func() {
			ceiling = 6

			defs = append(defs, &fixtures.ContinuableProcessDefinitionStub{
				ProcessDefinitionStub: counter("counter"),
				ContinuationInputFunc: func(r process.Root) interface{} {
					return Tally{Count: r.(*counterRoot).Count}
				},
			})

			start()
		})

		It("keeps the history bounded without losing state", func() {
			err := sup.Start(ctx, "<inst>", "counter", nil)
			Expect(err).ShouldNot(HaveOccurred())

			for n := 0; n < 20; n++ {
				err = sup.Signal(ctx, "<inst>", "bump", nil)
				Expect(err).ShouldNot(HaveOccurred())
			}

			count, err := sup.Query(ctx, "<inst>", "count")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(count).To(Equal(20))

			st, err := sup.Status(ctx, "<inst>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(st).To(Equal(process.StatusRunning))

			j, err := ds.LoadJournal(ctx, "<inst>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(j.Generation).To(BeNumerically(">", 1))
			Expect(len(j.Records)).To(BeNumerically("<", 10))
		})
	})

	When("a non-continuable definition reaches the ceiling", func() {
		BeforeEach(func() {
			ceiling = 4

			def := counter("counter")
			defs = append(defs, &def)

			start()
		})

		It("fails the instance", func() {
			err := sup.Start(ctx, "<inst>", "counter", nil)
			Expect(err).ShouldNot(HaveOccurred())

			for n := 0; n < 2; n++ {
				err = sup.Signal(ctx, "<inst>", "bump", nil)
				Expect(err).ShouldNot(HaveOccurred())
			}

			st, err := sup.Status(ctx, "<inst>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(st).To(Equal(process.StatusFailed))

			// The failed instance still answers queries, and further signals
			// are accepted without growing the journal.
			err = sup.Signal(ctx, "<inst>", "bump", nil)
			Expect(err).ShouldNot(HaveOccurred())

			count, err := sup.Query(ctx, "<inst>", "count")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(count).To(Equal(2))

			j, err := ds.LoadJournal(ctx, "<inst>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(j.Records).To(HaveLen(6))
		})
	})
})
