package vouchsafe

import (
	"reflect"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit/codec"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/fixtures"
	"github.com/vouchsafe/vouchsafe/persistence/memorypersistence"
	"github.com/vouchsafe/vouchsafe/task"
)

var TestProcess = &fixtures.ProcessDefinitionStub{
	NameFunc: func() string {
		return "<process-name>"
	},
}

var _ = Describe("func WithProcess()", func() {
	It("adds the process definition", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
		)

		Expect(opts.Definitions).To(HaveLen(1))
		Expect(opts.Definitions[0]).To(BeIdenticalTo(TestProcess))
	})

	It("panics if process names conflict", func() {
		Expect(func() {
			resolveEngineOptions(
				WithProcess(TestProcess),
				WithProcess(TestProcess),
			)
		}).To(Panic())
	})

	It("panics if no WithProcess() options are provided", func() {
		Expect(func() {
			resolveEngineOptions(
				WithMessageTimeout(1 * time.Second), // provide something else
			)
		}).To(Panic())
	})
})

var _ = Describe("func WithTasks()", func() {
	It("sets the task registry", func() {
		r := &task.Registry{}

		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithTasks(r),
		)

		Expect(opts.Tasks).To(BeIdenticalTo(r))
	})

	It("uses an empty registry if the option is omitted", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
		)

		Expect(opts.Tasks).NotTo(BeNil())
		Expect(opts.Tasks.Names()).To(BeEmpty())
	})
})

var _ = Describe("func WithTaskDefaults()", func() {
	It("sets the default task policy", func() {
		p := task.Policy{
			MaxAttempts: 10,
		}

		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithTaskDefaults(p),
		)

		Expect(opts.TaskDefaults).To(Equal(p))
	})
})

var _ = Describe("func WithPersistence()", func() {
	It("sets the persistence provider", func() {
		p := &memorypersistence.Provider{}

		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithPersistence(p),
		)

		Expect(opts.PersistenceProvider).To(Equal(p))
	})

	It("uses the default if the provider is nil", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithPersistence(nil),
		)

		Expect(opts.PersistenceProvider).To(Equal(DefaultPersistenceProvider))
	})
})

var _ = Describe("func WithMessageTimeout()", func() {
	It("sets the message timeout", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithMessageTimeout(10*time.Minute),
		)

		Expect(opts.MessageTimeout).To(Equal(10 * time.Minute))
	})

	It("uses the default if the duration is zero", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithMessageTimeout(0),
		)

		Expect(opts.MessageTimeout).To(Equal(DefaultMessageTimeout))
	})

	It("panics if the duration is less than zero", func() {
		Expect(func() {
			WithMessageTimeout(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithConcurrencyLimit()", func() {
	It("sets the concurrency limit", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithConcurrencyLimit(100),
		)

		Expect(opts.ConcurrencyLimit).To(BeEquivalentTo(100))
	})

	It("uses the default if the limit is zero", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithConcurrencyLimit(0),
		)

		Expect(opts.ConcurrencyLimit).To(Equal(DefaultConcurrencyLimit))
	})
})

var _ = Describe("func WithHistoryCeiling()", func() {
	It("sets the history ceiling", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithHistoryCeiling(50),
		)

		Expect(opts.HistoryCeiling).To(Equal(50))
	})

	It("uses the default if the ceiling is zero", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithHistoryCeiling(0),
		)

		Expect(opts.HistoryCeiling).To(Equal(DefaultHistoryCeiling))
	})

	It("disables the ceiling if it is negative", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithHistoryCeiling(-1),
		)

		Expect(opts.HistoryCeiling).To(Equal(0))
	})
})

var _ = Describe("func WithMessageTypes()", func() {
	It("adds the message types", func() {
		type input struct{}
		t := reflect.TypeOf(input{})

		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithMessageTypes(t),
		)

		Expect(opts.Types).To(ConsistOf(t))
	})
})

var _ = Describe("func WithMarshaler()", func() {
	It("sets the marshaler", func() {
		m := &codec.Marshaler{}

		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithMarshaler(m),
		)

		Expect(opts.Marshaler).To(BeIdenticalTo(m))
	})

	It("constructs a default if the marshaler is nil", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithMarshaler(nil),
		)

		Expect(opts.Marshaler).To(Equal(
			NewDefaultMarshaler(opts.Types),
		))
	})
})

var _ = Describe("func WithLogger()", func() {
	It("sets the logger", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithLogger(logging.DebugLogger),
		)

		Expect(opts.Logger).To(BeIdenticalTo(logging.DebugLogger))
	})

	It("uses the default if the logger is nil", func() {
		opts := resolveEngineOptions(
			WithProcess(TestProcess),
			WithLogger(nil),
		)

		Expect(opts.Logger).To(Equal(DefaultLogger))
	})
})
