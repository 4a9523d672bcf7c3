package vouchsafe_test

import (
	"context"
	"reflect"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/vouchsafe/vouchsafe"
	"github.com/vouchsafe/vouchsafe/fixtures"
	"github.com/vouchsafe/vouchsafe/persistence/memorypersistence"
	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
)

type GreetRequest struct {
	Name string
}

type GreetingComposed struct {
	Text string
}

type Greeting struct {
	Text string
}

type greetingRoot struct {
	Text string
}

func (r *greetingRoot) ApplyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case GreetingComposed:
		r.Text = ev.Text
	}
}

var _ = Describe("type Engine", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		provider *memorypersistence.Provider
		def      process.Definition
		options  func() []EngineOption
		engine   *Engine
		done     chan struct{}
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		provider = &memorypersistence.Provider{}

		def = &fixtures.ProcessDefinitionStub{
			NameFunc: func() string {
				return "greeting"
			},
			NewFunc: func() process.Root {
				return &greetingRoot{}
			},
			HandleStartFunc: func(
				_ context.Context,
				_ process.Root,
				s process.Scope,
				input interface{},
			) error {
				req, ok := input.(GreetRequest)
				if !ok || req.Name == "" {
					return process.Validationf("a name is required")
				}

				s.ExecuteTask("compose", req, task.Policy{})
				return nil
			},
			HandleTaskResultFunc: func(
				_ context.Context,
				_ process.Root,
				s process.Scope,
				res process.TaskResult,
			) error {
				if res.Err != nil {
					s.Fail(res.Err.Error())
					return nil
				}

				g := res.Output.(Greeting)
				s.RecordEvent(GreetingComposed{Text: g.Text})
				s.Complete(g)
				return nil
			},
			HandleQueryFunc: func(r process.Root, name string) (interface{}, error) {
				return r.(*greetingRoot).Text, nil
			},
		}

		reg := &task.Registry{}
		reg.Register(
			"compose",
			func(
				_ context.Context,
				_ *task.Heartbeat,
				input interface{},
			) (interface{}, error) {
				req := input.(GreetRequest)
				return Greeting{Text: "Hello, " + req.Name}, nil
			},
		)

		options = func() []EngineOption {
			return []EngineOption{
				WithProcess(def),
				WithTasks(reg),
				WithPersistence(provider),
				WithMessageTypes(
					reflect.TypeOf(GreetRequest{}),
					reflect.TypeOf(GreetingComposed{}),
					reflect.TypeOf(Greeting{}),
				),
				WithLogger(logging.DiscardLogger{}),
			}
		}
	})

	AfterEach(func() {
		cancel()

		if done != nil {
			Eventually(done).Should(BeClosed())
		}
	})

	run := func(ctx context.Context, e *Engine) chan struct{} {
		ch := make(chan struct{})

		go func() {
			defer GinkgoRecover()
			defer close(ch)
			e.Run(ctx)
		}()

		return ch
	}

	JustBeforeEach(func() {
		engine = New(options()...)
		done = run(ctx, engine)
	})

	It("runs a process instance to completion", func() {
		err := engine.Start(ctx, "<instance>", "greeting", GreetRequest{Name: "Vera"})
		Expect(err).ShouldNot(HaveOccurred())

		Eventually(func() (process.Status, error) {
			return engine.Status(ctx, "<instance>")
		}).Should(Equal(process.StatusCompleted))

		text, err := engine.Query(ctx, "<instance>", "text")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(text).To(Equal("Hello, Vera"))
	})

	It("returns an AlreadyExistsError if the instance ID is in use", func() {
		err := engine.Start(ctx, "<instance>", "greeting", GreetRequest{Name: "Vera"})
		Expect(err).ShouldNot(HaveOccurred())

		err = engine.Start(ctx, "<instance>", "greeting", GreetRequest{Name: "Vera"})
		Expect(err).To(MatchError(AlreadyExistsError{InstanceID: "<instance>"}))
	})

	It("rejects a start input that fails validation without creating the instance", func() {
		err := engine.Start(ctx, "<instance>", "greeting", GreetRequest{})
		Expect(err).To(MatchError(ValidationError{Reason: "a name is required"}))

		_, err = engine.Status(ctx, "<instance>")
		Expect(err).To(MatchError(NotFoundError{InstanceID: "<instance>"}))
	})

	It("returns a NotFoundError for operations on unknown instances", func() {
		err := engine.Signal(ctx, "<unknown>", "poke", nil)
		Expect(err).To(MatchError(NotFoundError{InstanceID: "<unknown>"}))
	})

	It("recovers persisted instances when restarted", func() {
		err := engine.Start(ctx, "<instance>", "greeting", GreetRequest{Name: "Vera"})
		Expect(err).ShouldNot(HaveOccurred())

		Eventually(func() (process.Status, error) {
			return engine.Status(ctx, "<instance>")
		}).Should(Equal(process.StatusCompleted))

		cancel()
		Eventually(done).Should(BeClosed())

		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		engine = New(options()...)
		done = run(ctx, engine)

		Eventually(func() (process.Status, error) {
			return engine.Status(ctx, "<instance>")
		}).Should(Equal(process.StatusCompleted))

		text, err := engine.Query(ctx, "<instance>", "text")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(text).To(Equal("Hello, Vera"))
	})
})
