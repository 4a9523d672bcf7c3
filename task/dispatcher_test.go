package task_test

import (
	"context"
	"errors"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/semaphore"
	"github.com/vouchsafe/vouchsafe/task"
)

var _ = ginkgo.Describe("type Dispatcher", func() {
	var (
		ctx        context.Context
		cancel     context.CancelFunc
		registry   *task.Registry
		dispatcher *task.Dispatcher
		results    chan task.Result
	)

	ginkgo.BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		registry = &task.Registry{}
		results = make(chan task.Result, 10)

		dispatcher = &task.Dispatcher{
			Handlers:  registry,
			Semaphore: semaphore.New(2),
			Results: func(_ context.Context, res task.Result) {
				results <- res
			},
		}
	})

	ginkgo.AfterEach(func() {
		cancel()
	})

	dispatch := func(req task.Request) {
		err := dispatcher.Dispatch(ctx, req)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	}

	ginkgo.Describe("func Dispatch()", func() {
		ginkgo.It("executes the handler and delivers its output", func() {
			registry.Register(
				"double",
				func(_ context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
					return input.(int) * 2, nil
				},
			)

			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "double",
				Input:      3,
			})

			var res task.Result
			gomega.Eventually(results).Should(gomega.Receive(&res))
			gomega.Expect(res.Err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(res.Output).To(gomega.Equal(6))
			gomega.Expect(res.Attempts).To(gomega.Equal(1))
		})

		ginkgo.It("retries failed attempts until one succeeds", func() {
			attempts := 0
			registry.Register(
				"flaky",
				func(context.Context, *task.Heartbeat, interface{}) (interface{}, error) {
					attempts++
					if attempts < 3 {
						return nil, errors.New("<transient>")
					}
					return "ok", nil
				},
			)

			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "flaky",
				Policy: task.Policy{
					MaxAttempts: 5,
					BackoffMin:  time.Millisecond,
					BackoffMax:  5 * time.Millisecond,
				},
			})

			var res task.Result
			gomega.Eventually(results).Should(gomega.Receive(&res))
			gomega.Expect(res.Err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(res.Output).To(gomega.Equal("ok"))
			gomega.Expect(res.Attempts).To(gomega.Equal(3))
		})

		ginkgo.It("fails the task once its attempts are exhausted", func() {
			registry.Register(
				"broken",
				func(context.Context, *task.Heartbeat, interface{}) (interface{}, error) {
					return nil, errors.New("<terminal>")
				},
			)

			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "broken",
				Policy: task.Policy{
					MaxAttempts: 2,
					BackoffMin:  time.Millisecond,
					BackoffMax:  5 * time.Millisecond,
				},
			})

			var res task.Result
			gomega.Eventually(results).Should(gomega.Receive(&res))
			gomega.Expect(res.Err).To(gomega.MatchError("<terminal>"))
			gomega.Expect(res.Attempts).To(gomega.Equal(2))
		})

		ginkgo.It("does not retry aborted tasks", func() {
			attempts := 0
			registry.Register(
				"rejected",
				func(context.Context, *task.Heartbeat, interface{}) (interface{}, error) {
					attempts++
					return nil, task.Abort(errors.New("<invalid>"))
				},
			)

			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "rejected",
				Policy: task.Policy{
					MaxAttempts: 5,
					BackoffMin:  time.Millisecond,
				},
			})

			var res task.Result
			gomega.Eventually(results).Should(gomega.Receive(&res))
			gomega.Expect(res.Err).To(gomega.MatchError("<invalid>"))
			gomega.Expect(attempts).To(gomega.Equal(1))
		})

		ginkgo.It("fails tasks with no registered handler", func() {
			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "<unknown>",
			})

			var res task.Result
			gomega.Eventually(results).Should(gomega.Receive(&res))
			gomega.Expect(res.Err).Should(gomega.HaveOccurred())
			gomega.Expect(res.Attempts).To(gomega.Equal(0))
		})

		ginkgo.It("retries a stalled attempt immediately with its progress token", func() {
			var tokens []interface{}

			registry.Register(
				"stalls",
				func(ctx context.Context, hb *task.Heartbeat, _ interface{}) (interface{}, error) {
					tokens = append(tokens, hb.Progress())

					if len(tokens) == 1 {
						hb.Beat("page-3")

						// Stop heartbeating and wait for the stall monitor
						// to cancel the attempt.
						<-ctx.Done()
						return nil, ctx.Err()
					}

					return "resumed", nil
				},
			)

			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "stalls",
				Policy: task.Policy{
					MaxAttempts:       3,
					BackoffMin:        time.Second,
					HeartbeatInterval: 20 * time.Millisecond,
				},
			})

			var res task.Result
			gomega.Eventually(results, time.Second).Should(gomega.Receive(&res))
			gomega.Expect(res.Err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(res.Output).To(gomega.Equal("resumed"))
			gomega.Expect(tokens).To(gomega.Equal([]interface{}{nil, "page-3"}))
		})

		ginkgo.It("enforces the start-to-close deadline", func() {
			registry.Register(
				"slow",
				func(ctx context.Context, _ *task.Heartbeat, _ interface{}) (interface{}, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				},
			)

			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "slow",
				Policy: task.Policy{
					MaxAttempts:  1,
					StartToClose: 20 * time.Millisecond,
				},
			})

			var res task.Result
			gomega.Eventually(results).Should(gomega.Receive(&res))
			gomega.Expect(res.Err).To(gomega.MatchError(context.DeadlineExceeded))
		})
	})

	ginkgo.Describe("func CancelInstance()", func() {
		ginkgo.It("discards the results of in-flight tasks", func() {
			started := make(chan struct{})

			registry.Register(
				"blocked",
				func(ctx context.Context, _ *task.Heartbeat, _ interface{}) (interface{}, error) {
					close(started)
					<-ctx.Done()
					return nil, ctx.Err()
				},
			)

			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "blocked",
				Policy: task.Policy{
					MaxAttempts: 1,
				},
			})

			gomega.Eventually(started).Should(gomega.BeClosed())

			dispatcher.CancelInstance("<instance>")

			gomega.Consistently(results, 100*time.Millisecond).ShouldNot(gomega.Receive())
		})

		ginkgo.It("does not affect tasks of other instances", func() {
			registry.Register(
				"quick",
				func(context.Context, *task.Heartbeat, interface{}) (interface{}, error) {
					return nil, nil
				},
			)

			dispatcher.CancelInstance("<other>")

			dispatch(task.Request{
				TaskID:     "<task>",
				InstanceID: "<instance>",
				Name:       "quick",
			})

			gomega.Eventually(results).Should(gomega.Receive())
		})
	})
})
