package timer_test

import (
	"context"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/timer"
)

var _ = ginkgo.Describe("type Service", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		service *timer.Service
		fired   chan timer.Timer
	)

	ginkgo.BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		fired = make(chan timer.Timer, 10)
		service = &timer.Service{
			Fired: func(_ context.Context, t timer.Timer) {
				fired <- t
			},
		}

		go service.Run(ctx)
	})

	ginkgo.AfterEach(func() {
		cancel()
	})

	ginkgo.Describe("func Schedule()", func() {
		ginkgo.It("fires a timer when it becomes due", func() {
			service.Schedule(timer.Timer{
				TimerID:    "<timer>",
				InstanceID: "<instance>",
				Name:       "<deadline>",
				FireAt:     time.Now().Add(20 * time.Millisecond),
			})

			var t timer.Timer
			gomega.Eventually(fired).Should(gomega.Receive(&t))
			gomega.Expect(t.TimerID).To(gomega.Equal("<timer>"))
		})

		ginkgo.It("fires an already-due timer immediately", func() {
			service.Schedule(timer.Timer{
				TimerID:    "<timer>",
				InstanceID: "<instance>",
				FireAt:     time.Now().Add(-time.Second),
			})

			gomega.Eventually(fired).Should(gomega.Receive())
		})

		ginkgo.It("fires timers in order of their due times", func() {
			service.Schedule(timer.Timer{
				TimerID:    "<timer-b>",
				InstanceID: "<instance>",
				FireAt:     time.Now().Add(60 * time.Millisecond),
			})

			service.Schedule(timer.Timer{
				TimerID:    "<timer-a>",
				InstanceID: "<instance>",
				FireAt:     time.Now().Add(20 * time.Millisecond),
			})

			var first, second timer.Timer
			gomega.Eventually(fired).Should(gomega.Receive(&first))
			gomega.Eventually(fired).Should(gomega.Receive(&second))

			gomega.Expect(first.TimerID).To(gomega.Equal("<timer-a>"))
			gomega.Expect(second.TimerID).To(gomega.Equal("<timer-b>"))
		})

		ginkgo.It("wakes the monitor when a new timer pre-empts the head", func() {
			service.Schedule(timer.Timer{
				TimerID:    "<timer-far>",
				InstanceID: "<instance>",
				FireAt:     time.Now().Add(1 * time.Hour),
			})

			service.Schedule(timer.Timer{
				TimerID:    "<timer-near>",
				InstanceID: "<instance>",
				FireAt:     time.Now().Add(20 * time.Millisecond),
			})

			var t timer.Timer
			gomega.Eventually(fired).Should(gomega.Receive(&t))
			gomega.Expect(t.TimerID).To(gomega.Equal("<timer-near>"))
		})
	})

	ginkgo.Describe("func Cancel()", func() {
		ginkgo.It("prevents the timer from firing", func() {
			service.Schedule(timer.Timer{
				TimerID:    "<timer>",
				InstanceID: "<instance>",
				FireAt:     time.Now().Add(50 * time.Millisecond),
			})

			ok := service.Cancel("<timer>")
			gomega.Expect(ok).To(gomega.BeTrue())

			gomega.Consistently(fired, 150*time.Millisecond).ShouldNot(gomega.Receive())
		})

		ginkgo.It("returns false if the timer has already fired", func() {
			service.Schedule(timer.Timer{
				TimerID:    "<timer>",
				InstanceID: "<instance>",
				FireAt:     time.Now(),
			})

			gomega.Eventually(fired).Should(gomega.Receive())

			ok := service.Cancel("<timer>")
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("returns false if the timer was never scheduled", func() {
			ok := service.Cancel("<unknown>")
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("func CancelInstance()", func() {
		ginkgo.It("prevents all of the instance's timers from firing", func() {
			service.Schedule(timer.Timer{
				TimerID:    "<timer-a>",
				InstanceID: "<instance>",
				FireAt:     time.Now().Add(50 * time.Millisecond),
			})

			service.Schedule(timer.Timer{
				TimerID:    "<timer-b>",
				InstanceID: "<instance>",
				FireAt:     time.Now().Add(60 * time.Millisecond),
			})

			service.Schedule(timer.Timer{
				TimerID:    "<timer-c>",
				InstanceID: "<other>",
				FireAt:     time.Now().Add(40 * time.Millisecond),
			})

			service.CancelInstance("<instance>")

			var t timer.Timer
			gomega.Eventually(fired).Should(gomega.Receive(&t))
			gomega.Expect(t.TimerID).To(gomega.Equal("<timer-c>"))

			gomega.Consistently(fired, 100*time.Millisecond).ShouldNot(gomega.Receive())
		})
	})
})
