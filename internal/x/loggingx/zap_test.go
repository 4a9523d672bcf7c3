package loggingx_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/internal/x/loggingx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("type Zap", func() {
	var (
		observed *observer.ObservedLogs
		logger   *loggingx.Zap
	)

	level := zapcore.InfoLevel

	JustBeforeEach(func() {
		var core zapcore.Core
		core, observed = observer.New(level)
		logger = &loggingx.Zap{Target: zap.New(core)}
	})

	AfterEach(func() {
		level = zapcore.InfoLevel
	})

	It("logs formatted messages at INFO level", func() {
		logger.Log("started %d instance(s)", 3)

		entries := observed.All()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Message).To(Equal("started 3 instance(s)"))
		Expect(entries[0].Level).To(Equal(zapcore.InfoLevel))
	})

	It("logs string messages verbatim", func() {
		logger.LogString("100%% certain")

		entries := observed.All()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Message).To(Equal("100%% certain"))
	})

	It("suppresses debug messages when the target is not debugging", func() {
		Expect(logger.IsDebug()).To(BeFalse())

		logger.Debug("noisy detail")
		Expect(observed.Len()).To(BeZero())
	})

	When("the target logs at DEBUG level", func() {
		BeforeEach(func() {
			level = zapcore.DebugLevel
		})

		It("logs debug messages", func() {
			Expect(logger.IsDebug()).To(BeTrue())

			logger.Debug("retrying in %s", "5s")

			entries := observed.All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Message).To(Equal("retrying in 5s"))
			Expect(entries[0].Level).To(Equal(zapcore.DebugLevel))
		})
	})
})
