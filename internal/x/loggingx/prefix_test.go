package loggingx_test

import (
	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/internal/x/loggingx"
)

var _ = Describe("func WithPrefix()", func() {
	var (
		buf    *logging.BufferedLogger
		logger logging.Logger
	)

	BeforeEach(func() {
		buf = &logging.BufferedLogger{CaptureDebug: true}
		logger = loggingx.WithPrefix(buf, "[%s] ", "timer")
	})

	It("prefixes formatted messages", func() {
		logger.Log("fired %d timeout(s)", 3)

		Expect(buf.Messages()).To(ContainElement(
			logging.BufferedLogMessage{
				Message: "[timer] fired 3 timeout(s)",
			},
		))
	})

	It("prefixes string messages", func() {
		logger.LogString("stopped")

		Expect(buf.Messages()).To(ContainElement(
			logging.BufferedLogMessage{
				Message: "[timer] stopped",
			},
		))
	})

	It("prefixes debug messages", func() {
		logger.Debug("retrying in %s", "5s")

		Expect(buf.Messages()).To(ContainElement(
			logging.BufferedLogMessage{
				Message: "[timer] retrying in 5s",
				IsDebug: true,
			},
		))
	})

	It("does not let a percent sign in the prefix consume arguments", func() {
		logger = loggingx.WithPrefix(buf, "[100%%] ")
		logger.Log("fired %d timeout(s)", 3)

		Expect(buf.Messages()).To(ContainElement(
			logging.BufferedLogMessage{
				Message: "[100%] fired 3 timeout(s)",
			},
		))
	})

	It("reports the target's debug state", func() {
		Expect(logger.IsDebug()).To(BeTrue())
	})
})
