package verify_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/verify"
)

var _ = Describe("func Score()", func() {
	method := func(name string, weight float64) verify.Method {
		return verify.Method{
			Method: name,
			Weight: weight,
		}
	}

	It("returns zero for an empty method list", func() {
		Expect(verify.Score(nil)).To(BeZero())
	})

	It("sums the method weights", func() {
		score := verify.Score([]verify.Method{
			method(verify.MethodDocument, 24),
			method(verify.MethodInPerson, 40),
		})

		Expect(score).To(Equal(64.0))
	})

	It("caps the cumulative community contribution", func() {
		score := verify.Score([]verify.Method{
			method(verify.MethodCommunity, 30),
			method(verify.MethodCommunity, 30),
			method(verify.MethodManual, 10),
		})

		// The second community method only contributes the 20 points left
		// under the cap.
		Expect(score).To(Equal(60.0))
	})

	It("applies the community cap before the global ceiling", func() {
		score := verify.Score([]verify.Method{
			method(verify.MethodCommunity, 80),
			method(verify.MethodDocument, 30),
		})

		Expect(score).To(Equal(80.0))
	})

	It("clamps the total to the maximum score", func() {
		score := verify.Score([]verify.Method{
			method(verify.MethodDocument, 30),
			method(verify.MethodInPerson, 40),
			method(verify.MethodTrustNetwork, 50),
		})

		Expect(score).To(Equal(100.0))
	})

	It("is insensitive to method order", func() {
		a := []verify.Method{
			method(verify.MethodCommunity, 40),
			method(verify.MethodDocument, 24),
			method(verify.MethodCommunity, 40),
		}
		b := []verify.Method{
			method(verify.MethodCommunity, 40),
			method(verify.MethodCommunity, 40),
			method(verify.MethodDocument, 24),
		}

		Expect(verify.Score(a)).To(Equal(verify.Score(b)))
	})
})
