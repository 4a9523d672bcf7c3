package verify_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/fixtures"
	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/verify"
)

var _ = Describe("verification pathways", func() {
	var (
		h  *harness
		id string
	)

	BeforeEach(func() {
		h = newHarness()
		id = verify.VerificationID("vera")
	})

	AfterEach(func() {
		h.Close()
	})

	start := func(target float64, pathways ...string) {
		err := h.Engine.Start(
			h.Ctx,
			id,
			verify.ProcessType,
			verify.Input{
				UserID:         "vera",
				TargetScore:    target,
				InitialMethods: pathways,
			},
		)
		Expect(err).ShouldNot(HaveOccurred())
	}

	When("a document pathway is started", func() {
		var (
			valid  bool
			stored sync.Map
		)

		BeforeEach(func() {
			valid = true
		})

		JustBeforeEach(func() {
			h.Collab.Documents = &fixtures.DocumentAnalyzerStub{
				PageCountFunc: func(context.Context, verify.ExtractDocumentRequest) (int, error) {
					return 2, nil
				},
				ExtractPageFunc: func(_ context.Context, _ verify.ExtractDocumentRequest, page int) ([]string, error) {
					return []string{fmt.Sprintf("field-from-page-%d", page)}, nil
				},
				CheckValidityFunc: func(_ context.Context, _ string, fields []string) (verify.ValidityReport, error) {
					return verify.ValidityReport{
						Valid:  valid,
						Score:  80,
						Checks: []string{"mrz-checksum", "expiry"},
					}, nil
				},
			}
			h.Collab.Evidence = &fixtures.EvidenceStoreStub{
				StoreFunc: func(_ context.Context, _, pathway string, ev verify.Evidence) error {
					stored.Store(pathway, ev)
					return nil
				},
			}

			h.Start()
			start(20, verify.MethodDocument)
		})

		It("completes the verification from the document result", func() {
			Eventually(h.Status(id)).Should(Equal(process.StatusCompleted))

			// 80% validity scales the base document weight of 30 to 24.
			methods, err := h.Engine.Query(h.Ctx, id, verify.QueryMethodsCompleted)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(methods.([]verify.Method)).To(HaveLen(1))
			Expect(methods.([]verify.Method)[0].Method).To(Equal(verify.MethodDocument))
			Expect(methods.([]verify.Method)[0].Weight).To(BeNumerically("~", 24.0, 0.001))

			ev := methods.([]verify.Method)[0].Evidence
			Expect(ev.Document).NotTo(BeNil())
			Expect(ev.Document.ExtractedFields).To(ConsistOf(
				"field-from-page-0",
				"field-from-page-1",
			))

			// The pathway ran as its own durable instance.
			Expect(h.Engine.Status(h.Ctx, id+"/document")).To(Equal(process.StatusCompleted))

			_, ok := stored.Load(verify.MethodDocument)
			Expect(ok).To(BeTrue())
		})

		When("the document is invalid", func() {
			BeforeEach(func() {
				valid = false
			})

			It("records a pathway failure without failing the verification", func() {
				Eventually(h.Query(id, verify.QueryPathwayFailures)).Should(HaveKey(verify.MethodDocument))

				Expect(h.Engine.Status(h.Ctx, id)).To(Equal(process.StatusRunning))
				Expect(h.Engine.Query(h.Ctx, id, verify.QueryCurrentScore)).To(Equal(0.0))
			})
		})
	})

	When("a community pathway is started", func() {
		childID := verify.VerificationID("vera") + "/community"

		BeforeEach(func() {
			h.Collab.Trust = &fixtures.TrustDirectoryStub{
				RequestValidatorsFunc: func(context.Context, string, int) ([]string, error) {
					return []string{"<validator-1>", "<validator-2>", "<validator-3>"}, nil
				},
			}

			h.Start()
			start(40, verify.MethodCommunity)
		})

		respond := func(validatorID string, approved bool) error {
			return h.Engine.Signal(
				h.Ctx,
				childID,
				verify.SignalValidatorResponse,
				verify.ValidatorResponse{
					ValidatorID: validatorID,
					Approved:    approved,
				},
			)
		}

		It("completes once the validators reach quorum", func() {
			// The child instance is spawned asynchronously.
			Eventually(func() error {
				return respond("<validator-1>", true)
			}).Should(Succeed())

			Expect(respond("<validator-2>", true)).ShouldNot(HaveOccurred())
			Expect(respond("<validator-3>", true)).ShouldNot(HaveOccurred())

			Eventually(h.Status(id)).Should(Equal(process.StatusCompleted))

			// Unanimous approval earns the full community weight.
			Expect(h.Engine.Query(h.Ctx, id, verify.QueryCurrentScore)).To(Equal(50.0))
		})

		It("rejects a duplicate response", func() {
			Eventually(func() error {
				return respond("<validator-1>", true)
			}).Should(Succeed())

			err := respond("<validator-1>", false)
			Expect(err).To(MatchError(ContainSubstring("already responded")))
		})

		It("reports the voting progress", func() {
			Eventually(func() error {
				return respond("<validator-1>", true)
			}).Should(Succeed())

			Expect(respond("<validator-2>", false)).ShouldNot(HaveOccurred())

			progress, err := h.Engine.Query(h.Ctx, childID, verify.QueryValidationProgress)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(progress).To(Equal(verify.ValidationProgress{
				Invited:    3,
				Approvals:  1,
				Rejections: 1,
				Required:   3,
				Closed:     false,
			}))
		})
	})

	When("a community vote is not unanimous", func() {
		BeforeEach(func() {
			h.Collab.Trust = &fixtures.TrustDirectoryStub{
				RequestValidatorsFunc: func(context.Context, string, int) ([]string, error) {
					return []string{"<validator-1>", "<validator-2>", "<validator-3>"}, nil
				},
			}

			h.Start()
		})

		It("scales the community weight by the approval confidence", func() {
			start(100, verify.MethodCommunity)
			childID := id + "/community"

			responses := []verify.ValidatorResponse{
				{ValidatorID: "<validator-1>", Approved: true},
				{ValidatorID: "<validator-2>", Approved: true},
				{ValidatorID: "<validator-3>", Approved: false},
			}

			for i, resp := range responses {
				resp := resp
				if i == 0 {
					Eventually(func() error {
						return h.Engine.Signal(h.Ctx, childID, verify.SignalValidatorResponse, resp)
					}).Should(Succeed())
				} else {
					err := h.Engine.Signal(h.Ctx, childID, verify.SignalValidatorResponse, resp)
					Expect(err).ShouldNot(HaveOccurred())
				}
			}

			// All validators carry the stub's neutral reputation, so the
			// confidence is 2/3 and the community weight is 50 * 2/3.
			Eventually(h.Query(id, verify.QueryCurrentScore)).Should(BeNumerically("~", 33.333, 0.01))
			Expect(h.Engine.Status(h.Ctx, id)).To(Equal(process.StatusRunning))
		})
	})

	When("a community vote times out", func() {
		BeforeEach(func() {
			h.Collab.Trust = &fixtures.TrustDirectoryStub{
				RequestValidatorsFunc: func(context.Context, string, int) ([]string, error) {
					return []string{"<validator-1>", "<validator-2>"}, nil
				},
			}

			h.Start()
		})

		It("closes the vote with the responses that arrived", func() {
			err := h.Engine.Start(
				h.Ctx,
				"<vote>",
				verify.CommunityProcessType,
				verify.CommunityInput{
					UserID:             "vera",
					RequiredValidators: 2,
					ResponseWindow:     100 * time.Millisecond,
				},
			)
			Expect(err).ShouldNot(HaveOccurred())

			Eventually(h.Status("<vote>")).Should(Equal(process.StatusCompleted))

			progress, err := h.Engine.Query(h.Ctx, "<vote>", verify.QueryValidationProgress)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(progress.(verify.ValidationProgress).Closed).To(BeTrue())

			// No responses arrived, so a late one is rejected.
			err = h.Engine.Signal(
				h.Ctx,
				"<vote>",
				verify.SignalValidatorResponse,
				verify.ValidatorResponse{ValidatorID: "<validator-1>", Approved: true},
			)
			Expect(err).ShouldNot(HaveOccurred()) // terminal instances absorb signals
		})
	})

	When("an in-person pathway is started", func() {
		childID := verify.VerificationID("vera") + "/in_person"

		BeforeEach(func() {
			h.Collab.Verifiers = &fixtures.VerifierDirectoryStub{
				FindVerifiersFunc: func(context.Context, verify.FindVerifiersRequest) ([]string, error) {
					return []string{"<verifier-1>"}, nil
				},
			}

			h.Start()
			start(40, verify.MethodInPerson)
		})

		scheduled := func() bool {
			v, err := h.Engine.Query(h.Ctx, childID, verify.QueryAppointmentStatus)
			if err != nil {
				return false
			}

			return v.(verify.AppointmentStatus).Scheduled
		}

		It("completes when the verifier confirms the meeting", func() {
			Eventually(scheduled).Should(BeTrue())

			err := h.Engine.Signal(
				h.Ctx,
				childID,
				verify.SignalVerificationCompleted,
				verify.VerificationCompleted{VerifierID: "<verifier-1>"},
			)
			Expect(err).ShouldNot(HaveOccurred())

			Eventually(h.Status(id)).Should(Equal(process.StatusCompleted))
			Expect(h.Engine.Query(h.Ctx, id, verify.QueryCurrentScore)).To(Equal(40.0))
		})

		It("rejects confirmation from an unassigned verifier", func() {
			Eventually(scheduled).Should(BeTrue())

			err := h.Engine.Signal(
				h.Ctx,
				childID,
				verify.SignalVerificationCompleted,
				verify.VerificationCompleted{VerifierID: "<impostor>"},
			)
			Expect(err).To(MatchError(ContainSubstring("not assigned")))
		})
	})

	When("no verifiers are available", func() {
		BeforeEach(func() {
			h.Start()
			start(40, verify.MethodInPerson)
		})

		It("records a pathway failure", func() {
			Eventually(h.Query(id, verify.QueryPathwayFailures)).Should(HaveKey(verify.MethodInPerson))
			Expect(h.Engine.Status(h.Ctx, id)).To(Equal(process.StatusRunning))
		})
	})

	When("the verification is canceled mid-pathway", func() {
		var gate chan struct{}

		BeforeEach(func() {
			gate = make(chan struct{})

			h.Collab.Documents = &fixtures.DocumentAnalyzerStub{
				PageCountFunc: func(ctx context.Context, _ verify.ExtractDocumentRequest) (int, error) {
					select {
					case <-gate:
						return 1, nil
					case <-ctx.Done():
						return 0, ctx.Err()
					}
				},
			}

			h.Start()
			start(20, verify.MethodDocument)
		})

		It("cascades the cancellation to the pathway", func() {
			Eventually(h.Status(id + "/document")).Should(Equal(process.StatusRunning))

			err := h.Engine.Cancel(h.Ctx, id)
			Expect(err).ShouldNot(HaveOccurred())

			Eventually(h.Status(id)).Should(Equal(process.StatusCancelled))
			Eventually(h.Status(id + "/document")).Should(Equal(process.StatusCancelled))

			// Releasing the stalled task must not resurrect either instance.
			close(gate)
			Consistently(h.Status(id), "200ms").Should(Equal(process.StatusCancelled))
		})
	})
})
