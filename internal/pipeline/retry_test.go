package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
)

var _ = Describe("Classify", func() {
	DescribeTable("sorts failures",
		func(err error, expected Verdict) {
			Expect(Classify(err)).To(Equal(expected))
		},
		Entry("unavailable service", apperr.Service(apperr.CodeUnavailable, "down", nil), Retriable),
		Entry("quota", apperr.Service(apperr.CodeQuota, "slow down", nil), Retriable),
		Entry("service timeout", apperr.Service(apperr.CodeTimeout, "slow", nil), Retriable),
		Entry("wrapped service error", fmt.Errorf("extracting: %w", apperr.Service(apperr.CodeUnavailable, "down", nil)), Retriable),
		Entry("timeout kind", apperr.New(apperr.KindTimeout, "late"), Retriable),
		Entry("bare deadline", context.DeadlineExceeded, Retriable),
		Entry("auth", apperr.Service(apperr.CodeAuth, "bad key", nil), Fatal),
		Entry("rejected request", apperr.Service(apperr.CodeConfig, "bad request", nil), Fatal),
		Entry("open breaker", apperr.Service(apperr.CodeCircuitOpen, "open", nil), Fatal),
		Entry("schema", apperr.New(apperr.KindExtractionSchema, "bad json"), Fatal),
		Entry("unrecognizable", apperr.New(apperr.KindExtractionUnrecognizable, "blurry"), Fatal),
		Entry("validation", apperr.New(apperr.KindValidation, "no items"), Fatal),
		Entry("cancelled", context.Canceled, Fatal),
		Entry("unknown error", errors.New("boom"), Fatal),
		Entry("nil", nil, Fatal),
	)
})

var _ = Describe("RetryPolicy", func() {
	Describe("Backoff", func() {
		DescribeTable("doubles from the base delay and caps at the max",
			func(attempt int, expected time.Duration) {
				Expect(DefaultRetryPolicy().Backoff(attempt)).To(Equal(expected))
			},
			Entry("first", 1, time.Second),
			Entry("second", 2, 2*time.Second),
			Entry("third", 3, 4*time.Second),
			Entry("fourth is capped", 4, 5*time.Second),
			Entry("tenth is capped", 10, 5*time.Second),
			Entry("zero", 0, time.Duration(0)),
		)
	})

	Describe("Do", func() {
		var (
			policy   RetryPolicy
			failures []error
			calls    int
			attempts int
			err      error
			ctx      context.Context
		)

		BeforeEach(func() {
			policy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Classify: Classify}
			failures = nil
			calls = 0
			ctx = context.Background()
		})

		JustBeforeEach(func() {
			attempts, err = policy.Do(ctx, func(ctx context.Context, attempt int) error {
				calls++
				Expect(attempt).To(Equal(calls))
				if calls <= len(failures) {
					return failures[calls-1]
				}
				return nil
			})
		})

		When("the first attempt succeeds", func() {
			It("calls once", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(attempts).To(Equal(1))
			})
		})

		When("transient failures precede success", func() {
			BeforeEach(func() {
				unavailable := apperr.Service(apperr.CodeUnavailable, "down", nil)
				failures = []error{unavailable, unavailable}
			})

			It("retries until it succeeds", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(attempts).To(Equal(3))
			})
		})

		When("every attempt fails transiently", func() {
			BeforeEach(func() {
				unavailable := apperr.Service(apperr.CodeUnavailable, "down", nil)
				failures = []error{unavailable, unavailable, unavailable, unavailable}
			})

			It("stops at MaxAttempts and returns the last error", func() {
				Expect(attempts).To(Equal(3))
				Expect(calls).To(Equal(3))
				Expect(apperr.Is(err, apperr.KindExtractionService)).To(BeTrue())
			})
		})

		When("the failure is fatal", func() {
			BeforeEach(func() {
				failures = []error{apperr.New(apperr.KindExtractionSchema, "bad json")}
			})

			It("does not retry", func() {
				Expect(attempts).To(Equal(1))
				Expect(err).To(MatchError("bad json"))
			})
		})

		When("a custom classifier treats everything as retriable", func() {
			BeforeEach(func() {
				policy.Classify = func(error) Verdict { return Retriable }
				failures = []error{errors.New("boom")}
			})

			It("uses it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(attempts).To(Equal(2))
			})
		})

		When("the context ends while waiting", func() {
			BeforeEach(func() {
				policy.BaseDelay = time.Hour
				policy.MaxDelay = time.Hour
				failures = []error{apperr.Service(apperr.CodeUnavailable, "down", nil)}

				c, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
				DeferCleanup(cancel)
				ctx = c
			})

			It("returns the last error without another attempt", func() {
				Expect(attempts).To(Equal(1))
				Expect(calls).To(Equal(1))
				Expect(err).To(HaveOccurred())
			})
		})

		When("MaxAttempts is zero", func() {
			BeforeEach(func() {
				policy.MaxAttempts = 0
				failures = []error{apperr.Service(apperr.CodeUnavailable, "down", nil)}
			})

			It("still makes one attempt", func() {
				Expect(attempts).To(Equal(1))
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
