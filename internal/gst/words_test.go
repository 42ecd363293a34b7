package gst

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AmountToWords", func() {
	DescribeTable("spells amounts in the Indian system",
		func(amount float64, expected string) {
			Expect(AmountToWords(amount)).To(Equal(expected))
		},
		Entry("zero", 0.0, "Zero Rupees Only"),
		Entry("single digit", 7.0, "Seven Rupees Only"),
		Entry("teen", 15.0, "Fifteen Rupees Only"),
		Entry("round tens", 90.0, "Ninety Rupees Only"),
		Entry("hundreds", 505.0, "Five Hundred Five Rupees Only"),
		Entry("thousands", 59000.0, "Fifty Nine Thousand Rupees Only"),
		Entry("one lakh", 100000.0, "One Lakh Rupees Only"),
		Entry("lakhs and thousands", 1259000.0, "Twelve Lakh Fifty Nine Thousand Rupees Only"),
		Entry("crore", 25000000.0, "Two Crore Fifty Lakh Rupees Only"),
		Entry("paise", 35400.5, "Thirty Five Thousand Four Hundred Rupees and Fifty Paise Only"),
		Entry("only paise", 0.75, "Seventy Five Paise Only"),
		Entry("negative", -12.0, "Minus Twelve Rupees Only"),
	)

	It("uses a lakh grouping for one hundred thousand", func() {
		Expect(AmountToWords(100000)).To(ContainSubstring("Lakh"))
		Expect(AmountToWords(100000)).NotTo(ContainSubstring("Hundred Thousand"))
	})
})
