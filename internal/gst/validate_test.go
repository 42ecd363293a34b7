package gst

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/IamSmokeY/SnapBooks/internal/document"
)

var _ = Describe("Validate", func() {
	var (
		engine  *Engine
		doc     *document.ExtractedDocument
		state   string
		opts    ValidateOptions
		invoice *Invoice
		result  ValidationResult
	)

	BeforeEach(func() {
		engine = NewEngine("Maharashtra")
		doc = raviTransport()
		state = "Maharashtra"
		opts = ValidateOptions{}
	})

	JustBeforeEach(func() {
		invoice = engine.Calculate(doc, document.SalesInvoice, state)
		result = Validate(invoice, opts)
	})

	When("the invoice is complete", func() {
		It("is valid without warnings", func() {
			Expect(result.Valid).To(BeTrue())
			Expect(result.Errors).To(BeEmpty())
			Expect(result.Warnings).To(BeEmpty())
		})
	})

	When("an item has zero quantity", func() {
		BeforeEach(func() {
			doc.Items = append(doc.Items, document.LineItem{Name: "Table", Quantity: 0, Unit: "pcs", Rate: 2000})
		})

		It("names the item's position", func() {
			Expect(result.Valid).To(BeFalse())
			Expect(result.Errors).To(ContainElement("Item 2: Quantity must be a positive number"))
		})
	})

	When("the customer name is blank", func() {
		BeforeEach(func() {
			doc.PartyName = "  "
		})

		It("is invalid", func() {
			Expect(result.Valid).To(BeFalse())
			Expect(result.Errors).To(ContainElement("Customer name is required"))
		})
	})

	When("there are no items", func() {
		BeforeEach(func() {
			doc.Items = nil
		})

		It("is invalid", func() {
			Expect(result.Valid).To(BeFalse())
			Expect(result.Errors).To(ContainElement("At least one item is required"))
		})

		It("warns about the zero total", func() {
			Expect(result.Warnings).To(ContainElement(ContainSubstring("total is zero")))
		})

		When("zero amounts are allowed", func() {
			BeforeEach(func() {
				opts.AllowZeroAmount = true
			})

			It("does not warn about the total", func() {
				Expect(result.Warnings).To(BeEmpty())
			})
		})
	})

	When("an item has a negative rate", func() {
		BeforeEach(func() {
			doc.Items[0].Rate = -5
		})

		It("is invalid", func() {
			Expect(result.Errors).To(ContainElement("Item 1: Rate cannot be negative"))
		})
	})

	When("an item has no unit", func() {
		BeforeEach(func() {
			doc.Items[0].Unit = ""
		})

		It("only warns", func() {
			Expect(result.Valid).To(BeTrue())
			Expect(result.Warnings).To(ContainElement("Item 1: Unit is recommended (e.g., pcs, kg)"))
		})
	})

	When("an item amount is negative", func() {
		BeforeEach(func() {
			doc.Items[0].Amount = -100000
		})

		It("rejects the negative total and taxes", func() {
			Expect(result.Valid).To(BeFalse())
			Expect(result.Errors).To(ContainElement("Invoice total cannot be negative"))
			Expect(result.Errors).To(ContainElement("Item 1: Tax cannot be negative"))
		})
	})
})

var _ = Describe("Validate tax components", func() {
	It("rejects IGST on an intrastate invoice", func() {
		inv := NewEngine("Maharashtra").Calculate(raviTransport(), document.SalesInvoice, "")
		inv.IGST = 10
		res := Validate(inv, ValidateOptions{})
		Expect(res.Valid).To(BeFalse())
		Expect(res.Errors).To(ContainElement("IGST must be zero for intrastate transactions"))
	})

	It("rejects CGST on an interstate line", func() {
		inv := NewEngine("Maharashtra").Calculate(raviTransport(), document.SalesInvoice, "Gujarat")
		inv.Items[0].CGST = 1
		res := Validate(inv, ValidateOptions{})
		Expect(res.Errors).To(ContainElement("Item 1: CGST/SGST must be zero for interstate transactions"))
	})

	It("reports a missing invoice", func() {
		Expect(Validate(nil, ValidateOptions{}).Valid).To(BeFalse())
	})
})
