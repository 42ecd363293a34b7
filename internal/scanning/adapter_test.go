package scanning

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
	"github.com/IamSmokeY/SnapBooks/internal/document"
)

const weighbridgePayload = `{
  "documents": [
    {
      "document_type": "handwritten_kata",
      "industry": "mining_minerals",
      "summary": "Weighbridge handwritten record for marble powder delivery by JMD",
      "core": {
        "party_name": {"value": "JMD", "confidence": "high"},
        "date": {"value": "14/02/2026", "confidence": "medium"},
        "time": {"value": null, "confidence": "low"},
        "items": [
          {
            "name": {"value": "Marble Powder", "confidence": "high"},
            "quantity": {"value": 42.38, "confidence": "high"},
            "unit": {"value": "MT", "confidence": "high"},
            "rate": {"value": 1200, "confidence": "medium"},
            "amount": {"value": 50856, "confidence": "medium"}
          }
        ],
        "total_amount": {"value": 50856, "confidence": "medium"}
      },
      "additional_fields": [
        {"key": "vehicle_number", "label": "Vehicle Number", "value": "RJ36GA 8613", "confidence": "high"},
        {"key": "gross_weight", "label": "Gross Weight (KG)", "value": 57420, "confidence": "high"}
      ],
      "crossed_out_items": [],
      "corrections": []
    },
    {
      "document_type": "weighbridge_slip",
      "industry": "mining_minerals",
      "summary": "Official weighbridge printout",
      "core": {
        "party_name": {"value": "Mateshwari Kanta", "confidence": "high"},
        "date": {"value": "14/02/2026", "confidence": "high"},
        "time": {"value": "14:32", "confidence": "high"},
        "items": [
          {
            "name": {"value": "Marble Powder", "confidence": "high"},
            "quantity": {"value": 42380, "confidence": "high"},
            "unit": {"value": "KG", "confidence": "high"},
            "rate": {"value": 0, "confidence": "high"},
            "amount": {"value": 0, "confidence": "high"}
          }
        ],
        "total_amount": {"value": 0, "confidence": "high"}
      },
      "additional_fields": [],
      "crossed_out_items": [{"name": "Sand"}],
      "corrections": []
    }
  ],
  "multi_document": {
    "count": 2,
    "relationship": "same_transaction",
    "link_note": "Pink slip is the handwritten record of the printed slip"
  }
}`

var _ = Describe("ParseResponse", func() {
	var (
		payload    string
		extraction *document.Extraction
		err        error
	)

	JustBeforeEach(func() {
		extraction, err = ParseResponse([]byte(payload))
	})

	When("the payload holds two documents", func() {
		BeforeEach(func() {
			payload = weighbridgePayload
		})

		It("does not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps both documents with the first as primary", func() {
			Expect(extraction.Documents).To(HaveLen(2))
			Expect(extraction.Primary).To(BeIdenticalTo(&extraction.Documents[0]))
			Expect(extraction.Primary.PartyName).To(Equal("JMD"))
			Expect(extraction.Documents[1].PartyName).To(Equal("Mateshwari Kanta"))
		})

		It("carries the multi-document relationship", func() {
			Expect(extraction.MultiDocument.Count).To(Equal(2))
			Expect(extraction.MultiDocument.Relationship).To(Equal("same_transaction"))
			Expect(extraction.MultiDocument.LinkNote).To(ContainSubstring("Pink slip"))
			Expect(extraction.Primary.MultiDocument).To(Equal(extraction.MultiDocument))
		})

		It("averages the field confidence scores", func() {
			// party .95, date .75, total .75, item name .95, item quantity .95
			Expect(extraction.Primary.Confidence).To(Equal(0.87))
			Expect(extraction.Documents[1].Confidence).To(Equal(0.95))
		})

		It("unwraps item values", func() {
			item := extraction.Primary.Items[0]
			Expect(item.Name).To(Equal("Marble Powder"))
			Expect(item.Quantity).To(Equal(42.38))
			Expect(item.Unit).To(Equal("mt"))
			Expect(item.Rate).To(Equal(1200.0))
			Expect(item.Amount).To(Equal(50856.0))
		})

		It("builds notes from the additional fields", func() {
			Expect(extraction.Primary.Notes).To(Equal("Vehicle Number: RJ36GA 8613, Gross Weight (KG): 57420"))
			Expect(extraction.Primary.AdditionalFields).To(HaveLen(2))
		})

		It("falls back to the summary for notes", func() {
			Expect(extraction.Documents[1].Notes).To(Equal("Official weighbridge printout"))
		})

		It("counts crossed out items", func() {
			Expect(extraction.Documents[1].CrossedOut).To(Equal(1))
		})

		It("keeps the date and time", func() {
			Expect(extraction.Primary.Date).To(Equal("14/02/2026"))
			Expect(extraction.Primary.Time).To(BeEmpty())
			Expect(extraction.Documents[1].Time).To(Equal("14:32"))
		})
	})

	When("an item amount is missing", func() {
		BeforeEach(func() {
			payload = `{"documents": [{"core": {
				"party_name": "Sharma",
				"items": [{"name": "kursi", "quantity": 100, "rate": 500, "amount": 0}]
			}}]}`
		})

		It("derives it from quantity and rate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(extraction.Primary.Items[0].Amount).To(Equal(50000.0))
		})

		It("defaults the unit", func() {
			Expect(extraction.Primary.Items[0].Unit).To(Equal("pcs"))
		})

		It("scores raw values as high confidence", func() {
			Expect(extraction.Primary.Confidence).To(Equal(0.95))
		})

		It("defaults to a single document", func() {
			Expect(extraction.MultiDocument).To(Equal(document.SingleDocument()))
		})
	})

	When("fields use the confidenceLevel key and string numbers", func() {
		BeforeEach(func() {
			payload = `{"documents": [{"core": {
				"party_name": {"value": "Gupta Steels", "confidenceLevel": "low"},
				"items": [{"name": {"value": "sariya", "confidenceLevel": "low"}, "quantity": {"value": "1,200", "confidenceLevel": "low"}, "rate": "45.50"}]
			}}]}`
		})

		It("reads the alias key", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(extraction.Primary.Confidence).To(Equal(0.5))
		})

		It("parses numeric strings", func() {
			Expect(extraction.Primary.Items[0].Quantity).To(Equal(1200.0))
			Expect(extraction.Primary.Items[0].Rate).To(Equal(45.5))
			Expect(extraction.Primary.Items[0].Amount).To(Equal(54600.0))
		})
	})

	When("a document has no scored fields", func() {
		BeforeEach(func() {
			payload = `{"documents": [{"summary": "blank page", "core": {}}]}`
		})

		It("uses the default confidence and party", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(extraction.Primary.Confidence).To(Equal(0.75))
			Expect(extraction.Primary.PartyName).To(Equal("Unknown"))
			Expect(extraction.Primary.Items).To(BeEmpty())
		})
	})

	When("the payload uses the flat shape", func() {
		BeforeEach(func() {
			payload = `{
				"supplier_or_customer": "Ravi Transport",
				"items": [{"name": "Plastic Chairs", "quantity": 100, "unit": "pcs", "rate": 500, "amount": 50000}],
				"date": "14/02/2026",
				"notes": "Deliver to warehouse",
				"confidence": 0.95
			}`
		})

		It("parses a single document", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(extraction.Documents).To(HaveLen(1))
			Expect(extraction.Primary.PartyName).To(Equal("Ravi Transport"))
			Expect(extraction.Primary.Items[0].Amount).To(Equal(50000.0))
			Expect(extraction.Primary.Notes).To(Equal("Deliver to warehouse"))
			Expect(extraction.Primary.Confidence).To(Equal(0.95))
		})
	})

	When("the flat shape has no confidence", func() {
		BeforeEach(func() {
			payload = `{"items": [{"quantity": 3}]}`
		})

		It("applies the defaults", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(extraction.Primary.Confidence).To(Equal(0.75))
			Expect(extraction.Primary.PartyName).To(Equal("Unknown"))
			Expect(extraction.Primary.Items[0].Name).To(Equal("Unknown Item"))
		})
	})

	When("the payload is an error marker", func() {
		BeforeEach(func() {
			payload = `{"error": "x", "suggestion": "y"}`
		})

		It("returns an unrecognizable error carrying the suggestion", func() {
			Expect(apperr.Is(err, apperr.KindExtractionUnrecognizable)).To(BeTrue())
			Expect(err.Error()).To(Equal("y"))
		})
	})

	When("the error marker has no suggestion", func() {
		BeforeEach(func() {
			payload = `{"error": true}`
		})

		It("uses a generic message", func() {
			Expect(err).To(MatchError("Image could not be processed"))
		})
	})

	When("the payload matches no known shape", func() {
		BeforeEach(func() {
			payload = `{"title": "CVS Pharmacy", "amount": 25.99}`
		})

		It("returns a schema error", func() {
			Expect(apperr.Is(err, apperr.KindExtractionSchema)).To(BeTrue())
			Expect(err.Error()).To(Equal("unrecognized response format"))
		})
	})

	When("the payload is not JSON", func() {
		BeforeEach(func() {
			payload = `{"documents": [`
		})

		It("returns a schema error", func() {
			Expect(apperr.Is(err, apperr.KindExtractionSchema)).To(BeTrue())
		})
	})
})

var _ = Describe("Field", func() {
	decode := func(s string) Field {
		var f Field
		Expect(json.Unmarshal([]byte(s), &f)).To(Succeed())
		return f
	}

	It("treats null as absent", func() {
		Expect(decode(`null`).Present()).To(BeFalse())
		Expect(decode(`{"value": null, "confidence": "high"}`).Present()).To(BeFalse())
	})

	It("scores unknown levels as medium", func() {
		Expect(decode(`{"value": "x", "confidence": "certain"}`).Score()).To(Equal(0.75))
		Expect(decode(`{"value": "x"}`).Score()).To(Equal(0.75))
	})

	It("renders numbers as text", func() {
		Expect(decode(`57420`).String()).To(Equal("57420"))
	})

	It("reads a leading number from annotated strings", func() {
		Expect(decode(`"₹ 150/pc"`).Number()).To(Equal(150.0))
		Expect(decode(`"abc"`).Number()).To(Equal(0.0))
	})

	It("keeps objects without a value key as raw", func() {
		f := decode(`{"name": "Sand"}`)
		Expect(f.Present()).To(BeTrue())
		Expect(f.Score()).To(Equal(0.95))
	})
})
