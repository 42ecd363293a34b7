package invoice

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
)

func sampleRecord(id string, created time.Time) *Record {
	return &Record{
		ID: id,
		Invoice: &gst.Invoice{
			InvoiceNumber: id,
			Kind:          document.SalesInvoice,
			CustomerName:  "Ravi Transport",
			Subtotal:      50000,
			TotalTax:      9000,
			GrandTotal:    59000,
		},
		Source:    "api",
		PDFPath:   PDFPathFor(id),
		XMLPath:   XMLPathFor(id),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveRecord", func() {
		var (
			rec *Record
			err error
		)

		BeforeEach(func() {
			rec = sampleRecord("INV-20260214-A1B2C3", time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveRecord(rec)
		})

		When("the record has an ID", func() {
			It("round-trips the invoice", func() {
				Expect(err).NotTo(HaveOccurred())
				saved, getErr := db.GetRecord("INV-20260214-A1B2C3")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Invoice.GrandTotal).To(Equal(59000.0))
				Expect(saved.Invoice.Kind).To(Equal(document.SalesInvoice))
				Expect(saved.PDFPath).To(Equal("invoices/pdfs/INV-20260214-A1B2C3.pdf"))
			})
		})

		When("the record has no ID", func() {
			BeforeEach(func() {
				rec.ID = ""
			})

			It("returns an error", func() {
				Expect(err).To(MatchError("record ID is required"))
			})
		})
	})

	Describe("GetRecord", func() {
		It("returns ErrNotFound for unknown IDs", func() {
			_, err := db.GetRecord("missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("missing"))
		})
	})

	Describe("ListRecords", func() {
		When("the database is empty", func() {
			It("returns an empty slice", func() {
				records, err := db.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})

		When("there are several records", func() {
			BeforeEach(func() {
				base := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
				Expect(db.SaveRecord(sampleRecord("a", base))).To(Succeed())
				Expect(db.SaveRecord(sampleRecord("b", base.Add(2*time.Hour)))).To(Succeed())
				Expect(db.SaveRecord(sampleRecord("c", base.Add(time.Hour)))).To(Succeed())
			})

			It("orders them newest first", func() {
				records, err := db.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				ids := []string{records[0].ID, records[1].ID, records[2].ID}
				Expect(ids).To(Equal([]string{"b", "c", "a"}))
			})
		})
	})

	Describe("DeleteRecord", func() {
		It("removes the record", func() {
			Expect(db.SaveRecord(sampleRecord("a", time.Now()))).To(Succeed())
			Expect(db.DeleteRecord("a")).To(Succeed())
			_, err := db.GetRecord("a")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})
})
