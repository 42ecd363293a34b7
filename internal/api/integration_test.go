package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
	"github.com/IamSmokeY/SnapBooks/internal/invoice"
	"github.com/IamSmokeY/SnapBooks/internal/ledger"
	"github.com/IamSmokeY/SnapBooks/internal/pipeline"
	"github.com/IamSmokeY/SnapBooks/internal/render"
)

const weighbridgeResponse = `{
  "documents": [{
    "document_type": "weighbridge_slip",
    "core": {
      "party_name": {"value": "Shree Ganesh Stone Crusher", "confidence": "high"},
      "date": {"value": "03/01/2026", "confidence": "high"},
      "items": [{
        "name": {"value": "Aggregate 20mm", "confidence": "high"},
        "quantity": {"value": 42.38, "confidence": "high"},
        "unit": {"value": "MT", "confidence": "high"},
        "rate": {"value": 850, "confidence": "medium"},
        "amount": {"value": 0, "confidence": "low"}
      }]
    },
    "additional_fields": [
      {"key": "vehicle_number", "label": "Vehicle No", "value": "MH12AB1234", "confidence": "high"}
    ]
  }],
  "multi_document": {"count": 1, "relationship": "single"}
}`

// replayExtractor replays a fixed model response
type replayExtractor struct {
	response string
	calls    int
}

func (m *replayExtractor) Extract(ctx context.Context, image []byte, contentType string) ([]byte, error) {
	m.calls++
	return []byte(m.response), nil
}

func (m *replayExtractor) Close() error {
	return nil
}

// echoRenderer stands in for headless Chrome and returns the HTML it was given
type echoRenderer struct{}

func (echoRenderer) RenderPDF(ctx context.Context, html string, opts render.PageOptions) ([]byte, error) {
	return append([]byte("%PDF-1.4\n"), html...), nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir     string
		dbPath      string
		storagePath string
		db          *invoice.BoltDB
		store       *invoice.LocalStorage
		repo        *invoice.Repository
		extractor   *replayExtractor
		server      *Server
		ghServer    *ghttp.Server
		err         error
	)

	BeforeEach(func() {
		// Create temp directory for test artifacts
		tempDir, err = os.MkdirTemp("", "snapbooks-test-*")
		Expect(err).NotTo(HaveOccurred())

		dbPath = filepath.Join(tempDir, "test.db")
		storagePath = filepath.Join(tempDir, "files")

		ghServer = ghttp.NewServer()

		// Initialize real dependencies
		db, err = invoice.NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())

		store, err = invoice.NewLocalStorage(storagePath, ghServer.URL()+"/files")
		Expect(err).NotTo(HaveOccurred())
		repo = invoice.NewRepository(db, store)

		business := document.Business{Name: "Patil Infra Pvt Ltd", State: "Maharashtra", GSTIN: "27AABCP1234Q1Z5"}
		pdf, err := render.NewGenerator(business, echoRenderer{})
		Expect(err).NotTo(HaveOccurred())

		extractor = &replayExtractor{response: weighbridgeResponse}
		p := pipeline.New(extractor, gst.NewEngine("Maharashtra"), pdf, ledger.NewGenerator(business.Name),
			pipeline.DefaultConfig(), pipeline.WithPersister(repo))

		server = NewServer(p, repo, BasicAuth{}, WithPreviewer(pdf)) // No auth for testing convenience
	})

	AfterEach(func() {
		// Clean up
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
	})

	It("should turn an uploaded photo into a stored invoice with downloadable files", func() {
		// one handler per request below
		ghServer.AppendHandlers(
			server.ServeHTTP, // upload
			server.ServeHTTP, // record
			server.ServeHTTP, // public XML link
			server.ServeHTTP, // PDF download
			server.ServeHTTP, // list
		)

		// --- Step 1: Upload ---
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "slip.jpg")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("fake jpeg content"))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.WriteField("document_type", "purchase_order")).To(Succeed())
		Expect(writer.WriteField("customer_state", "Karnataka")).To(Succeed())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/invoices", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var created struct {
			Invoice  gst.Invoice       `json:"invoice"`
			PDFURL   string            `json:"pdf_url"`
			XMLURL   string            `json:"xml_url"`
			Metadata pipeline.Metadata `json:"metadata"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())

		inv := created.Invoice
		Expect(inv.InvoiceNumber).To(HavePrefix("PO-"))
		Expect(inv.CustomerName).To(Equal("Shree Ganesh Stone Crusher"))
		Expect(inv.TaxType).To(Equal(gst.Interstate))
		Expect(inv.Items).To(HaveLen(1))
		// amount derived from 42.38 MT x 850
		Expect(inv.Items[0].Amount).To(BeNumerically("~", 36023, 0.01))
		Expect(inv.GrandTotal).To(BeNumerically("~", inv.Subtotal+inv.TotalTax, 0.001))
		Expect(inv.CGST).To(BeZero())
		Expect(inv.IGST).To(BeNumerically(">", 0))
		Expect(created.Metadata.Final).To(Equal(pipeline.StateCompleted))
		Expect(created.Metadata.PersistenceError).To(BeEmpty())
		Expect(extractor.calls).To(Equal(1))

		id := inv.InvoiceNumber
		Expect(created.PDFURL).To(Equal(ghServer.URL() + "/files/" + invoice.PDFPathFor(id)))
		Expect(created.XMLURL).To(Equal(ghServer.URL() + "/files/" + invoice.XMLPathFor(id)))

		// Verify files are in storage
		_, err = store.Get(invoice.PDFPathFor(id))
		Expect(err).NotTo(HaveOccurred())

		// --- Step 2: Stored record ---
		recResp, err := http.Get(ghServer.URL() + "/api/invoices/" + id)
		Expect(err).NotTo(HaveOccurred())
		defer recResp.Body.Close()
		Expect(recResp.StatusCode).To(Equal(http.StatusOK))

		var rec invoice.Record
		Expect(json.NewDecoder(recResp.Body).Decode(&rec)).To(Succeed())
		Expect(rec.Source).To(Equal("api"))
		Expect(rec.Extraction.AdditionalFields).To(ContainElement(HaveField("Value", "MH12AB1234")))
		Expect(rec.XMLURL).To(Equal(created.XMLURL))

		// --- Step 3: Public XML link ---
		xmlResp, err := http.Get(created.XMLURL)
		Expect(err).NotTo(HaveOccurred())
		defer xmlResp.Body.Close()
		Expect(xmlResp.StatusCode).To(Equal(http.StatusOK))

		xmlData, err := io.ReadAll(xmlResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(xmlData)).To(ContainSubstring(`VCHTYPE="Purchase"`))
		Expect(ledger.Validate(xmlData).Valid).To(BeTrue())

		// --- Step 4: PDF download ---
		pdfResp, err := http.Get(ghServer.URL() + "/api/invoices/" + id + "/pdf")
		Expect(err).NotTo(HaveOccurred())
		defer pdfResp.Body.Close()
		Expect(pdfResp.Header.Get("Content-Type")).To(Equal("application/pdf"))

		pdfData, err := io.ReadAll(pdfResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(pdfData)).To(HavePrefix("%PDF-1.4"))
		Expect(string(pdfData)).To(ContainSubstring("Purchase Order"))
		Expect(string(pdfData)).To(ContainSubstring("Patil Infra Pvt Ltd"))

		// --- Step 5: List ---
		listResp, err := http.Get(ghServer.URL() + "/api/invoices")
		Expect(err).NotTo(HaveOccurred())
		defer listResp.Body.Close()

		var all []invoice.Record
		Expect(json.NewDecoder(listResp.Body).Decode(&all)).To(Succeed())
		Expect(all).To(HaveLen(1))
		Expect(strings.Contains(all[0].ID, "/")).To(BeFalse())
	})

	It("should reject an upload the model cannot read without storing anything", func() {
		extractor.response = `{"error": "no_document", "suggestion": "Please photograph the whole bill"}`
		ghServer.AppendHandlers(server.ServeHTTP)

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "blurry.jpg")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("blurry"))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/invoices", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

		var errResp map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&errResp)).To(Succeed())
		Expect(errResp["error"]).To(Equal("Please photograph the whole bill"))

		records, err := repo.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})
})
