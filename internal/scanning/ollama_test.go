package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		ollama *Ollama
		image  []byte
		out    []byte
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ollama, err = NewOllama(server.URL()+"/", "llava")
		Expect(err).NotTo(HaveOccurred())
		image = []byte("png-bytes")
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		out, err = ollama.Extract(context.Background(), image, "image/png")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var body ollamaChatRequest
					Expect(decodeJSON(r, &body)).To(Succeed())
					Expect(body.Model).To(Equal("llava"))
					Expect(body.Stream).To(BeFalse())
					Expect(body.Messages).To(HaveLen(2))
					Expect(body.Messages[1].Images).To(ConsistOf(base64.StdEncoding.EncodeToString(image)))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"supplier_or_customer": "Sharma"}`},
					Done:    true,
				}),
			))
		})

		It("returns the raw answer", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(Equal(`{"supplier_or_customer": "Sharma"}`))
		})
	})

	When("the server is overloaded", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "busy"))
		})

		It("returns an unavailable service error", func() {
			e, ok := apperr.As(err)
			Expect(ok).To(BeTrue())
			Expect(e.Kind).To(Equal(apperr.KindExtractionService))
			Expect(e.Code).To(Equal(apperr.CodeUnavailable))
		})
	})

	When("the model is not installed", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model \"llava\" not found"}`))
		})

		It("returns a configuration error", func() {
			e, ok := apperr.As(err)
			Expect(ok).To(BeTrue())
			Expect(e.Code).To(Equal(apperr.CodeAuth))
		})
	})
})

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
