package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gemini", func() {
	It("requires an API key", func() {
		_, err := NewGemini("", "", 0)
		Expect(err).To(MatchError("gemini api key is required"))
	})

	It("asks the model for JSON like the Ollama extractor does", func() {
		g, err := NewGemini("test-key", "", 0)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(g.Close)

		Expect(g.model.ResponseMIMEType).To(Equal("application/json"))
		Expect(*g.model.Temperature).To(BeNumerically("~", 0.1, 1e-6))
	})
})
