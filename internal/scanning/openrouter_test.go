package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("OpenRouter", func() {
	var (
		server  *ghttp.Server
		scanner *OpenRouter
		img     CapturedImage
		data    *ReceiptData
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner = NewOpenRouter("test-key", "", WithOpenRouterURL(server.URL()), WithOpenRouterReferer("http://localhost", "Receipts"))
		img = CapturedImage{ID: "img-1", Data: jpegBytes(), MIMEType: "image/jpeg"}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		data, err = scanner.ScanReceipt(context.Background(), img)
	})

	reply := func(content string) http.HandlerFunc {
		return ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}

	When("the service returns a fenced JSON reply", func() {
		var captured chatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				ghttp.VerifyHeaderKV("HTTP-Referer", "http://localhost"),
				ghttp.VerifyHeaderKV("X-Title", "Receipts"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &captured)).To(Succeed())
				},
				reply("```json\n{\"merchant\":\"Acme Cafe\",\"date\":\"2024-05-01\",\"category\":\"Food & Drink\",\"subtotal\":11.5,\"tax\":1,\"total\":12.50,\"confidence\":0.93,\"currency\":\"USD\"}\n```"),
			))
		})

		It("should return the parsed receipt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Merchant).To(Equal("Acme Cafe"))
			Expect(data.Total.String()).To(Equal("12.5"))
			Expect(data.Category).To(Equal(CategoryFoodDrink))
		})

		It("should send the image as a PNG data URL with the prompt", func() {
			Expect(captured.Model).To(Equal(defaultOpenRouterModel))
			Expect(captured.MaxTokens).To(Equal(1024))
			Expect(captured.Messages).To(HaveLen(1))
			content := captured.Messages[0].Content
			Expect(content).To(HaveLen(2))
			Expect(content[0].Type).To(Equal("image_url"))
			Expect(strings.HasPrefix(content[0].ImageURL.URL, "data:image/png;base64,")).To(BeTrue())
			Expect(content[1].Text).To(ContainSubstring("merchant"))
		})
	})

	When("the service responds with a non-success status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":{"message":"No auth credentials found"}}`))
		})

		It("returns a ServiceError with the status", func() {
			var serviceErr *ServiceError
			Expect(errors.As(err, &serviceErr)).To(BeTrue())
			Expect(serviceErr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(serviceErr.Body).To(ContainSubstring("No auth credentials"))
			Expect(ErrorKind(err)).To(Equal("service"))
		})
	})

	When("the response has no choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"choices": []any{}}))
		})

		It("returns a missing payload error", func() {
			Expect(errors.Is(err, ErrMissingPayload)).To(BeTrue())
			Expect(ErrorKind(err)).To(Equal("malformed"))
		})
	})

	When("the response envelope is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>oops</html>"))
		})

		It("returns an unparsable payload error", func() {
			Expect(errors.Is(err, ErrUnparsablePayload)).To(BeTrue())
		})
	})

	When("the reply text is not receipt JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(reply("I cannot read this receipt."))
		})

		It("returns an unparsable payload error", func() {
			Expect(errors.Is(err, ErrUnparsablePayload)).To(BeTrue())
		})
	})

	When("the service is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns a TransportError", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(ErrorKind(err)).To(Equal("transport"))
		})
	})

	When("the image is empty", func() {
		BeforeEach(func() {
			img.Data = nil
		})

		It("fails before calling the service", func() {
			Expect(err).To(MatchError(ErrEmptyImage))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
