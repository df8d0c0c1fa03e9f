package scanning

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("parseReceiptJSON", func() {
	var (
		jsonInput string
		data      *ReceiptData
		err       error
	)

	JustBeforeEach(func() {
		data, err = parseReceiptJSON(jsonInput)
	})

	When("parsing valid JSON", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "Acme Cafe", "date": "2024-01-15", "category": "Food & Drink",
				"subtotal": 11.50, "tax": 1.00, "total": 12.50, "confidence": 0.93, "currency": "usd"}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the merchant and date", func() {
			Expect(data.Merchant).To(Equal("Acme Cafe"))
			Expect(data.Date).To(Equal("2024-01-15"))
		})

		It("should map the category label", func() {
			Expect(data.Category).To(Equal(CategoryFoodDrink))
		})

		It("should parse the amounts exactly", func() {
			Expect(data.Subtotal.Equal(decimal.RequireFromString("11.50"))).To(BeTrue())
			Expect(data.Tax.Equal(decimal.NewFromInt(1))).To(BeTrue())
			Expect(data.Total.String()).To(Equal("12.5"))
			Expect(data.Confidence.String()).To(Equal("0.93"))
		})

		It("should upper-case the currency", func() {
			Expect(data.Currency).To(Equal("USD"))
		})

		It("should leave items empty", func() {
			Expect(data.Items).To(BeEmpty())
		})
	})

	When("parsing JSON with markdown code blocks", func() {
		BeforeEach(func() {
			jsonInput = "```json\n{\"merchant\": \"Test\", \"date\": \"2024-01-15\", \"total\": 10.50}\n```"
		})

		It("should strip the fences", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Merchant).To(Equal("Test"))
			Expect(data.Total.String()).To(Equal("10.5"))
		})
	})

	When("parsing JSON with line items", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "Shop", "items": [
				{"description": " Coffee ", "quantity": 2, "price": 3.25},
				{"description": "Bagel", "quantity": 0, "price": "$2.00"}
			]}`
		})

		It("should keep the item order", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Items).To(HaveLen(2))
			Expect(data.Items[0].Description).To(Equal("Coffee"))
			Expect(data.Items[1].Description).To(Equal("Bagel"))
		})

		It("should read price into the unit price", func() {
			Expect(data.Items[0].UnitPrice.String()).To(Equal("3.25"))
			Expect(data.Items[1].UnitPrice.String()).To(Equal("2"))
		})

		It("should default a non-positive quantity to one", func() {
			Expect(data.Items[0].Quantity.IntPart()).To(BeEquivalentTo(2))
			Expect(data.Items[1].Quantity.IntPart()).To(BeEquivalentTo(1))
		})
	})

	When("amounts are strings with currency symbols", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "Hotel", "subtotal": "$1,200.00", "tax": null, "total": "USD 1,296.00"}`
		})

		It("should parse the numbers", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Subtotal.String()).To(Equal("1200"))
			Expect(data.Tax.IsZero()).To(BeTrue())
			Expect(data.Total.String()).To(Equal("1296"))
		})
	})

	When("confidence is out of range", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "X", "confidence": 1.7}`
		})

		It("should clamp it to one", func() {
			Expect(data.Confidence.Equal(decimal.NewFromInt(1))).To(BeTrue())
		})
	})

	When("parsing JSON with an unknown category", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "X", "category": "Groceries"}`
		})

		It("should fall back to Other", func() {
			Expect(data.Category).To(Equal(CategoryOther))
		})
	})

	When("parsing JSON with a US formatted date", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "X", "date": "03/20/2024"}`
		})

		It("should normalize it", func() {
			Expect(data.Date).To(Equal("2024-03-20"))
		})
	})

	When("parsing JSON with invalid date", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "Test", "date": "invalid-date"}`
		})

		It("should default to today's date", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Date).To(Equal(time.Now().Format("2006-01-02")))
		})
	})

	When("parsing JSON with whitespace-only merchant and no currency", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "   ", "total": 1}`
		})

		It("should apply the defaults", func() {
			Expect(data.Merchant).To(Equal("Unknown Merchant"))
			Expect(data.Currency).To(Equal("USD"))
		})
	})

	When("parsing invalid JSON", func() {
		BeforeEach(func() {
			jsonInput = `invalid json`
		})

		It("returns an unparsable payload error", func() {
			var malformed *MalformedResponseError
			Expect(errors.As(err, &malformed)).To(BeTrue())
			Expect(errors.Is(err, ErrUnparsablePayload)).To(BeTrue())
		})
	})

	When("an amount cannot be read", func() {
		BeforeEach(func() {
			jsonInput = `{"merchant": "X", "total": true}`
		})

		It("returns an unparsable payload error", func() {
			Expect(errors.Is(err, ErrUnparsablePayload)).To(BeTrue())
		})
	})

	When("the reply is only a code fence", func() {
		BeforeEach(func() {
			jsonInput = "```json\n```"
		})

		It("returns a missing payload error", func() {
			Expect(errors.Is(err, ErrMissingPayload)).To(BeTrue())
		})
	})
})

var _ = DescribeTable("ParseCategory",
	func(label string, expected Category, known bool) {
		c, ok := ParseCategory(label)
		Expect(c).To(Equal(expected))
		Expect(ok).To(Equal(known))
	},
	Entry("display label", "Food & Drink", CategoryFoodDrink, true),
	Entry("compact label", "FoodDrink", CategoryFoodDrink, true),
	Entry("spelled out", "food and drink", CategoryFoodDrink, true),
	Entry("lower case", "travel", CategoryTravel, true),
	Entry("utilities", " Utilities ", CategoryUtilities, true),
	Entry("unknown", "Groceries", CategoryOther, false),
)

var _ = DescribeTable("amounts written as text",
	func(total string, expected string) {
		data, err := parseReceiptJSON(`{"merchant": "X", "tax": "N/A.", "total": "` + total + `"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(data.Tax.IsZero()).To(BeTrue())
		Expect(data.Total.Equal(decimal.RequireFromString(expected))).To(BeTrue(), "got %s", data.Total)
	},
	Entry("decimal comma", "12,50", "12.50"),
	Entry("dot grouping with decimal comma", "1.234,56", "1234.56"),
	Entry("comma grouping with decimal dot", "1,234.56", "1234.56"),
	Entry("currency symbol", "$12.50", "12.50"),
	Entry("currency code suffix", "12,50 EUR", "12.50"),
	Entry("comma grouping only", "1,234", "1234"),
	Entry("several dot groups", "1.234.567", "1234567"),
	Entry("single dot with three decimals", "0.125", "0.125"),
	Entry("negative amount", "-$5.00", "-5.00"),
	Entry("not available", "N/A", "0"),
	Entry("dash", "-", "0"),
	Entry("trailing separator", "5.", "5"),
)
