package capture

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-capture/internal/scanning"
)

func acmeReceipt() *scanning.ReceiptData {
	return &scanning.ReceiptData{
		Merchant:   "Acme Cafe",
		Date:       "2024-05-01",
		Category:   scanning.CategoryFoodDrink,
		Subtotal:   decimal.RequireFromString("11.50"),
		Tax:        decimal.RequireFromString("1.00"),
		Total:      decimal.RequireFromString("12.50"),
		Confidence: decimal.RequireFromString("0.93"),
		Currency:   "USD",
		Items: []scanning.LineItem{
			{Description: "Latte", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("4.50")},
		},
	}
}

var _ = Describe("Draft", func() {
	var original Draft

	BeforeEach(func() {
		original = NewDraft(*acmeReceipt())
	})

	Describe("NewDraft", func() {
		It("copies every field", func() {
			Expect(original.Merchant).To(Equal("Acme Cafe"))
			Expect(original.Total.StringFixed(2)).To(Equal("12.50"))
			Expect(original.Items).To(HaveLen(1))
		})

		It("does not share items with the extraction result", func() {
			data := acmeReceipt()
			d := NewDraft(*data)
			data.Items[0].Description = "changed"
			Expect(d.Items[0].Description).To(Equal("Latte"))
		})

		It("reports the confidence as a percentage", func() {
			Expect(original.ConfidencePercent()).To(BeEquivalentTo(93))
		})
	})

	Describe("SetField", func() {
		It("replaces only the edited field", func() {
			edited, err := original.SetField(FieldTax, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(edited.Tax.Equal(decimal.NewFromInt(5))).To(BeTrue())

			expected := original
			expected.Tax = edited.Tax
			Expect(edited).To(Equal(expected))
		})

		It("never mutates the original", func() {
			_, err := original.SetField(FieldMerchant, "Other Cafe")
			Expect(err).NotTo(HaveOccurred())
			Expect(original.Merchant).To(Equal("Acme Cafe"))
		})

		It("does not recompute the total", func() {
			edited, _ := original.SetField(FieldSubtotal, "20")
			Expect(edited.Subtotal.StringFixed(2)).To(Equal("20.00"))
			Expect(edited.Total.StringFixed(2)).To(Equal("12.50"))
		})

		DescribeTable("numeric input",
			func(value any, expected string) {
				edited, err := original.SetField(FieldTotal, value)
				Expect(err).NotTo(HaveOccurred())
				Expect(edited.Total.StringFixed(2)).To(Equal(expected))
			},
			Entry("decimal", decimal.RequireFromString("9.99"), "9.99"),
			Entry("float", 3.5, "3.50"),
			Entry("int", 7, "7.00"),
			Entry("numeric string", " 42.10 ", "42.10"),
			Entry("garbage string becomes zero", "abc", "0.00"),
			Entry("empty string becomes zero", "", "0.00"),
			Entry("nil becomes zero", nil, "0.00"),
			Entry("bool becomes zero", true, "0.00"),
		)

		It("keeps the previous date when the input is not a date", func() {
			edited, _ := original.SetField(FieldDate, "yesterday")
			Expect(edited.Date).To(Equal("2024-05-01"))

			edited, _ = original.SetField(FieldDate, "2024-06-02")
			Expect(edited.Date).To(Equal("2024-06-02"))
		})

		It("accepts category labels and ignores unknown ones", func() {
			edited, _ := original.SetField(FieldCategory, "Travel")
			Expect(edited.Category).To(Equal(scanning.CategoryTravel))

			edited, _ = original.SetField(FieldCategory, "Groceries")
			Expect(edited.Category).To(Equal(scanning.CategoryFoodDrink))
		})

		It("upper-cases currency codes and ignores invalid ones", func() {
			edited, _ := original.SetField(FieldCurrency, "eur")
			Expect(edited.Currency).To(Equal("EUR"))

			edited, _ = original.SetField(FieldCurrency, "euro")
			Expect(edited.Currency).To(Equal("USD"))
		})

		It("rejects fields that are not editable", func() {
			_, err := original.SetField("confidence", 1)
			Expect(errors.Is(err, ErrUnknownField)).To(BeTrue())
		})
	})

	Describe("Field", func() {
		It("formats amounts with two decimals", func() {
			v, err := original.Field(FieldTax)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("1.00"))
		})

		It("rejects unknown fields", func() {
			_, err := original.Field("items")
			Expect(err).To(MatchError(ErrUnknownField))
		})
	})
})
