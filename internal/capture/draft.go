package capture

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-capture/internal/scanning"
)

// Editable draft fields
const (
	FieldMerchant = "merchant"
	FieldDate     = "date"
	FieldCategory = "category"
	FieldSubtotal = "subtotal"
	FieldTax      = "tax"
	FieldTotal    = "total"
	FieldCurrency = "currency"
)

// ErrUnknownField is returned by SetField for names that are not editable fields
var ErrUnknownField = errors.New("unknown field")

// Draft is the user-editable copy of an extraction result held while reviewing.
// It is a value: SetField returns a new Draft and never changes the receiver.
type Draft struct {
	Merchant   string              `json:"merchant"`
	Date       string              `json:"date"`
	Category   scanning.Category   `json:"category"`
	Subtotal   decimal.Decimal     `json:"subtotal"`
	Tax        decimal.Decimal     `json:"tax"`
	Total      decimal.Decimal     `json:"total"`
	Confidence decimal.Decimal     `json:"confidence"`
	Currency   string              `json:"currency"`
	Items      []scanning.LineItem `json:"items,omitempty"`
}

// NewDraft seeds a draft from an extraction result
func NewDraft(data scanning.ReceiptData) Draft {
	return Draft{
		Merchant:   data.Merchant,
		Date:       data.Date,
		Category:   data.Category,
		Subtotal:   data.Subtotal,
		Tax:        data.Tax,
		Total:      data.Total,
		Confidence: data.Confidence,
		Currency:   data.Currency,
		Items:      slices.Clone(data.Items),
	}
}

// SetField returns a copy of d with one field replaced. Numeric fields that
// cannot be read become zero. Dates, currencies and categories that are not
// valid keep their previous value.
func (d Draft) SetField(field string, value any) (Draft, error) {
	next := d
	next.Items = slices.Clone(d.Items)

	switch field {
	case FieldMerchant:
		next.Merchant = toString(value)
	case FieldDate:
		if date, err := time.Parse("2006-01-02", strings.TrimSpace(toString(value))); err == nil {
			next.Date = date.Format("2006-01-02")
		}
	case FieldCategory:
		if c, ok := scanning.ParseCategory(toString(value)); ok {
			next.Category = c
		}
	case FieldSubtotal:
		next.Subtotal = toDecimal(value)
	case FieldTax:
		next.Tax = toDecimal(value)
	case FieldTotal:
		next.Total = toDecimal(value)
	case FieldCurrency:
		if code := strings.ToUpper(strings.TrimSpace(toString(value))); isCurrencyCode(code) {
			next.Currency = code
		}
	default:
		return d, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return next, nil
}

// Field returns the display value of a field
func (d Draft) Field(field string) (string, error) {
	switch field {
	case FieldMerchant:
		return d.Merchant, nil
	case FieldDate:
		return d.Date, nil
	case FieldCategory:
		return string(d.Category), nil
	case FieldSubtotal:
		return d.Subtotal.StringFixed(2), nil
	case FieldTax:
		return d.Tax.StringFixed(2), nil
	case FieldTotal:
		return d.Total.StringFixed(2), nil
	case FieldCurrency:
		return d.Currency, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// ConfidencePercent is the rounded confidence shown as "N% Match"
func (d Draft) ConfidencePercent() int64 {
	return d.Confidence.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func toDecimal(value any) decimal.Decimal {
	switch v := value.(type) {
	case decimal.Decimal:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case int32:
		return decimal.NewFromInt32(v)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
