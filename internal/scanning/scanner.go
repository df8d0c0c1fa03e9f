package scanning

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the expense category assigned to a receipt
type Category string

const (
	CategoryFoodDrink Category = "Food & Drink"
	CategoryTravel    Category = "Travel"
	CategorySupplies  Category = "Supplies"
	CategoryUtilities Category = "Utilities"
	CategoryOther     Category = "Other"
)

// Categories lists every known category in display order
var Categories = []Category{
	CategoryFoodDrink,
	CategoryTravel,
	CategorySupplies,
	CategoryUtilities,
	CategoryOther,
}

// ParseCategory maps a label to a known category. The second return value is
// false when the label matches nothing.
func ParseCategory(label string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer(" ", "", "&", "", "_", "", "-", "", "and", "").Replace(key)
	for _, c := range Categories {
		candidate := strings.NewReplacer(" ", "", "&", "").Replace(strings.ToLower(string(c)))
		if key == candidate {
			return c, true
		}
	}
	return CategoryOther, false
}

// LineItem is a single purchased item on a receipt
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// ReceiptData contains extracted information from a receipt
type ReceiptData struct {
	Merchant   string          `json:"merchant"`
	Date       string          `json:"date"` // ISO 8601 format
	Category   Category        `json:"category"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
	Confidence decimal.Decimal `json:"confidence"` // 0..1
	Currency   string          `json:"currency"`   // ISO 4217
	Items      []LineItem      `json:"items,omitempty"`
}

// CapturedImage is an image submitted for scanning
type CapturedImage struct {
	ID         string    `json:"id"`
	Data       []byte    `json:"-"`
	MIMEType   string    `json:"mime_type"`
	CapturedAt time.Time `json:"captured_at"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt sends the image to the extraction service and parses the reply.
	// Failures are *TransportError, *ServiceError or *MalformedResponseError.
	ScanReceipt(ctx context.Context, img CapturedImage) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
