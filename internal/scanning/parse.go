package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const isoDate = "2006-01-02"

// receiptJSON is the wire shape requested from the models
type receiptJSON struct {
	Merchant   string          `json:"merchant"`
	Date       string          `json:"date"`
	Category   string          `json:"category"`
	Subtotal   json.RawMessage `json:"subtotal"`
	Tax        json.RawMessage `json:"tax"`
	Total      json.RawMessage `json:"total"`
	Confidence json.RawMessage `json:"confidence"`
	Currency   string          `json:"currency"`
	Items      []lineItemJSON  `json:"items"`
}

type lineItemJSON struct {
	Description string          `json:"description"`
	Quantity    json.RawMessage `json:"quantity"`
	Price       json.RawMessage `json:"price"`
}

// stripCodeFence removes markdown code fences around a model reply
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseReceiptJSON parses the textual reply of a model into ReceiptData
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, missingPayload("empty reply")
	}

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, unparsablePayload(fmt.Errorf("no JSON object found in response"))
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, unparsablePayload(fmt.Errorf("invalid JSON object in response"))
	}
	text = text[startIdx : endIdx+1]

	var raw receiptJSON
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, unparsablePayload(fmt.Errorf("unmarshaling json: %w", err))
	}

	data := &ReceiptData{
		Merchant: strings.TrimSpace(raw.Merchant),
		Date:     normalizeDate(raw.Date),
		Currency: strings.ToUpper(strings.TrimSpace(raw.Currency)),
	}
	if data.Merchant == "" {
		data.Merchant = "Unknown Merchant"
	}
	if data.Currency == "" {
		data.Currency = "USD"
	}
	data.Category, _ = ParseCategory(raw.Category)

	amounts := []struct {
		name string
		raw  json.RawMessage
		dst  *decimal.Decimal
	}{
		{"subtotal", raw.Subtotal, &data.Subtotal},
		{"tax", raw.Tax, &data.Tax},
		{"total", raw.Total, &data.Total},
		{"confidence", raw.Confidence, &data.Confidence},
	}
	for _, a := range amounts {
		v, err := parseAmount(a.raw)
		if err != nil {
			return nil, unparsablePayload(fmt.Errorf("parsing %s: %w", a.name, err))
		}
		*a.dst = v
	}
	data.Confidence = clampConfidence(data.Confidence)

	for i, item := range raw.Items {
		quantity, err := parseAmount(item.Quantity)
		if err != nil {
			return nil, unparsablePayload(fmt.Errorf("parsing quantity of item %d: %w", i, err))
		}
		if !quantity.IsPositive() {
			quantity = decimal.NewFromInt(1)
		}
		price, err := parseAmount(item.Price)
		if err != nil {
			return nil, unparsablePayload(fmt.Errorf("parsing price of item %d: %w", i, err))
		}
		data.Items = append(data.Items, LineItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    quantity,
			UnitPrice:   price,
		})
	}

	return data, nil
}

// parseAmount accepts JSON numbers, numeric strings and strings with currency symbols.
// null or absent values are zero.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, nil
	}

	if raw[0] != '"' {
		return decimal.NewFromString(string(raw))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Zero, err
	}
	return parseAmountText(s)
}

// parseAmountText reads a money string such as "$1,234.56", "12,50 EUR" or "1.234,56".
// The last '.' or ',' is the decimal separator when one or two digits follow it,
// or when it is the only separator and a dot. Every other separator is a grouping mark.
// Text without digits is treated as absent.
func parseAmountText(s string) (decimal.Decimal, error) {
	var (
		digits   strings.Builder
		negative bool
		seps     []int // positions in digits where a separator occurred
		sepChars []rune
	)
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '.' || r == ',':
			if digits.Len() > 0 {
				seps = append(seps, digits.Len())
				sepChars = append(sepChars, r)
			}
		case r == '-':
			if digits.Len() == 0 {
				negative = true
			}
		}
	}

	number := digits.String()
	if number == "" {
		return decimal.Zero, nil
	}

	if n := len(seps); n > 0 {
		last := seps[n-1]
		fraction := len(number) - last
		onlyDot := n == 1 && sepChars[0] == '.'
		if (fraction >= 1 && fraction <= 2) || (onlyDot && fraction > 0) {
			number = number[:last] + "." + number[last:]
		}
	}
	if negative {
		number = "-" + number
	}
	return decimal.NewFromString(number)
}

func clampConfidence(c decimal.Decimal) decimal.Decimal {
	if c.IsNegative() {
		return decimal.Zero
	}
	if c.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return c
}

// normalizeDate converts the common receipt date formats to YYYY-MM-DD, defaulting to today
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	formats := []string{
		isoDate,
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, date); err == nil {
			return d.Format(isoDate)
		}
	}
	return time.Now().Format(isoDate)
}
