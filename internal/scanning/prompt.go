package scanning

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are analyzing a photo of a receipt. Carefully read all text in the image and extract the following information:

1. **Merchant**: The store or business name, usually the largest text at the top.
2. **Date**: The transaction date, converted to ISO 8601 format (YYYY-MM-DD).
3. **Category**: Exactly one of: Food & Drink, Travel, Supplies, Utilities, Other.
4. **Subtotal, Tax, Total**: The amounts as plain numbers without currency symbols (e.g., 42.75 for $42.75).
5. **Currency**: The ISO 4217 code of the currency, e.g. "USD".
6. **Confidence**: A number between 0 and 1 indicating how accurate your extraction is.
7. **Items**: Each purchased line item with its description, quantity and unit price.

Return ONLY valid JSON in this exact format:
{
  "merchant": "Store Name",
  "date": "YYYY-MM-DD",
  "category": "Food & Drink",
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00,
  "confidence": 0.0,
  "currency": "USD",
  "items": [{"description": "Item", "quantity": 1, "price": 0.00}]
}

Important:
- Amounts must be numbers (not strings)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON`

// systemPrompt primes chat-style providers that support a system role
const systemPrompt = "You are an expert at reading and extracting information from receipts. You must carefully read all text in images and extract accurate information."
