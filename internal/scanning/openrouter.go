package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "google/gemini-2.5-flash"
	maxErrorBody           = 512
)

// OpenRouter implements the Scanner interface against an OpenAI-compatible
// chat completions endpoint (OpenRouter by default)
type OpenRouter struct {
	baseURL string
	apiKey  string
	model   string
	referer string
	title   string
	client  *http.Client
}

// OpenRouterOption configures an OpenRouter scanner
type OpenRouterOption func(*OpenRouter)

// WithOpenRouterURL overrides the API base URL
func WithOpenRouterURL(baseURL string) OpenRouterOption {
	return func(o *OpenRouter) { o.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithOpenRouterReferer sets the HTTP-Referer and X-Title attribution headers
func WithOpenRouterReferer(referer, title string) OpenRouterOption {
	return func(o *OpenRouter) {
		o.referer = referer
		o.title = title
	}
}

// WithOpenRouterHTTPClient replaces the HTTP client
func WithOpenRouterHTTPClient(client *http.Client) OpenRouterOption {
	return func(o *OpenRouter) { o.client = client }
}

// NewOpenRouter creates a new OpenRouter Scanner instance.
// An empty apiKey is passed through and surfaces as a ServiceError from the remote side.
func NewOpenRouter(apiKey, modelName string, opts ...OpenRouterOption) *OpenRouter {
	if modelName == "" {
		modelName = defaultOpenRouterModel
	}
	o := &OpenRouter{
		baseURL: defaultOpenRouterURL,
		apiKey:  apiKey,
		model:   modelName,
		title:   "Receipt Capture",
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ScanReceipt analyzes a receipt and extracts metadata
func (o *OpenRouter) ScanReceipt(ctx context.Context, img CapturedImage) (*ReceiptData, error) {
	pngData, _, err := prepareImageData(img)
	if err != nil {
		return nil, err
	}

	reqBody := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContent{
					{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL(pngData)}},
					{Type: "text", Text: receiptScanPrompt},
				},
			},
		},
		MaxTokens: 1024,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.referer != "" {
		req.Header.Set("HTTP-Referer", o.referer)
	}
	if o.title != "" {
		req.Header.Set("X-Title", o.title)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, unparsablePayload(fmt.Errorf("decoding response: %w", err))
	}
	if len(chatResp.Choices) == 0 || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return nil, missingPayload("no content in openrouter response")
	}

	return parseReceiptJSON(chatResp.Choices[0].Message.Content)
}

// Close is a no-op for the HTTP client
func (o *OpenRouter) Close() error {
	return nil
}

func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(body))
}
