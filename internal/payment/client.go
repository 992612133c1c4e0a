// Package payment предоставляет клиент для внешней платёжной системы.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultBaseURL = "https://api.stripe.com"

// Client инкапсулирует HTTP-взаимодействие с платёжной системой.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент платёжной системы с указанным секретным ключом.
// Пустой baseURL означает адрес боевого API.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: rc.StandardClient(),
	}
}

// SessionLineItem описывает одну позицию создаваемой платёжной сессии.
// UnitAmount задаётся в минимальных денежных единицах с уже применённой скидкой.
type SessionLineItem struct {
	Name       string
	Images     []string
	ProductID  string
	UnitAmount int64
	Quantity   int64
}

// SessionParams содержит параметры создания платёжной сессии.
type SessionParams struct {
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
	LineItems     []SessionLineItem
}

// CheckoutSession описывает платёжную сессию, созданную платёжной системой.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

// LineItem описывает позицию платёжной сессии в ответе платёжной системы.
type LineItem struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
	Price    struct {
		Product    string `json:"product"`
		UnitAmount int64  `json:"unit_amount"`
	} `json:"price"`
}

// Product описывает карточку товара на стороне платёжной системы.
type Product struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Images   []string          `json:"images"`
	Metadata map[string]string `json:"metadata"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession создаёт платёжную сессию с переадресацией на страницу оплаты.
func (c *Client) CreateCheckoutSession(ctx context.Context, params SessionParams) (*CheckoutSession, error) {
	if c == nil || c.apiKey == "" {
		return nil, fmt.Errorf("payment client not configured")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("submit_type", "pay")
	form.Set("payment_method_types[0]", "card")
	form.Set("customer_email", params.CustomerEmail)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)

	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", "inr")
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[price_data][product_data][metadata][productId]", item.ProductID)
		for j, img := range item.Images {
			form.Set(fmt.Sprintf("%s[price_data][product_data][images][%d]", prefix, j), img)
		}
		form.Set(prefix+"[quantity]", strconv.FormatInt(item.Quantity, 10))
		form.Set(prefix+"[adjustable_quantity][enabled]", "true")
		form.Set(prefix+"[adjustable_quantity][minimum]", "1")
	}

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

// ListLineItems запрашивает у платёжной системы позиции указанной сессии.
// Данные о ценах берутся только из этого ответа, а не из тела события.
func (c *Client) ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	if c == nil || c.apiKey == "" {
		return nil, fmt.Errorf("payment client not configured")
	}

	var list struct {
		Data []LineItem `json:"data"`
	}

	path := fmt.Sprintf("/v1/checkout/sessions/%s/line_items", url.PathEscape(sessionID))
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	return list.Data, nil
}

// RetrieveProduct запрашивает карточку товара по идентификатору платёжной системы.
func (c *Client) RetrieveProduct(ctx context.Context, productID string) (*Product, error) {
	if c == nil || c.apiKey == "" {
		return nil, fmt.Errorf("payment client not configured")
	}

	var product Product
	path := fmt.Sprintf("/v1/products/%s", url.PathEscape(productID))
	if err := c.do(ctx, http.MethodGet, path, nil, &product); err != nil {
		return nil, err
	}

	return &product, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("payment api status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("payment api status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
