// Package cryptopay предоставляет клиент платёжного шлюза CryptoBot (Crypto Pay API).
package cryptopay

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://pay.crypt.bot/api"

	// Шлюз принимает не больше 1024 символов описания.
	maxDescriptionLen = 1024

	settlementAsset = "USDT"
)

// Статусы счёта, которые сообщает шлюз.
const (
	InvoiceStatusActive  = "active"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusExpired = "expired"
)

// APIError описывает ошибку, которую вернул шлюз в конверте ответа.
type APIError struct {
	Name string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cryptopay: %s", e.Name)
}

// Client инкапсулирует HTTP-взаимодействие с Crypto Pay API.
// Ретраев нет намеренно: решение о повторе принимает вызывающая сторона.
type Client struct {
	token      string
	baseURL    string
	usdRate    float64
	httpClient *http.Client
}

// Invoice описывает созданный счёт на оплату.
type Invoice struct {
	ID     string
	PayURL string
	Amount string
	Asset  string
}

// InvoiceStatus описывает текущее состояние счёта.
type InvoiceStatus struct {
	Status string
	PaidAt string
}

// NewClient создаёт клиент шлюза с указанным токеном и курсом RUB за 1 USD.
func NewClient(token string, usdRate float64) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		usdRate: usdRate,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  struct {
		Name string `json:"name"`
	} `json:"error"`
}

type invoiceResult struct {
	InvoiceID json.Number `json:"invoice_id"`
	Status    string      `json:"status"`
	PayURL    string      `json:"pay_url"`
	Amount    string      `json:"amount"`
	Asset     string      `json:"asset"`
	PaidAt    string      `json:"paid_at"`
}

// CreateInvoice создаёт счёт на сумму в рублях, пересчитанную в USDT по
// фиксированному курсу.
func (c *Client) CreateInvoice(ctx context.Context, amountRUB float64, description string) (*Invoice, error) {
	if c == nil || c.token == "" {
		return nil, fmt.Errorf("cryptopay client not configured")
	}

	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}

	amountUSDT := math.Round(amountRUB/c.usdRate*100) / 100

	payload := map[string]any{
		"asset":           settlementAsset,
		"amount":          strconv.FormatFloat(amountUSDT, 'f', 2, 64),
		"description":     description,
		"payload":         fmt.Sprintf("order_%d", time.Now().Unix()),
		"allow_anonymous": false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/createInvoice", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !envelope.OK {
		return nil, apiErrorFrom(envelope)
	}

	var result invoiceResult
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}

	return &Invoice{
		ID:     result.InvoiceID.String(),
		PayURL: result.PayURL,
		Amount: result.Amount,
		Asset:  result.Asset,
	}, nil
}

// GetInvoiceStatus запрашивает статус ранее созданного счёта.
func (c *Client) GetInvoiceStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	if c == nil || c.token == "" {
		return nil, fmt.Errorf("cryptopay client not configured")
	}

	u := c.baseURL + "/getInvoices?invoice_ids=" + url.QueryEscape(invoiceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !envelope.OK {
		return nil, apiErrorFrom(envelope)
	}

	var result struct {
		Items []invoiceResult `json:"items"`
	}
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return nil, fmt.Errorf("decode invoices: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, fmt.Errorf("invoice %s not found", invoiceID)
	}

	item := result.Items[0]
	return &InvoiceStatus{
		Status: item.Status,
		PaidAt: item.PaidAt,
	}, nil
}

func apiErrorFrom(envelope apiEnvelope) error {
	name := envelope.Error.Name
	if name == "" {
		name = "Unknown error"
	}
	return &APIError{Name: name}
}
