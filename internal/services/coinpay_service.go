package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"rpchubBack/internal/models"
)

type CoinpayConfig struct {
	APIKey    string
	IPNSecret string

	// База шлюза, пример: https://api.coinpay.example
	BaseURL string

	// Куда шлётся вебхук (бэк)
	CallbackURL string

	// Куда вернуть пользователя после оплаты (фронт)
	SuccessURL string
	CancelURL  string

	Client *http.Client
	Logger *slog.Logger
}

// CoinpayService talks to the crypto payment gateway. Invoices are created
// over its JSON API; IPN callbacks are signed with HMAC-SHA256 of the raw
// body under X-Coinpay-Signature.
type CoinpayService struct {
	apiKey      string
	ipnSecret   string
	baseURL     *url.URL
	callbackURL string
	successURL  string
	cancelURL   string

	httpClient *http.Client
	logger     *slog.Logger
}

func NewCoinpayService(cfg CoinpayConfig) (*CoinpayService, error) {
	if strings.TrimSpace(cfg.APIKey) == "" ||
		strings.TrimSpace(cfg.IPNSecret) == "" ||
		strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("coinpay: api_key/ipn_secret/base_url are required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	return &CoinpayService{
		apiKey:      cfg.APIKey,
		ipnSecret:   cfg.IPNSecret,
		baseURL:     u,
		callbackURL: cfg.CallbackURL,
		successURL:  cfg.SuccessURL,
		cancelURL:   cfg.CancelURL,
		httpClient:  client,
		logger:      logger,
	}, nil
}

func (s *CoinpayService) Provider() models.PaymentProvider { return models.ProviderCoinpay }

type coinpayInvoiceRequest struct {
	PriceAmount    float64 `json:"price_amount"`
	PriceCurrency  string  `json:"price_currency"`
	OrderID        string  `json:"order_id"`
	OrderDesc      string  `json:"order_description,omitempty"`
	IPNCallbackURL string  `json:"ipn_callback_url"`
	SuccessURL     string  `json:"success_url,omitempty"`
	CancelURL      string  `json:"cancel_url,omitempty"`
}

type coinpayInvoiceResponse struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	InvoiceURL string `json:"invoice_url"`
	Status     string `json:"status"`
}

func (s *CoinpayService) CreateCheckout(ctx context.Context, p models.Payment, email string) (models.CheckoutRef, error) {
	logger := s.logger.With("op", "CreateCheckout", "payment_id", p.ID)

	endpoint := *s.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/v1/invoice")

	body, _ := json.Marshal(coinpayInvoiceRequest{
		PriceAmount:    p.Amount,
		PriceCurrency:  strings.ToLower(p.Currency),
		OrderID:        p.ID,
		OrderDesc:      fmt.Sprintf("%s plan", p.PlanType),
		IPNCallbackURL: s.callbackURL,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Error("invoice request failed", "err", err)
		return models.CheckoutRef{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	logger.Debug("invoice raw", "status", resp.Status, "body", trim(string(b), 2000))

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return models.CheckoutRef{}, fmt.Errorf("%w: %s %s", models.ErrProviderRejected, resp.Status, strings.TrimSpace(string(b)))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return models.CheckoutRef{}, fmt.Errorf("%w: %s", models.ErrProviderUnavailable, resp.Status)
	}

	var out coinpayInvoiceResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return models.CheckoutRef{}, fmt.Errorf("decode invoice: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" || strings.TrimSpace(out.InvoiceURL) == "" {
		return models.CheckoutRef{}, fmt.Errorf("coinpay: empty invoice id or url")
	}

	return models.CheckoutRef{
		ExternalID:  out.ID,
		RedirectURL: out.InvoiceURL,
		Raw:         json.RawMessage(b),
	}, nil
}

type coinpayIPN struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	InvoiceID     string `json:"invoice_id"`
	OrderID       string `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	PayCurrency   string `json:"pay_currency"`
}

func (s *CoinpayService) ParseWebhook(body []byte, header http.Header) (models.NormalizedEvent, error) {
	if s.ipnSecret == "" {
		return models.NormalizedEvent{}, models.ErrSecretNotConfigured
	}

	sig := header.Get("X-Coinpay-Signature")
	if sig == "" || !VerifyHMAC(body, sig, s.ipnSecret) {
		return models.NormalizedEvent{}, models.ErrSignatureInvalid
	}

	var ipn coinpayIPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return models.NormalizedEvent{}, fmt.Errorf("%w: %v", models.ErrPayloadMalformed, err)
	}
	if strings.TrimSpace(ipn.EventID) == "" || strings.TrimSpace(ipn.InvoiceID) == "" {
		return models.NormalizedEvent{}, fmt.Errorf("%w: missing event_id or invoice_id", models.ErrPayloadMalformed)
	}

	eventType := ipn.EventType
	if eventType == "" {
		eventType = "payment." + strings.ToLower(ipn.PaymentStatus)
	}

	return models.NormalizedEvent{
		Provider:          models.ProviderCoinpay,
		ExternalEventID:   ipn.EventID,
		EventType:         eventType,
		ExternalPaymentID: ipn.InvoiceID,
		PaymentID:         ipn.OrderID,
		RawStatus:         ipn.PaymentStatus,
		Metadata:          map[string]string{"pay_currency": ipn.PayCurrency},
		Raw:               body,
	}, nil
}
