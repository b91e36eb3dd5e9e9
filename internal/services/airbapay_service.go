package services

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"rpchubBack/internal/models"
)

type AirbapayConfig struct {
	Username   string
	Password   string
	TerminalID string

	// База эквайринга AirbaPay (прод)
	// Пример: https://ps.airbapay.kz/acquiring-api
	BaseURL string

	// Публичный ключ для верификации подписи вебхука (PEM).
	// https://ps.airbapay.kz/acquiring/sign/public.pem
	SignPublicKeyPEM string

	// Куда вернуть пользователя после оплаты (фронт)
	SuccessBackURL string
	FailureBackURL string

	// Куда шлётся вебхук (бэк)
	CallbackURL string

	Client *http.Client
	Logger *slog.Logger
}

type AirbapayService struct {
	username   string
	password   string
	terminalID string
	baseURL    *url.URL
	pubKey     *rsa.PublicKey

	successBackURL string
	failureBackURL string
	callbackURL    string

	httpClient *http.Client
	logger     *slog.Logger

	// jwt cache
	mu          sync.Mutex
	accessToken string
	tokenExp    time.Time
}

func NewAirbapayService(cfg AirbapayConfig) (*AirbapayService, error) {
	if strings.TrimSpace(cfg.Username) == "" ||
		strings.TrimSpace(cfg.Password) == "" ||
		strings.TrimSpace(cfg.TerminalID) == "" ||
		strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("airbapay: username/password/terminal_id/base_url are required")
	}

	// Ключ обязателен на старте: без него нельзя верифицировать ни один вебхук.
	pubKey, err := parseRSAPublicKey(cfg.SignPublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("airbapay: sign public key: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	s := &AirbapayService{
		username:       cfg.Username,
		password:       cfg.Password,
		terminalID:     cfg.TerminalID,
		baseURL:        u,
		pubKey:         pubKey,
		successBackURL: cfg.SuccessBackURL,
		failureBackURL: cfg.FailureBackURL,
		callbackURL:    cfg.CallbackURL,
		httpClient:     client,
		logger:         logger,
	}
	logger.Info("AirbaPay initialized",
		"baseURL", safeURL(s.baseURL),
		"successBackURL_set", s.successBackURL != "",
		"failureBackURL_set", s.failureBackURL != "",
		"callbackURL_set", s.callbackURL != "",
	)
	return s, nil
}

func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, errors.New("pem decode failed")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rk, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not rsa public key")
	}
	return rk, nil
}

func (s *AirbapayService) Provider() models.PaymentProvider { return models.ProviderAirbapay }

// ------- AUTH (JWT) -------

func (s *AirbapayService) ensureToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Until(s.tokenExp) > 2*time.Minute {
		return s.accessToken, nil
	}
	type signInReq struct {
		User       string `json:"user"`
		Password   string `json:"password"`
		TerminalID string `json:"terminal_id"`
	}
	type signInResp struct {
		AccessToken string `json:"access_token"`
		// Иногда присылают ttl/exp — если нет, используем 55 минут.
	}

	endpoint := *s.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/api/v1/auth/sign-in")
	body, _ := json.Marshal(signInReq{
		User:       s.username,
		Password:   s.password,
		TerminalID: s.terminalID,
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth request: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: auth failed: %s %s", models.ErrProviderUnavailable, resp.Status, strings.TrimSpace(string(b)))
	}
	var out signInResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("auth decode: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("auth: empty access_token")
	}
	s.accessToken = out.AccessToken
	s.tokenExp = time.Now().Add(55 * time.Minute)
	return s.accessToken, nil
}

// ------- PAYMENTS v2 -------

type paymentV2Request struct {
	InvoiceID       string  `json:"invoice_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Description     string  `json:"description,omitempty"`
	Email           string  `json:"email,omitempty"`
	Language        string  `json:"language,omitempty"`
	CardSave        bool    `json:"card_save"`
	AutoCharge      int     `json:"auto_charge"` // 1=one-stage, 0=two-stage
	SuccessBackURL  string  `json:"success_back_url"`
	FailureBackURL  string  `json:"failure_back_url"`
	SuccessCallback string  `json:"success_callback"`
	FailureCallback string  `json:"failure_callback"`
}

type paymentV2Response struct {
	ID          string `json:"id"`
	InvoiceID   string `json:"invoice_id"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
}

// CreateCheckout создаёт платёж и получает redirect_url. invoice_id — наш
// внутренний id платежа, по нему вебхук находит Payment.
func (s *AirbapayService) CreateCheckout(ctx context.Context, p models.Payment, email string) (models.CheckoutRef, error) {
	logger := s.logger.With("op", "CreateCheckout", "payment_id", p.ID)
	token, err := s.ensureToken(ctx)
	if err != nil {
		return models.CheckoutRef{}, err
	}

	endpoint := *s.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/api/v2/payments")

	reqBody := paymentV2Request{
		InvoiceID:       p.ID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Description:     fmt.Sprintf("%s plan", p.PlanType),
		Email:           email,
		Language:        "ru",
		CardSave:        false,
		AutoCharge:      1,
		SuccessBackURL:  s.successBackURL,
		FailureBackURL:  s.failureBackURL,
		SuccessCallback: s.callbackURL,
		FailureCallback: s.callbackURL,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.CheckoutRef{}, fmt.Errorf("%w: payments v2 request: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	logger.Debug("payments v2 raw", "status", resp.Status, "body", trim(string(b), 2000))

	if resp.StatusCode != http.StatusCreated {
		apiErr := &AirbapayError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return models.CheckoutRef{}, fmt.Errorf("%w: %v", models.ErrProviderRejected, apiErr)
		}
		return models.CheckoutRef{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, apiErr)
	}

	var out paymentV2Response
	if err := json.Unmarshal(b, &out); err != nil {
		return models.CheckoutRef{}, fmt.Errorf("decode payments v2: %w", err)
	}
	if strings.TrimSpace(out.RedirectURL) == "" || strings.TrimSpace(out.ID) == "" {
		return models.CheckoutRef{}, fmt.Errorf("payments v2: empty redirect_url or id")
	}

	return models.CheckoutRef{
		ExternalID:  out.ID,
		RedirectURL: out.RedirectURL,
		Raw:         json.RawMessage(b),
	}, nil
}

// ------- CALLBACK (webhook) -------

type airbapayWebhookPayload struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	Amount      float64         `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	Sign        string          `json:"sign"`
	Raw         json.RawMessage `json:"-"`
}

func (p *airbapayWebhookPayload) UnmarshalJSON(data []byte) error {
	type rawPayload struct {
		ID             string          `json:"id"`
		InvoiceID      string          `json:"invoice_id"`
		InvoiceIDCamel string          `json:"invoiceId"`
		Amount         json.RawMessage `json:"amount"`
		Currency       string          `json:"currency"`
		Status         string          `json:"status"`
		Description    string          `json:"description"`
		Sign           string          `json:"sign"`
	}

	var raw rawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	invoiceID := strings.TrimSpace(raw.InvoiceID)
	if invoiceID == "" {
		invoiceID = strings.TrimSpace(raw.InvoiceIDCamel)
	}

	var amount float64
	if len(raw.Amount) > 0 {
		if err := json.Unmarshal(raw.Amount, &amount); err != nil {
			var amountStr string
			if err := json.Unmarshal(raw.Amount, &amountStr); err != nil {
				return fmt.Errorf("airbapay: parse webhook amount: %w", err)
			}
			amountStr = strings.TrimSpace(amountStr)
			if amountStr != "" {
				parsed, err := strconv.ParseFloat(amountStr, 64)
				if err != nil {
					return fmt.Errorf("airbapay: parse webhook amount: %w", err)
				}
				amount = parsed
			}
		}
	}

	p.ID = strings.TrimSpace(raw.ID)
	p.InvoiceID = invoiceID
	p.Amount = amount
	p.Currency = strings.TrimSpace(raw.Currency)
	p.Status = strings.TrimSpace(raw.Status)
	p.Description = strings.TrimSpace(raw.Description)
	p.Sign = strings.TrimSpace(raw.Sign)

	return nil
}

// Порядок конкатенации для подписи: id+invoice_id+amount+currency+status+description
func (s *AirbapayService) validateCallbackSignature(p *airbapayWebhookPayload) bool {
	if p == nil || strings.TrimSpace(p.Sign) == "" {
		return false
	}

	// amount → строка без лишних нулей по правилам платы (приведём к 2 знакам и обрежем)
	amountStr := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", p.Amount), "0"), ".")
	payload := p.ID + p.InvoiceID + amountStr + p.Currency + p.Status + p.Description

	sig, err := base64.StdEncoding.DecodeString(p.Sign)
	if err != nil {
		return false
	}
	h := sha256.Sum256([]byte(payload))
	if err := rsa.VerifyPKCS1v15(s.pubKey, crypto.SHA256, h[:], sig); err != nil {
		return false
	}
	return true
}

// ParseWebhook verifies the RSA signature and normalizes the callback.
// AirbaPay не присылает отдельный event id, поэтому ключ идемпотентности
// составной: id платежа + статус.
func (s *AirbapayService) ParseWebhook(body []byte, header http.Header) (models.NormalizedEvent, error) {
	if s.pubKey == nil {
		return models.NormalizedEvent{}, models.ErrSecretNotConfigured
	}

	var p airbapayWebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.NormalizedEvent{}, fmt.Errorf("%w: %v", models.ErrPayloadMalformed, err)
	}
	if p.ID == "" || p.InvoiceID == "" {
		return models.NormalizedEvent{}, fmt.Errorf("%w: missing id or invoice_id", models.ErrPayloadMalformed)
	}
	if !s.validateCallbackSignature(&p) {
		return models.NormalizedEvent{}, models.ErrSignatureInvalid
	}

	status := strings.ToLower(p.Status)
	return models.NormalizedEvent{
		Provider:          models.ProviderAirbapay,
		ExternalEventID:   p.ID + ":" + status,
		EventType:         "payment." + status,
		ExternalPaymentID: p.ID,
		PaymentID:         p.InvoiceID,
		RawStatus:         p.Status,
		Metadata:          map[string]string{"description": p.Description},
		Raw:               body,
	}, nil
}

// ---------- helpers ----------

func trim(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

func safeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.User = nil
	return c.String()
}

type AirbapayError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *AirbapayError) Error() string {
	if e == nil {
		return "<nil>"
	}
	bt := strings.TrimSpace(e.Body)
	if bt == "" {
		return fmt.Sprintf("airbapay error: %s", e.Status)
	}
	return fmt.Sprintf("airbapay error: %s: %s", e.Status, bt)
}
