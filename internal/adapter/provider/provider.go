package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"merchant-wallet-ledger/config"
	"merchant-wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPClient is the subset of *http.Client the live provider needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// New returns the live provider when cfg.Mode is "live" and the test-mode
// provider otherwise.
func New(cfg config.ProviderConfig, log zerolog.Logger) ports.PayoutProvider {
	if cfg.IsLive() {
		return NewLive(cfg, &http.Client{Timeout: cfg.Timeout}, log)
	}
	log.Warn().Str("provider", cfg.Name).Msg("payout provider in test mode, transfers are simulated")
	return NewTestMode(cfg.Name)
}

// Live calls the provider's transfer API.
type Live struct {
	name      string
	baseURL   string
	secretKey string
	client    HTTPClient
	log       zerolog.Logger
}

// NewLive creates a live payout provider client.
func NewLive(cfg config.ProviderConfig, client HTTPClient, log zerolog.Logger) *Live {
	return &Live{
		name:      cfg.Name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		client:    client,
		log:       log,
	}
}

type transferPayload struct {
	Source        string `json:"source"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
	Reason        string `json:"reason,omitempty"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type transferResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	} `json:"data"`
}

// Name returns the provider name used in webhook routes and logs.
func (p *Live) Name() string {
	return p.name
}

// Transfer submits one payout. Anything other than an accepted transfer is an error.
func (p *Live) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	body, err := json.Marshal(transferPayload{
		Source:        "balance",
		Amount:        req.AmountKobo,
		Currency:      req.Currency,
		Reference:     req.Reference,
		Reason:        req.Reason,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transfer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transfer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.secretKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transfer: send: %w", err)
	}
	defer resp.Body.Close()

	p.log.Info().
		Str("provider", p.name).
		Str("reference", req.Reference).
		Int("status", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("provider transfer response received")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("transfer: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transfer: unexpected status %d: %s", resp.StatusCode, truncate(raw, 512))
	}

	var out transferResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("transfer: decode: %w", err)
	}
	if !out.Status {
		return nil, fmt.Errorf("transfer rejected: %s", out.Message)
	}

	result := &ports.TransferResult{ProviderReference: out.Data.TransferCode, Status: ports.TransferStatusPending}
	switch strings.ToLower(out.Data.Status) {
	case "success":
		result.Status = ports.TransferStatusSuccess
	case "pending", "otp", "received", "queued":
	default:
		return nil, fmt.Errorf("transfer: unexpected transfer status %q", out.Data.Status)
	}
	return result, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

// TestMode accepts every transfer synchronously with a generated reference.
type TestMode struct {
	name string
}

// NewTestMode creates the simulated provider.
func NewTestMode(name string) *TestMode {
	return &TestMode{name: name}
}

// Name returns the provider name.
func (p *TestMode) Name() string {
	return p.name
}

// Transfer succeeds immediately.
func (p *TestMode) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ports.TransferResult{
		ProviderReference: "TEST_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		Status:            ports.TransferStatusSuccess,
	}, nil
}
