// Package payment adapts the external payment gateway. Gateway failures are
// surfaced as typed errors, never panics, and the asynchronous webhook — not
// the synchronous response — is the authority for marking a charge settled.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/config"
	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
)

type ChargeRequest struct {
	OrderID      string              `json:"order_id"`
	RestaurantID string              `json:"restaurant_id"`
	Amount       float64             `json:"amount"`
	Currency     string              `json:"currency"`
	Customer     models.CustomerInfo `json:"customer"`
}

type ChargeResult struct {
	PaymentID string `json:"payment_id"`
	// Captured is true only when the provider confirmed the money moved. An
	// authorized charge is still in flight and settles through the webhook.
	Captured bool `json:"captured"`
}

// Gateway initiates charges against the external provider.
type Gateway interface {
	InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// HTTPGateway talks to the provider's REST API with basic key auth.
type HTTPGateway struct {
	cfg    *config.GatewayConfig
	client *http.Client
	logger *zap.Logger
}

func NewHTTPGateway(cfg *config.GatewayConfig, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (g *HTTPGateway) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	// A charge without an order id cannot be correlated with the webhook
	// confirmation, so it is never sent.
	if req.OrderID == "" {
		return nil, errs.New(errs.KindValidation, "charge requires an order id")
	}
	if req.Amount <= 0 {
		return nil, errs.Field("amount", "must be positive")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindGateway, "failed to encode charge request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindGateway, "failed to build charge request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Warn("charge initiation failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, errs.Wrap(errs.KindGateway, "charge initiation failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindGateway, "failed to read gateway response", err)
	}

	var charge chargeResponse
	if err := json.Unmarshal(respBody, &charge); err != nil {
		return nil, errs.Wrap(errs.KindGateway, "malformed gateway response", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		g.logger.Warn("gateway rejected charge",
			zap.String("order_id", req.OrderID),
			zap.Int("status", resp.StatusCode),
			zap.String("gateway_error", charge.Error))
		return nil, errs.Newf(errs.KindGateway, "gateway rejected charge: %s", charge.Error)
	}
	if charge.Status != "captured" && charge.Status != "authorized" {
		return nil, errs.Newf(errs.KindGateway, "unexpected charge status %q", charge.Status)
	}

	g.logger.Info("charge initiated",
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", charge.ID),
		zap.String("status", charge.Status))
	return &ChargeResult{PaymentID: charge.ID, Captured: charge.Status == "captured"}, nil
}

// WebhookEvent is the provider's out-of-band confirmation.
type WebhookEvent struct {
	Event     string `json:"event"` // payment.captured | payment.failed
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// VerifyWebhookSignature checks the HMAC-SHA256 hex signature the provider
// attaches to webhook deliveries.
func VerifyWebhookSignature(secret string, payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook validates the signature and decodes the event.
func ParseWebhook(secret string, payload []byte, signature string) (*WebhookEvent, error) {
	if !VerifyWebhookSignature(secret, payload, signature) {
		return nil, errs.New(errs.KindGateway, "invalid webhook signature")
	}
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errs.Wrap(errs.KindGateway, "malformed webhook payload", err)
	}
	if event.OrderID == "" {
		return nil, errs.New(errs.KindGateway, "webhook missing order id")
	}
	if event.Event != EventPaymentCaptured && event.Event != EventPaymentFailed {
		return nil, errs.Newf(errs.KindGateway, "unsupported webhook event %q", event.Event)
	}
	return &event, nil
}

var _ Gateway = (*HTTPGateway)(nil)

// String renders the request for audit logs without the customer contact.
func (r ChargeRequest) String() string {
	return fmt.Sprintf("charge{order=%s amount=%.2f %s}", r.OrderID, r.Amount, r.Currency)
}
