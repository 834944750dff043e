package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/parcelcraft/shipledger/internal/config"
	paymentdomain "github.com/parcelcraft/shipledger/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Param struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// hostedGateway talks to a hosted-checkout provider over JSON and verifies
// its webhooks with an HMAC-SHA256 signature.
type hostedGateway struct {
	baseURL string
	secret  []byte
	http    *http.Client
	log     *zap.Logger
}

func New(p Param) paymentdomain.Gateway {
	return &hostedGateway{
		baseURL: p.Cfg.Payment.BaseURL,
		secret:  []byte(p.Cfg.Payment.WebhookSecret),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     p.Log.Named("payment.gateway"),
	}
}

func (g *hostedGateway) CreateSession(ctx context.Context, amount int64, reference string) (*paymentdomain.Session, error) {
	body, err := json.Marshal(map[string]any{
		"amount":    amount,
		"currency":  "INR",
		"reference": reference,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway session create: unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		Ref         string `json:"ref"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return &paymentdomain.Session{Ref: decoded.Ref, RedirectURL: decoded.RedirectURL}, nil
}

func (g *hostedGateway) CheckStatus(ctx context.Context, ref string) (paymentdomain.TopupStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/sessions/"+ref, nil)
	if err != nil {
		return "", err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway status check: unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	switch decoded.Status {
	case "success":
		return paymentdomain.TopupSuccess, nil
	case "failed":
		return paymentdomain.TopupFailed, nil
	default:
		return paymentdomain.TopupPending, nil
	}
}

func (g *hostedGateway) VerifySignature(payload []byte, signature string) bool {
	return VerifyHMAC(g.secret, payload, signature)
}

// SignHMAC produces the hex HMAC-SHA256 signature the gateway sends in its
// webhook header.
func SignHMAC(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a webhook signature in constant time.
func VerifyHMAC(secret, payload []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
