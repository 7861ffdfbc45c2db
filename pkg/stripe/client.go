package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/aklauser/marktplatz-backend/pkg/config"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

var centsFactor = decimal.NewFromInt(100)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// CreateTransfer moves escrowed funds to a connected payout account. The
// transfer is tied to the original charge so it can never exceed or outlive
// the captured amount, and the idempotency key pins retries to one transfer.
func (c *Client) CreateTransfer(ctx context.Context, amount decimal.Decimal, currency, destinationAccount, sourceCharge, idempotencyKey string, metadata map[string]string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("stripe client not initialized")
	}
	if destinationAccount == "" {
		return "", errors.New("destination account is required")
	}
	if sourceCharge == "" {
		return "", errors.New("source charge is required")
	}
	params := &stripe.TransferCreateParams{
		Amount:            stripe.Int64(toCents(amount)),
		Currency:          stripe.String(strings.ToLower(currency)),
		Destination:       stripe.String(destinationAccount),
		SourceTransaction: stripe.String(sourceCharge),
		Metadata:          metadata,
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	transfer, err := c.api.V1Transfers.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("stripe create transfer: %w", err)
	}
	return transfer.ID, nil
}

// CreateRefund refunds the original charge in full.
func (c *Client) CreateRefund(ctx context.Context, charge, idempotencyKey string, metadata map[string]string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("stripe client not initialized")
	}
	if charge == "" {
		return "", errors.New("charge is required")
	}
	params := &stripe.RefundCreateParams{
		Charge:   stripe.String(charge),
		Metadata: metadata,
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	refund, err := c.api.V1Refunds.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("stripe create refund: %w", err)
	}
	return refund.ID, nil
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(centsFactor).Round(0).IntPart()
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, apiKey string) error {
	switch env {
	case testEnv:
		if !strings.HasPrefix(apiKey, "sk_test_") && !strings.HasPrefix(apiKey, "rk_test_") {
			return fmt.Errorf("stripe %s environment requires a test api key", env)
		}
	case liveEnv:
		if !strings.HasPrefix(apiKey, "sk_live_") && !strings.HasPrefix(apiKey, "rk_live_") {
			return fmt.Errorf("stripe %s environment requires a live api key", env)
		}
	}
	return nil
}
