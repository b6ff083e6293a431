package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Metadata keys used to map provider objects back to internal identifiers.
// They are attached to checkout sessions and propagated by the provider to
// the subscriptions those sessions create.
const (
	metaBuyerID     = "buyer_id"
	metaCommunityID = "community_id"
	metaCreatorID   = "creator_id"
)

// StripeConfig holds configuration for the Stripe gateway.
type StripeConfig struct {
	APIKey         string        `env:"STRIPE_API_KEY,required"`
	WebhookSecret  string        `env:"STRIPE_WEBHOOK_SECRET,required"`
	RequestTimeout time.Duration `env:"STRIPE_REQUEST_TIMEOUT" envDefault:"15s"`
}

// StripeGateway implements Gateway and WebhookVerifier on top of the
// official Stripe SDK, using Connect accounts for creator payouts and
// Checkout Sessions for purchases.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a Stripe-backed gateway. The SDK client is built
// with a bounded HTTP timeout so no outbound call can hang a request.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	api := &client.API{}
	api.Init(cfg.APIKey, stripe.NewBackends(&http.Client{Timeout: timeout}))

	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// CreateAccount opens an Express connected account for a creator.
func (g *StripeGateway) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	params := &stripe.AccountParams{
		Params: stripe.Params{Context: ctx},
		Type:   stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	params.AddMetadata(metaCreatorID, req.CreatorID.String())

	acct, err := g.api.Accounts.New(params)
	if err != nil {
		return nil, wrapStripeErr("create account", err)
	}
	return mapStripeAccount(acct), nil
}

// GetAccount fetches the current capability state of a connected account.
func (g *StripeGateway) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	acct, err := g.api.Accounts.GetByID(accountID, &stripe.AccountParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, wrapStripeErr("get account", err)
	}
	return mapStripeAccount(acct), nil
}

// CreateAccountLink returns a single-use hosted onboarding URL.
func (g *StripeGateway) CreateAccountLink(ctx context.Context, req AccountLinkRequest) (*AccountLink, error) {
	link, err := g.api.AccountLinks.New(&stripe.AccountLinkParams{
		Params:     stripe.Params{Context: ctx},
		Account:    stripe.String(req.AccountID),
		RefreshURL: stripe.String(req.RefreshURL),
		ReturnURL:  stripe.String(req.ReturnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	})
	if err != nil {
		return nil, wrapStripeErr("create account link", err)
	}
	return &AccountLink{
		URL:       link.URL,
		ExpiresAt: time.Unix(link.ExpiresAt, 0),
	}, nil
}

// CreateCheckoutSession opens a subscription-mode hosted checkout with the
// funds routed to the creator's connected account. Internal identifiers are
// attached both to the session and to the subscription it will create, so
// every later webhook can be mapped back without a provider lookup.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	meta := map[string]string{
		metaBuyerID:     req.BuyerID.String(),
		metaCommunityID: req.CommunityID.String(),
		metaCreatorID:   req.CreatorID.String(),
	}

	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceRef),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
			TransferData: &stripe.CheckoutSessionSubscriptionDataTransferDataParams{
				Destination: stripe.String(req.ConnectedAccountID),
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeErr("create checkout session", err)
	}
	return &CheckoutSession{
		ID:        sess.ID,
		URL:       sess.URL,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

// VerifyAndParse authenticates the payload against the webhook secret and
// decodes it into a typed event variant. Signature failures are reported
// before any payload field is read.
func (g *StripeGateway) VerifyAndParse(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	meta := EventMeta{
		ID:        ev.ID,
		Type:      string(ev.Type),
		Timestamp: time.Unix(ev.Created, 0),
	}

	switch string(ev.Type) {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		out := CheckoutCompleted{
			EventMeta:   meta,
			SessionID:   cs.ID,
			AmountTotal: cs.AmountTotal,
			Currency:    string(cs.Currency),
			BuyerID:     metadataUUID(cs.Metadata, metaBuyerID),
			CommunityID: metadataUUID(cs.Metadata, metaCommunityID),
			CreatorID:   metadataUUID(cs.Metadata, metaCreatorID),
		}
		if cs.Subscription != nil {
			out.SubscriptionRef = cs.Subscription.ID
		}
		return out, nil

	case "customer.subscription.updated":
		sub, err := unmarshalSubscription(ev.Data.Raw)
		if err != nil {
			return nil, err
		}
		return SubscriptionUpdated{
			EventMeta:         meta,
			SubscriptionRef:   sub.ID,
			Status:            string(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:  time.Unix(sub.CurrentPeriodEnd, 0),
		}, nil

	case "customer.subscription.deleted":
		sub, err := unmarshalSubscription(ev.Data.Raw)
		if err != nil {
			return nil, err
		}
		return SubscriptionDeleted{
			EventMeta:       meta,
			SubscriptionRef: sub.ID,
		}, nil

	case "invoice.paid":
		inv, err := unmarshalInvoice(ev.Data.Raw)
		if err != nil {
			return nil, err
		}
		out := InvoicePaid{
			EventMeta:  meta,
			InvoiceRef: inv.ID,
			AmountPaid: inv.AmountPaid,
			Currency:   string(inv.Currency),
			PeriodEnd:  time.Unix(inv.PeriodEnd, 0),
		}
		if inv.Subscription != nil {
			out.SubscriptionRef = inv.Subscription.ID
		}
		return out, nil

	case "invoice.payment_failed":
		inv, err := unmarshalInvoice(ev.Data.Raw)
		if err != nil {
			return nil, err
		}
		out := InvoicePaymentFailed{
			EventMeta:  meta,
			InvoiceRef: inv.ID,
			AmountDue:  inv.AmountDue,
			Currency:   string(inv.Currency),
		}
		if inv.Subscription != nil {
			out.SubscriptionRef = inv.Subscription.ID
		}
		return out, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		return ChargeRefunded{
			EventMeta:      meta,
			ChargeRef:      ch.ID,
			CreatorID:      metadataUUID(ch.Metadata, metaCreatorID),
			AmountRefunded: ch.AmountRefunded,
			Currency:       string(ch.Currency),
		}, nil

	default:
		return Unrecognized{EventMeta: meta}, nil
	}
}

func unmarshalSubscription(raw json.RawMessage) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	return &sub, nil
}

func unmarshalInvoice(raw json.RawMessage) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	return &inv, nil
}

func mapStripeAccount(acct *stripe.Account) *Account {
	out := &Account{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if acct.Requirements != nil {
		out.DisabledReason = string(acct.Requirements.DisabledReason)
	}
	return out
}

// metadataUUID parses a UUID from provider metadata, returning uuid.Nil for
// absent or unparseable values. Handlers validate presence where it matters.
func metadataUUID(meta map[string]string, key string) uuid.UUID {
	id, err := uuid.Parse(meta[key])
	if err != nil {
		return uuid.Nil
	}
	return id
}

// wrapStripeErr classifies provider failures into retryable and permanent.
// Provider 5xx, rate limits, and transport errors are retryable; everything
// else is a caller mistake and is surfaced as-is.
func wrapStripeErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return errors.Join(ErrUnavailable, fmt.Errorf("stripe: %s: %w", op, err))
		}
		return fmt.Errorf("stripe: %s: %w", op, err)
	}
	// Transport-level failure, no HTTP response at all.
	return errors.Join(ErrUnavailable, fmt.Errorf("stripe: %s: %w", op, err))
}
