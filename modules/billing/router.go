package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/communitykit/pkg/checkout"
	"github.com/dmitrymomot/communitykit/pkg/connect"
	"github.com/dmitrymomot/communitykit/pkg/gateway"
	"github.com/dmitrymomot/communitykit/pkg/httpserver"
	"github.com/dmitrymomot/communitykit/pkg/ledger"
	"github.com/dmitrymomot/communitykit/pkg/logger"
	"github.com/dmitrymomot/communitykit/pkg/webhook"
)

// maxWebhookBody bounds the raw payload read; Stripe events stay well under
// this.
const maxWebhookBody = 1 << 20

// CurrentUser resolves the authenticated user for a request. Supplied by the
// host application's auth middleware.
type CurrentUser func(r *http.Request) (uuid.UUID, bool)

// RouterOptions configures the billing module router. Processor and
// CurrentUser are required; handlers for the other services are only mounted
// when the service is provided.
type RouterOptions struct {
	Processor   *webhook.Processor
	Checkout    *checkout.Factory
	Connect     *connect.Manager
	Earnings    *ledger.Ledger
	CurrentUser CurrentUser
	Log         *slog.Logger

	// Healthchecks are dependency probes (pg.Healthcheck, redis.Healthcheck)
	// exposed on GET /health as a readiness endpoint.
	Healthchecks []func(context.Context) error
}

// Router creates the billing module router.
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billing.Router(billing.RouterOptions{
//	    Processor:   processor,
//	    Checkout:    factory,
//	    Connect:     accounts,
//	    Earnings:    earnings,
//	    CurrentUser: auth.UserFromRequest,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Processor == nil {
		panic("billing: webhook processor is required")
	}
	if opts.CurrentUser == nil {
		panic("billing: current user resolver is required")
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	s := &server{opts: opts}

	r := chi.NewRouter()
	r.Get("/health", httpserver.HealthCheckHandler(context.Background(), opts.Log, opts.Healthchecks...))
	r.Post("/webhooks/payments", s.handleWebhook)
	if opts.Checkout != nil {
		r.Post("/checkout", s.handleCreateCheckout)
	}
	if opts.Connect != nil {
		r.Route("/connect", func(cr chi.Router) {
			cr.Post("/accounts", s.handleCreateAccount)
			cr.Post("/accounts/refresh", s.handleRefreshAccount)
			cr.Get("/onboarding-link", s.handleOnboardingLink)
			if opts.Earnings != nil {
				cr.Get("/earnings", s.handleEarningsSummary)
			}
		})
	}
	return r
}

type server struct {
	opts RouterOptions
}

// handleWebhook receives one signed gateway delivery. Status mapping drives
// the gateway's redelivery: 2xx stops it, anything else schedules a retry.
func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_payload")
		return
	}

	result, err := s.opts.Processor.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"result": string(result)})
	case errors.Is(err, gateway.ErrInvalidSignature), errors.Is(err, gateway.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "invalid_signature")
	case errors.Is(err, webhook.ErrEventInFlight):
		// A concurrent delivery holds the event; the retry will find the
		// settled result.
		writeError(w, http.StatusConflict, "event_in_flight")
	default:
		s.opts.Log.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "processing_failed")
	}
}

type createCheckoutRequest struct {
	CommunityID uuid.UUID `json:"community_id"`
	PriceRef    string    `json:"price_ref"`
	Email       string    `json:"email,omitempty"`
}

type createCheckoutResponse struct {
	CheckoutURL string    `json:"checkout_url"`
	SessionID   uuid.UUID `json:"session_id"`
}

func (s *server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := s.opts.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CommunityID == uuid.Nil || req.PriceRef == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.opts.Checkout.CreateCheckout(r.Context(), buyerID, req.CommunityID, req.PriceRef, checkout.Options{
		Email: req.Email,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, createCheckoutResponse{
			CheckoutURL: result.URL,
			SessionID:   result.SessionID,
		})
	case errors.Is(err, checkout.ErrAlreadySubscribed):
		writeError(w, http.StatusConflict, "already_subscribed")
	case errors.Is(err, checkout.ErrAccountNotActive):
		writeError(w, http.StatusUnprocessableEntity, "account_not_active")
	case errors.Is(err, checkout.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "gateway_unavailable")
	default:
		s.opts.Log.ErrorContext(r.Context(), "checkout creation failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

type createAccountRequest struct {
	Email string `json:"email"`
}

type accountResponse struct {
	Status         connect.Status `json:"status"`
	ChargesEnabled bool           `json:"charges_enabled"`
	PayoutsEnabled bool           `json:"payouts_enabled"`
}

func (s *server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := s.opts.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	account, err := s.opts.Connect.CreateAccount(r.Context(), creatorID, req.Email)
	if err != nil {
		s.writeConnectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Status:         account.Status,
		ChargesEnabled: account.ChargesEnabled,
		PayoutsEnabled: account.PayoutsEnabled,
	})
}

func (s *server) handleRefreshAccount(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := s.opts.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := s.opts.Connect.RefreshStatus(r.Context(), creatorID)
	if err != nil {
		s.writeConnectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Status:         account.Status,
		ChargesEnabled: account.ChargesEnabled,
		PayoutsEnabled: account.PayoutsEnabled,
	})
}

func (s *server) handleOnboardingLink(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := s.opts.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	link, err := s.opts.Connect.OnboardingLink(r.Context(), creatorID)
	if err != nil {
		s.writeConnectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":        link.URL,
		"expires_at": link.ExpiresAt,
	})
}

func (s *server) handleEarningsSummary(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := s.opts.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := time.Now().UTC()
	from, err := queryTime(r.URL.Query(), "from", now.AddDate(0, -1, 0))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}
	to, err := queryTime(r.URL.Query(), "to", now)
	if err != nil || !from.Before(to) {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	totals, err := s.opts.Earnings.Summary(r.Context(), creatorID, from, to)
	if err != nil {
		s.opts.Log.ErrorContext(r.Context(), "earnings summary failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if totals == nil {
		totals = []ledger.Total{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":   from,
		"to":     to,
		"totals": totals,
	})
}

func (s *server) writeConnectError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, connect.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account_not_found")
	case errors.Is(err, connect.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "gateway_unavailable")
	default:
		s.opts.Log.ErrorContext(r.Context(), "connect operation failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func queryTime(values url.Values, key string, fallback time.Time) (time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
