// Package billing integrates Stripe subscription checkout and webhooks.
package billing

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/wanderbite/wanderbite/internal/api/middleware"
	"github.com/wanderbite/wanderbite/internal/config"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// ProfileRepository interface for subscription state updates.
type ProfileRepository interface {
	SetSubscriptionActive(userID, customerID string, periodEnd *time.Time) error
	SetSubscriptionCanceledByCustomer(customerID string) error
}

// Handler handles billing API requests.
type Handler struct {
	profileRepo   ProfileRepository
	webhookSecret string
	priceID       string
	baseURL       string
	log           *logger.Logger
}

// NewHandler creates a new billing handler and sets the Stripe API key.
func NewHandler(profileRepo *repository.ProfileRepository, cfg *config.BillingConfig, baseURL string, log *logger.Logger) *Handler {
	stripe.Key = cfg.StripeSecretKey
	return NewHandlerWithInterfaces(profileRepo, cfg.WebhookSecret, cfg.PriceID, baseURL, log)
}

// NewHandlerWithInterfaces creates a new billing handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(profileRepo ProfileRepository, webhookSecret, priceID, baseURL string, log *logger.Logger) *Handler {
	return &Handler{
		profileRepo:   profileRepo,
		webhookSecret: webhookSecret,
		priceID:       priceID,
		baseURL:       baseURL,
		log:           log,
	}
}

// CreateCheckoutSession starts a Stripe subscription checkout for the
// authenticated user. The user ID rides along as the client reference so the
// completion webhook can attribute the subscription.
// POST /api/v1/billing/checkout.
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	userID := middleware.UserID(c)

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(h.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(h.baseURL + "/subscribe/success"),
		CancelURL:         stripe.String(h.baseURL + "/subscribe/cancel"),
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to create checkout session")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to start checkout")
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkout_url": sess.URL})
}

// Webhook receives Stripe events. The signature rules out forged payloads;
// unhandled event types are acknowledged so Stripe stops retrying them.
// POST /api/v1/billing/webhook.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 65536))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Failed to read payload")
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		h.log.Warn().Err(err).Msg("Rejected webhook with bad signature")
		h.errorResponse(c, http.StatusBadRequest, "Invalid signature")
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(c, event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(c, event)
	default:
		h.log.Debug().Str("type", string(event.Type)).Msg("Ignoring webhook event")
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func (h *Handler) handleCheckoutCompleted(c *gin.Context, event stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Malformed event payload")
		return
	}
	if sess.ClientReferenceID == "" || sess.Customer == nil {
		h.log.Warn().Str("event_id", event.ID).Msg("Checkout event missing user or customer reference")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var periodEnd *time.Time
	if sess.Subscription != nil && sess.Subscription.CurrentPeriodEnd > 0 {
		t := time.Unix(sess.Subscription.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	if err := h.profileRepo.SetSubscriptionActive(sess.ClientReferenceID, sess.Customer.ID, periodEnd); err != nil {
		h.log.Error().Err(err).Str("user_id", sess.ClientReferenceID).Msg("Failed to activate subscription")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to process event")
		return
	}

	h.log.Info().
		Str("user_id", sess.ClientReferenceID).
		Str("customer_id", sess.Customer.ID).
		Msg("Subscription activated")
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) handleSubscriptionDeleted(c *gin.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Malformed event payload")
		return
	}
	if sub.Customer == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.profileRepo.SetSubscriptionCanceledByCustomer(sub.Customer.ID); err != nil {
		h.log.Error().Err(err).Str("customer_id", sub.Customer.ID).Msg("Failed to cancel subscription")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to process event")
		return
	}

	h.log.Info().Str("customer_id", sub.Customer.ID).Msg("Subscription canceled")
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
