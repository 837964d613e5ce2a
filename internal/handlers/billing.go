package handlers

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/commeet/backend/internal/config"
	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/middleware"
	"github.com/commeet/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"
)

type BillingHandler struct {
	cfg *config.Config
}

func NewBillingHandler(cfg *config.Config) *BillingHandler {
	stripe.Key = cfg.StripeSecretKey
	return &BillingHandler{cfg: cfg}
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// priceForPlan maps a paid plan name to its Stripe price ID
func (h *BillingHandler) priceForPlan(plan string) string {
	switch models.Plan(plan) {
	case models.PlanPro:
		return h.cfg.StripeProPriceID
	case models.PlanBuilder:
		return h.cfg.StripeBuilderPriceID
	}
	return ""
}

// planForPrice is the inverse mapping, used by the webhook
func (h *BillingHandler) planForPrice(priceID string) models.Plan {
	switch priceID {
	case h.cfg.StripeProPriceID:
		return models.PlanPro
	case h.cfg.StripeBuilderPriceID:
		return models.PlanBuilder
	}
	return ""
}

// ensureCustomer finds or creates a Stripe customer for the user and
// persists the ID on first creation.
func (h *BillingHandler) ensureCustomer(user *models.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(uint64(user.ID), 10),
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if err := database.DB.Model(user).Update("stripe_customer_id", cust.ID).Error; err != nil {
		return "", err
	}
	user.StripeCustomerID = cust.ID

	return cust.ID, nil
}

// CreateCheckout starts a Stripe Checkout session for upgrading to a paid plan
func (h *BillingHandler) CreateCheckout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	priceID := h.priceForPlan(req.Plan)
	if priceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Unknown plan"})
	}

	if string(user.Plan) == req.Plan {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Already on this plan"})
	}

	customerID, err := h.ensureCustomer(user)
	if err != nil {
		log.Printf("stripe customer setup failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to prepare billing"})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(h.cfg.FrontendURL + "/settings?billing=success"),
		CancelURL:  stripe.String(h.cfg.FrontendURL + "/settings?billing=cancelled"),
	}

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to create checkout session"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"url": sess.URL},
	})
}

// CreatePortal creates a Stripe customer portal session for managing the subscription
func (h *BillingHandler) CreatePortal(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	if user.StripeCustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "No billing account. Subscribe first."})
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(user.StripeCustomerID),
		ReturnURL: stripe.String(h.cfg.FrontendURL + "/settings"),
	}

	sess, err := portal.New(params)
	if err != nil {
		log.Printf("stripe portal session failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to create portal session"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"url": sess.URL},
	})
}

// Webhook handles Stripe subscription lifecycle events. It is mounted
// outside the auth middleware; signature verification is the auth.
func (h *BillingHandler) Webhook(c *fiber.Ctx) error {
	if h.cfg.StripeWebhookSecret == "" {
		log.Printf("stripe webhook secret not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Webhook not configured"})
	}

	event, err := webhook.ConstructEventWithOptions(
		c.Body(),
		c.Get("Stripe-Signature"),
		h.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Signature verification failed"})
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("stripe session unmarshal failed: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid payload"})
		}
		// The plan is resolved from the subscription events that follow;
		// nothing to do here beyond acknowledging receipt.

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid payload"})
		}
		if sub.Customer == nil || len(sub.Items.Data) == 0 {
			break
		}

		plan := h.planForPrice(sub.Items.Data[0].Price.ID)
		if plan == "" {
			log.Printf("stripe subscription with unknown price %s", sub.Items.Data[0].Price.ID)
			break
		}
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			plan = models.PlanFree
		}

		if err := h.setPlanByCustomer(sub.Customer.ID, plan); err != nil {
			log.Printf("stripe plan update failed customer=%s: %v", sub.Customer.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to update plan"})
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid payload"})
		}
		if sub.Customer == nil {
			break
		}
		if err := h.setPlanByCustomer(sub.Customer.ID, models.PlanFree); err != nil {
			log.Printf("stripe plan downgrade failed customer=%s: %v", sub.Customer.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to update plan"})
		}
	}

	return c.JSON(fiber.Map{"success": true})
}

func (h *BillingHandler) setPlanByCustomer(customerID string, plan models.Plan) error {
	result := database.DB.Model(&models.User{}).
		Where("stripe_customer_id = ?", customerID).
		Update("plan", plan)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("stripe webhook for unknown customer %s", customerID)
	}
	return nil
}
