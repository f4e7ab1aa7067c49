package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/givingdesk/internal/checkout/domain"
)

const (
	maxWebhookBodyBytes = 1 << 20
	stripeSignatureHdr  = "Stripe-Signature"
)

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req checkoutdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.checkoutSvc.CreateCheckoutSession(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req checkoutdomain.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.checkoutSvc.CreateSubscription(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.checkoutSvc.GetSubscription(c.Request.Context(), c.Query("subscriptionId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) UpdateSubscription(c *gin.Context) {
	var req checkoutdomain.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sub, err := s.checkoutSvc.UpdateSubscription(c.Request.Context(), req.SubscriptionID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	immediately, err := parseOptionalBool(c.Query("immediately"))
	if err != nil {
		AbortWithError(c, newValidationError("immediately", "invalid_immediately", "invalid immediately"))
		return
	}

	sub, err := s.checkoutSvc.CancelSubscription(c.Request.Context(), c.Query("subscriptionId"), immediately != nil && *immediately)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// HandleStripeWebhook verifies the signed payload and dispatches it. Handler
// failures answer 500 so Stripe redelivers the event.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, newValidationError("body", "too_large", "webhook payload is too large"))
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.webhookSvc.Verify(payload, strings.TrimSpace(c.GetHeader(stripeSignatureHdr)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("stripe_event_type", string(event.Type))

	if err := s.webhookSvc.Dispatch(c.Request.Context(), event); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %s: %v", ErrInternal, event.Type, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
