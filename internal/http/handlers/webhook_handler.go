package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v74"

	"github.com/AmazingeventParis/Kooki/internal/http/handlers/common"
	"github.com/AmazingeventParis/Kooki/internal/service"
)

// EventVerifier checks the webhook signature and parses the payload.
type EventVerifier interface {
	VerifyAndParse(rawBody []byte, signature string) (*stripe.Event, error)
}

type WebhookHandler struct {
	svc      *service.WebhookService
	verifier EventVerifier
}

func NewWebhookHandler(svc *service.WebhookService, verifier EventVerifier) *WebhookHandler {
	return &WebhookHandler{svc: svc, verifier: verifier}
}

// HandleStripe POST /webhooks/stripe
// The only non-200 outcomes are an unreadable body or a bad signature.
// Everything verified is acknowledged so the processor never piles up
// retries behind one poisoned event.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		common.RespondBadRequest(c, "unreadable request body")
		return
	}

	event, err := h.verifier.VerifyAndParse(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		common.RespondBadRequest(c, "webhook signature verification failed")
		return
	}

	h.svc.HandleEvent(c.Request.Context(), event)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
