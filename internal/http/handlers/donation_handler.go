package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AmazingeventParis/Kooki/internal/dto"
	"github.com/AmazingeventParis/Kooki/internal/http/handlers/common"
	"github.com/AmazingeventParis/Kooki/internal/service"
)

type DonationHandler struct {
	svc *service.DonationService
}

func NewDonationHandler(svc *service.DonationService) *DonationHandler {
	return &DonationHandler{svc: svc}
}

// Create POST /fundraisers/:id/donations (public)
func (h *DonationHandler) Create(c *gin.Context) {
	fundraiserID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.svc.CreateCheckout(c.Request.Context(), service.CreateCheckoutInput{
		FundraiserID: fundraiserID,
		Amount:       req.Amount,
		TipAmount:    req.TipAmount,
		DonorName:    req.DonorName,
		DonorEmail:   req.DonorEmail,
		DonorMessage: req.DonorMessage,
		DonorAddress: req.DonorAddress,
		IsAnonymous:  req.IsAnonymous,
		WantsReceipt: req.WantsReceipt,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// List GET /fundraisers/:id/donations (public, masked)
func (h *DonationHandler) List(c *gin.Context) {
	fundraiserID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	donations, total, err := h.svc.ListByFundraiser(c.Request.Context(), fundraiserID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"donations": donations,
		"total":     total,
	})
}

// TipSuggestion GET /donations/tip-suggestion?amount=2500 (public)
func (h *DonationHandler) TipSuggestion(c *gin.Context) {
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil || amount < 0 {
		common.RespondBadRequest(c, "amount must be a non-negative integer in cents")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"amount":        amount,
		"suggested_tip": h.svc.TipSuggestion(amount),
	})
}
