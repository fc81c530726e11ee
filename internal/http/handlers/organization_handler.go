package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AmazingeventParis/Kooki/internal/dto"
	"github.com/AmazingeventParis/Kooki/internal/http/handlers/common"
	"github.com/AmazingeventParis/Kooki/internal/service"
)

type OrganizationHandler struct {
	svc      *service.OrganizationService
	receipts *service.ReceiptService
}

func NewOrganizationHandler(svc *service.OrganizationService, receipts *service.ReceiptService) *OrganizationHandler {
	return &OrganizationHandler{svc: svc, receipts: receipts}
}

// Create POST /organizations
func (h *OrganizationHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	org, err := h.svc.Create(c.Request.Context(), userID, service.CreateOrganizationInput{
		LegalName:     req.LegalName,
		Email:         req.Email,
		Siret:         req.Siret,
		IsTaxEligible: req.IsTaxEligible,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

// Mine GET /organizations/me
func (h *OrganizationHandler) Mine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	org, err := h.svc.GetByOwner(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// Onboard POST /organizations/me/onboard
func (h *OrganizationHandler) Onboard(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	link, err := h.svc.Onboard(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"onboarding_url": link})
}

// PayoutStatus GET /organizations/me/payout-status
func (h *OrganizationHandler) PayoutStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	status, err := h.svc.PayoutStatus(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListReceipts GET /organizations/:id/receipts
func (h *OrganizationHandler) ListReceipts(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orgID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	receipts, err := h.receipts.ListForOrganization(c.Request.Context(), userID, orgID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, receipts)
}
