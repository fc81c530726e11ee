package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AmazingeventParis/Kooki/internal/dto"
	"github.com/AmazingeventParis/Kooki/internal/http/handlers/common"
	"github.com/AmazingeventParis/Kooki/internal/plans"
	"github.com/AmazingeventParis/Kooki/internal/service"
)

type FundraiserHandler struct {
	svc *service.FundraiserService
}

func NewFundraiserHandler(svc *service.FundraiserService) *FundraiserHandler {
	return &FundraiserHandler{svc: svc}
}

// ListPlans GET /plans
func (h *FundraiserHandler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, plans.All())
}

// Create POST /fundraisers
func (h *FundraiserHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateFundraiserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	f, err := h.svc.Create(c.Request.Context(), userID, service.CreateFundraiserInput{
		Title:         req.Title,
		Description:   req.Description,
		PlanCode:      req.PlanCode,
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// GetBySlug GET /fundraisers/slug/:slug (public)
func (h *FundraiserHandler) GetBySlug(c *gin.Context) {
	f, err := h.svc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// Get GET /fundraisers/:id (owner)
func (h *FundraiserHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	f, err := h.svc.GetOwned(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// List GET /fundraisers (owner)
func (h *FundraiserHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	fundraisers, err := h.svc.ListByOwner(c.Request.Context(), userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, fundraisers)
}

// PlanCheckout POST /fundraisers/:id/plan-checkout
func (h *FundraiserHandler) PlanCheckout(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.svc.PlanCheckout(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Pause POST /fundraisers/:id/pause
func (h *FundraiserHandler) Pause(c *gin.Context) {
	h.transition(c, h.svc.Pause, "fundraiser paused")
}

// Resume POST /fundraisers/:id/resume
func (h *FundraiserHandler) Resume(c *gin.Context) {
	h.transition(c, h.svc.Resume, "fundraiser resumed")
}

// Close POST /fundraisers/:id/close
func (h *FundraiserHandler) Close(c *gin.Context) {
	h.transition(c, h.svc.Close, "fundraiser closed")
}

func (h *FundraiserHandler) transition(c *gin.Context, fn func(ctx context.Context, ownerID, fundraiserID uuid.UUID) error, message string) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := fn(c.Request.Context(), userID, id); err != nil {
		_ = c.Error(err)
		return
	}
	common.RespondSuccess(c, http.StatusOK, message, nil)
}
