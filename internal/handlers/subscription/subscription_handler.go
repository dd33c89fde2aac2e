// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"errors"
	"net/http"
	"strconv"

	domain "finboard-service/internal/domain/subscription"
	"finboard-service/internal/middleware"
	xerrors "finboard-service/internal/pkg/errors"
	"finboard-service/internal/pkg/response"
	planservice "finboard-service/internal/service/plan"
	service "finboard-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// CreateSubscription subscribes the acting user to a plan. Once validation
// passes the call succeeds even when the payment link could not be
// obtained; the payment block is simply absent and the client re-requests
// a link later.
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req domain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "planId is required", err)
		return
	}

	sub, paymentInfo, err := h.subscriptionService.CreateSubscription(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, planservice.ErrPlanNotFound):
			response.Error(c, http.StatusNotFound, "plan not found", err)
		case errors.Is(err, planservice.ErrPlanInactive):
			response.Error(c, http.StatusBadRequest, "plan is not active", err)
		case errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "invalid request", err)
		case errors.Is(err, xerrors.ErrForbidden):
			response.Error(c, http.StatusForbidden, "plan is not available for your role", err)
		case errors.Is(err, xerrors.ErrConflict):
			response.Error(c, http.StatusConflict, "subscription creation conflicted, please retry", err)
		default:
			response.Error(c, http.StatusInternalServerError, "failed to create subscription", err)
		}
		return
	}

	data := gin.H{"subscription": sub}
	if paymentInfo != nil {
		data["payment"] = paymentInfo
	}

	response.Success(c, http.StatusCreated, "subscription created successfully", data)
}

// GetCurrentSubscription returns the user's most recent subscription, or
// a null subscription when the user never subscribed.
func (h *SubscriptionHandler) GetCurrentSubscription(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	sub, err := h.subscriptionService.GetCurrentSubscription(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to get subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", gin.H{"subscription": sub})
}

// GetHistory returns the user's paginated subscription history.
func (h *SubscriptionHandler) GetHistory(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	history, err := h.subscriptionService.GetHistory(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to get subscription history", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription history retrieved", history)
}

// CancelSubscription cancels the user's active subscription.
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	sub, err := h.subscriptionService.CancelSubscription(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSubscription) {
			response.Error(c, http.StatusNotFound, "no active subscription found", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled successfully", gin.H{"subscription": sub})
}
