// internal/handlers/plan/plan_handler.go
package plan

import (
	"errors"
	"net/http"
	"strconv"

	"finboard-service/internal/pkg/response"
	service "finboard-service/internal/service/plan"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	planService *service.PlanService
}

func NewPlanHandler(planService *service.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// ListPlans retrieves the subscribable plans
func (h *PlanHandler) ListPlans(c *gin.Context) {
	plans, err := h.planService.ListActivePlans(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list plans", err)
		return
	}

	response.Success(c, http.StatusOK, "plans retrieved", gin.H{"plans": plans})
}

// GetPlan retrieves a single active plan by ID
func (h *PlanHandler) GetPlan(c *gin.Context) {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan ID", err)
		return
	}

	p, err := h.planService.GetActivePlan(c.Request.Context(), planID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPlanNotFound):
			response.Error(c, http.StatusNotFound, "plan not found", err)
		case errors.Is(err, service.ErrPlanInactive):
			response.Error(c, http.StatusBadRequest, "plan is not active", err)
		default:
			response.Error(c, http.StatusInternalServerError, "failed to get plan", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "plan retrieved", gin.H{"plan": p})
}
