package handler

import (
	"net/http"
	"time"

	"requisition-backend/internal/middleware"
	"requisition-backend/internal/model"
	"requisition-backend/internal/service"
	"requisition-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	auth              *middleware.Auth
	now               func() time.Time
}

func NewStatisticsHandler(statisticsService service.StatisticsService, auth *middleware.Auth) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, auth: auth, now: time.Now}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	dashboard := router.Group("/dashboard")
	{
		dashboard.GET("/summary", h.auth.RequirePermission(model.PermDashboardRead), h.GetStatistics)
	}
}

// @Summary      Get Dashboard Summary
// @Description  Request counts per status, review queues, low stock, open purchase orders and movement totals bounded by time
// @Tags         Statistics
// @Produce      json
// @Param        start_date query string false "Start Date (RFC3339 or YYYY-MM-DD), defaults to the first of the month"
// @Param        end_date   query string false "End Date (RFC3339 or YYYY-MM-DD), defaults to now"
// @Success      200 {object} response.Response{data=model.StatisticsResponse}
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      401 {object} response.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /api/dashboard/summary [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	start, err := queryTime(c, "start_date")
	if err != nil {
		writeError(c, err)
		return
	}
	end, err := queryTime(c, "end_date")
	if err != nil {
		writeError(c, err)
		return
	}

	// Default to current month if no dates are provided
	now := h.now()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	endDate := now
	if start != nil {
		startDate = *start
	}
	if end != nil {
		endDate = *end
	}

	stats, err := h.statisticsService.GetStatistics(c.Request.Context(), startDate, endDate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
