package handler

import (
	"net/http"
	"strconv"

	"requisition-backend/internal/middleware"
	"requisition-backend/internal/model"
	"requisition-backend/internal/service"
	"requisition-backend/pkg/pagination"
	"requisition-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type StockHandler struct {
	stock service.StockService
	auth  *middleware.Auth
}

func NewStockHandler(stock service.StockService, auth *middleware.Auth) *StockHandler {
	return &StockHandler{stock: stock, auth: auth}
}

func (h *StockHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/stock")
	read := h.auth.RequirePermission(model.PermStockRead)
	{
		group.GET("", read, h.ListStock)
		group.GET("/movements", read, h.ListMovements)
		group.GET("/reconciliation", read, h.Reconcile)
		group.POST("/adjustments", h.auth.RequirePermission(model.PermStockAdjust), h.Adjust)
	}
}

// ListStock returns balances per store and material
// @Summary      List stock balances
// @Tags         stock
// @Produce      json
// @Security     BearerAuth
// @Param        store_id     query     string  false  "Store filter"
// @Param        material_id  query     string  false  "Material filter"
// @Param        search       query     string  false  "Material code or name fragment"
// @Param        low          query     bool    false  "Only rows at or below the reorder level"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Page size (default 20)"
// @Success      200          {object}  response.Response{data=[]model.Stock}
// @Router       /api/stock [get]
func (h *StockHandler) ListStock(c *gin.Context) {
	q, p := stockQuery(c)
	rows, total, err := h.stock.ListStock(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	paged(c, http.StatusOK, rows, p, total)
}

func stockQuery(c *gin.Context) (service.StockQuery, pagination.Params) {
	p := pagination.Parse(c)
	low, _ := strconv.ParseBool(c.DefaultQuery("low", "false"))
	return service.StockQuery{
		StoreID:    c.Query("store_id"),
		MaterialID: c.Query("material_id"),
		Search:     c.Query("search"),
		LowOnly:    low,
		Page:       p.Page,
		Limit:      p.Limit,
	}, p
}

// ListMovements returns the ledger, newest first
// @Summary      List stock movements
// @Tags         stock
// @Produce      json
// @Security     BearerAuth
// @Param        store_id     query     string  false  "Store filter"
// @Param        material_id  query     string  false  "Material filter"
// @Param        type         query     string  false  "IN, OUT or ADJUSTMENT"
// @Param        source_type  query     string  false  "GRN, ISSUE or ADJUSTMENT"
// @Param        source_id    query     string  false  "Source document id"
// @Param        from         query     string  false  "From date"
// @Param        to           query     string  false  "To date"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Page size (default 20)"
// @Success      200          {object}  response.Response{data=[]model.StockMovement}
// @Failure      400          {object}  response.Response
// @Router       /api/stock/movements [get]
func (h *StockHandler) ListMovements(c *gin.Context) {
	q, p, ok := movementQuery(c)
	if !ok {
		return
	}
	rows, total, err := h.stock.ListMovements(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	paged(c, http.StatusOK, rows, p, total)
}

func movementQuery(c *gin.Context) (service.MovementQuery, pagination.Params, bool) {
	p := pagination.Parse(c)
	from, err := queryTime(c, "from")
	if err != nil {
		writeError(c, err)
		return service.MovementQuery{}, p, false
	}
	to, err := queryTime(c, "to")
	if err != nil {
		writeError(c, err)
		return service.MovementQuery{}, p, false
	}
	return service.MovementQuery{
		StoreID:    c.Query("store_id"),
		MaterialID: c.Query("material_id"),
		Type:       c.Query("type"),
		SourceType: c.Query("source_type"),
		SourceID:   c.Query("source_id"),
		From:       from,
		To:         to,
		Page:       p.Page,
		Limit:      p.Limit,
	}, p, true
}

// Reconcile compares each balance with the sum of its ledger
// @Summary      Stock reconciliation
// @Tags         stock
// @Produce      json
// @Security     BearerAuth
// @Param        store_id     query     string  false  "Store filter"
// @Param        material_id  query     string  false  "Material filter"
// @Success      200          {object}  response.Response{data=service.ReconciliationReport}
// @Router       /api/stock/reconciliation [get]
func (h *StockHandler) Reconcile(c *gin.Context) {
	report, err := h.stock.Reconcile(c.Request.Context(), c.Query("store_id"), c.Query("material_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// Adjust records a stock adjustment document and its ledger line
// @Summary      Adjust stock
// @Tags         stock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.AdjustStockRequest  true  "Adjustment"
// @Success      201      {object}  response.Response{data=service.AdjustmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/stock/adjustments [post]
func (h *StockHandler) Adjust(c *gin.Context) {
	var req service.AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.stock.Adjust(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}
