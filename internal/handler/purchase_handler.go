package handler

import (
	"net/http"

	"requisition-backend/internal/middleware"
	"requisition-backend/internal/model"
	"requisition-backend/internal/service"
	"requisition-backend/pkg/pagination"
	"requisition-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// PurchaseHandler serves purchase orders and the goods receipts booked against them.
type PurchaseHandler struct {
	purchases service.PurchaseService
	auth      *middleware.Auth
}

func NewPurchaseHandler(purchases service.PurchaseService, auth *middleware.Auth) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, auth: auth}
}

func (h *PurchaseHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.auth.RequirePermission(model.PermPurchasesRead)
	write := h.auth.RequirePermission(model.PermPurchasesWrite)

	orders := router.Group("/purchase-orders")
	{
		orders.GET("", read, h.ListOrders)
		orders.GET("/:id", read, h.GetOrder)
		orders.POST("", write, h.CreateOrder)
		orders.POST("/:id/cancel", write, h.CancelOrder)
		orders.POST("/:id/receipts", h.auth.RequirePermission(model.PermPurchasesReceive), h.ReceiveGoods)
	}

	receipts := router.Group("/goods-receipts")
	{
		receipts.GET("", read, h.ListReceipts)
		receipts.GET("/:id", read, h.GetReceipt)
	}
}

func purchaseQuery(c *gin.Context) (service.PurchaseQuery, pagination.Params) {
	p := pagination.Parse(c)
	return service.PurchaseQuery{
		StoreID: c.Query("store_id"),
		Status:  c.Query("status"),
		Search:  c.Query("search"),
		Page:    p.Page,
		Limit:   p.Limit,
	}, p
}

// ListOrders
// @Summary      List purchase orders
// @Tags         purchases
// @Produce      json
// @Security     BearerAuth
// @Param        store_id  query     string  false  "Store filter"
// @Param        status    query     string  false  "OPEN, PARTIALLY_RECEIVED, RECEIVED or CANCELLED"
// @Param        search    query     string  false  "Number or supplier fragment"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Page size (default 20)"
// @Success      200       {object}  response.Response{data=[]model.PurchaseOrder}
// @Router       /api/purchase-orders [get]
func (h *PurchaseHandler) ListOrders(c *gin.Context) {
	q, p := purchaseQuery(c)
	orders, total, err := h.purchases.ListOrders(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	paged(c, http.StatusOK, orders, p, total)
}

func (h *PurchaseHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.purchases.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// CreateOrder
// @Summary      Create purchase order
// @Tags         purchases
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreatePurchaseOrderRequest  true  "Purchase order"
// @Success      201      {object}  response.Response{data=model.PurchaseOrder}
// @Failure      400      {object}  response.Response
// @Router       /api/purchase-orders [post]
func (h *PurchaseHandler) CreateOrder(c *gin.Context) {
	var req service.CreatePurchaseOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.purchases.CreateOrder(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// CancelOrder only works while nothing has been received.
func (h *PurchaseHandler) CancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.purchases.CancelOrder(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// ReceiveGoods books a goods receipt note against the order
// @Summary      Receive goods
// @Description  Each line adds an IN movement to the order's store.
// @Tags         purchases
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                             true  "Purchase order ID"
// @Param        payload  body      service.CreateGoodsReceiptRequest  true  "Receipt"
// @Success      201      {object}  response.Response{data=service.GoodsReceiptResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-orders/{id}/receipts [post]
func (h *PurchaseHandler) ReceiveGoods(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.CreateGoodsReceiptRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.purchases.ReceiveGoods(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

func (h *PurchaseHandler) ListReceipts(c *gin.Context) {
	q, p := purchaseQuery(c)
	receipts, total, err := h.purchases.ListReceipts(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	paged(c, http.StatusOK, receipts, p, total)
}

func (h *PurchaseHandler) GetReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	receipt, err := h.purchases.GetReceipt(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}
