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

type SupplierHandler struct {
	suppliers service.SupplierService
	auth      *middleware.Auth
}

func NewSupplierHandler(suppliers service.SupplierService, auth *middleware.Auth) *SupplierHandler {
	return &SupplierHandler{suppliers: suppliers, auth: auth}
}

func (h *SupplierHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.auth.RequirePermission(model.PermPurchasesRead)
	write := h.auth.RequirePermission(model.PermPurchasesWrite)

	suppliers := router.Group("/suppliers")
	{
		suppliers.GET("", read, h.ListSuppliers)
		suppliers.GET("/:id", read, h.GetSupplier)
		suppliers.POST("", write, h.CreateSupplier)
		suppliers.PUT("/:id", write, h.UpdateSupplier)
		suppliers.DELETE("/:id", write, h.DeleteSupplier)
	}
}

// ListSuppliers returns paginated suppliers
// @Summary      List suppliers
// @Tags         suppliers
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default: 1)"
// @Param        limit   query     int     false  "Items per page (default: 20)"
// @Param        search  query     string  false  "Search by name, contact, phone, email"
// @Param        active  query     bool    false  "Only active suppliers"
// @Success      200     {object}  response.Response{data=[]model.Supplier}
// @Router       /api/suppliers [get]
func (h *SupplierHandler) ListSuppliers(c *gin.Context) {
	p := pagination.Parse(c)
	activeOnly := c.Query("active") == "true"

	suppliers, total, err := h.suppliers.ListSuppliers(c.Request.Context(), c.Query("search"), activeOnly, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	paged(c, http.StatusOK, suppliers, p, total)
}

func (h *SupplierHandler) GetSupplier(c *gin.Context) {
	supplier, err := h.suppliers.GetSupplier(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, supplier))
}

// CreateSupplier
// @Summary      Create supplier
// @Tags         suppliers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateSupplierRequest  true  "Supplier payload"
// @Success      201  {object}  response.Response{data=model.Supplier}
// @Failure      400  {object}  response.Response
// @Router       /api/suppliers [post]
func (h *SupplierHandler) CreateSupplier(c *gin.Context) {
	var req service.CreateSupplierRequest
	if !bindJSON(c, &req) {
		return
	}
	supplier, err := h.suppliers.CreateSupplier(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, supplier))
}

// UpdateSupplier
// @Summary      Update supplier
// @Description  Partial update. Sending addresses replaces the whole address list.
// @Tags         suppliers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                         true  "Supplier ID"
// @Param        payload  body  service.UpdateSupplierRequest  true  "Update payload"
// @Success      200  {object}  response.Response{data=model.Supplier}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/suppliers/{id} [put]
func (h *SupplierHandler) UpdateSupplier(c *gin.Context) {
	var req service.UpdateSupplierRequest
	if !bindJSON(c, &req) {
		return
	}
	supplier, err := h.suppliers.UpdateSupplier(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, supplier))
}

// DeleteSupplier
// @Summary      Delete supplier (soft delete)
// @Tags         suppliers
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Supplier ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/suppliers/{id} [delete]
func (h *SupplierHandler) DeleteSupplier(c *gin.Context) {
	if err := h.suppliers.DeleteSupplier(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Supplier deleted successfully"))
}
