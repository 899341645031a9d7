package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"requisition-backend/internal/middleware"
	"requisition-backend/internal/model"
	"requisition-backend/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler streams listings as XLSX downloads. Filters match the list endpoints.
type ExportHandler struct {
	exports service.ExportService
	auth    *middleware.Auth
}

func NewExportHandler(exports service.ExportService, auth *middleware.Auth) *ExportHandler {
	return &ExportHandler{exports: exports, auth: auth}
}

func (h *ExportHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/exports")
	group.Use(h.auth.RequirePermission(model.PermExportsRead))
	{
		group.GET("/stock.xlsx", h.Stock)
		group.GET("/requests.xlsx", h.Requests)
		group.GET("/movements.xlsx", h.Movements)
	}
}

// The workbook is rendered into memory first so a failure can still produce a JSON error.
func sendWorkbook(c *gin.Context, name string, render func(buf *bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		writeError(c, err)
		return
	}
	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Stock
// @Summary      Export stock balances
// @Tags         exports
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        store_id  query  string  false  "Store filter"
// @Param        low       query  bool    false  "Only rows at or below the reorder level"
// @Success      200       {file}  file
// @Router       /api/exports/stock.xlsx [get]
func (h *ExportHandler) Stock(c *gin.Context) {
	q, _ := stockQuery(c)
	sendWorkbook(c, "stock", func(buf *bytes.Buffer) error {
		return h.exports.ExportStock(c.Request.Context(), q, buf)
	})
}

// Requests
// @Summary      Export requests
// @Tags         exports
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        status  query  string  false  "Status filter"
// @Success      200     {file}  file
// @Router       /api/exports/requests.xlsx [get]
func (h *ExportHandler) Requests(c *gin.Context) {
	q, _, ok := requestQuery(c)
	if !ok {
		return
	}
	sendWorkbook(c, "requests", func(buf *bytes.Buffer) error {
		return h.exports.ExportRequests(c.Request.Context(), q, buf)
	})
}

// Movements
// @Summary      Export stock movements
// @Tags         exports
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        store_id  query  string  false  "Store filter"
// @Param        from      query  string  false  "From date"
// @Param        to        query  string  false  "To date"
// @Success      200       {file}  file
// @Router       /api/exports/movements.xlsx [get]
func (h *ExportHandler) Movements(c *gin.Context) {
	q, _, ok := movementQuery(c)
	if !ok {
		return
	}
	sendWorkbook(c, "movements", func(buf *bytes.Buffer) error {
		return h.exports.ExportMovements(c.Request.Context(), q, buf)
	})
}
