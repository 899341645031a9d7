package handler

import (
	"net/http"

	"requisition-backend/internal/middleware"
	"requisition-backend/internal/model"
	"requisition-backend/internal/service"
	"requisition-backend/pkg/apperror"
	"requisition-backend/pkg/pagination"
	"requisition-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// maxImportSize caps the material spreadsheet upload.
const maxImportSize = 10 << 20

// CatalogHandler serves sites, stores, categories, units and materials.
type CatalogHandler struct {
	catalog service.CatalogService
	auth    *middleware.Auth
}

func NewCatalogHandler(catalog service.CatalogService, auth *middleware.Auth) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, auth: auth}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.auth.RequirePermission(model.PermCatalogRead)
	write := h.auth.RequirePermission(model.PermCatalogWrite)

	sites := router.Group("/sites")
	{
		sites.GET("", read, h.ListSites)
		sites.GET("/:id", read, h.GetSite)
		sites.POST("", write, h.CreateSite)
		sites.PUT("/:id", write, h.UpdateSite)
		sites.DELETE("/:id", write, h.DeleteSite)
	}

	stores := router.Group("/stores")
	{
		stores.GET("", read, h.ListStores)
		stores.GET("/:id", read, h.GetStore)
		stores.POST("", write, h.CreateStore)
		stores.PUT("/:id", write, h.UpdateStore)
		stores.DELETE("/:id", write, h.DeleteStore)
	}

	categories := router.Group("/categories")
	{
		categories.GET("", read, h.ListCategories)
		categories.POST("", write, h.CreateCategory)
		categories.PUT("/:id", write, h.UpdateCategory)
		categories.DELETE("/:id", write, h.DeleteCategory)
	}

	units := router.Group("/units")
	{
		units.GET("", read, h.ListUnits)
		units.POST("", write, h.CreateUnit)
		units.DELETE("/:id", write, h.DeleteUnit)
	}

	materials := router.Group("/materials")
	{
		materials.GET("", read, h.ListMaterials)
		materials.GET("/:id", read, h.GetMaterial)
		materials.POST("", write, h.CreateMaterial)
		materials.POST("/import", write, h.ImportMaterials)
		materials.PUT("/:id", write, h.UpdateMaterial)
		materials.DELETE("/:id", write, h.DeleteMaterial)
	}
}

// --- Sites ---

// ListSites
// @Summary      List sites
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Code or name fragment"
// @Success      200     {object}  response.Response{data=[]model.Site}
// @Router       /api/sites [get]
func (h *CatalogHandler) ListSites(c *gin.Context) {
	sites, err := h.catalog.ListSites(c.Request.Context(), c.Query("search"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sites))
}

func (h *CatalogHandler) GetSite(c *gin.Context) {
	site, err := h.catalog.GetSite(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, site))
}

// CreateSite
// @Summary      Create site
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SiteRequest  true  "Site"
// @Success      201      {object}  response.Response{data=model.Site}
// @Failure      409      {object}  response.Response
// @Router       /api/sites [post]
func (h *CatalogHandler) CreateSite(c *gin.Context) {
	var req service.SiteRequest
	if !bindJSON(c, &req) {
		return
	}
	site, err := h.catalog.CreateSite(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, site))
}

func (h *CatalogHandler) UpdateSite(c *gin.Context) {
	var req service.SiteRequest
	if !bindJSON(c, &req) {
		return
	}
	site, err := h.catalog.UpdateSite(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, site))
}

func (h *CatalogHandler) DeleteSite(c *gin.Context) {
	if err := h.catalog.DeleteSite(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Site deleted successfully"))
}

// --- Stores ---

// ListStores
// @Summary      List stores
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Param        site_id  query     string  false  "Only stores of this site"
// @Success      200      {object}  response.Response{data=[]model.Store}
// @Router       /api/stores [get]
func (h *CatalogHandler) ListStores(c *gin.Context) {
	stores, err := h.catalog.ListStores(c.Request.Context(), c.Query("site_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stores))
}

func (h *CatalogHandler) GetStore(c *gin.Context) {
	store, err := h.catalog.GetStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, store))
}

func (h *CatalogHandler) CreateStore(c *gin.Context) {
	var req service.StoreRequest
	if !bindJSON(c, &req) {
		return
	}
	store, err := h.catalog.CreateStore(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, store))
}

func (h *CatalogHandler) UpdateStore(c *gin.Context) {
	var req service.StoreRequest
	if !bindJSON(c, &req) {
		return
	}
	store, err := h.catalog.UpdateStore(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, store))
}

func (h *CatalogHandler) DeleteStore(c *gin.Context) {
	if err := h.catalog.DeleteStore(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Store deleted successfully"))
}

// --- Categories & units ---

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, categories))
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req service.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.catalog.CreateCategory(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, category))
}

func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	var req service.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.catalog.UpdateCategory(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, category))
}

func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	if err := h.catalog.DeleteCategory(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Category deleted successfully"))
}

func (h *CatalogHandler) ListUnits(c *gin.Context) {
	units, err := h.catalog.ListUnits(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, units))
}

func (h *CatalogHandler) CreateUnit(c *gin.Context) {
	var req service.UnitRequest
	if !bindJSON(c, &req) {
		return
	}
	unit, err := h.catalog.CreateUnit(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, unit))
}

func (h *CatalogHandler) DeleteUnit(c *gin.Context) {
	if err := h.catalog.DeleteUnit(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Unit deleted successfully"))
}

// --- Materials ---

// ListMaterials
// @Summary      List materials
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Param        search       query     string  false  "Code or name fragment"
// @Param        category_id  query     string  false  "Category filter"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Page size (default 20)"
// @Success      200          {object}  response.Response{data=[]model.Material}
// @Router       /api/materials [get]
func (h *CatalogHandler) ListMaterials(c *gin.Context) {
	p := pagination.Parse(c)
	materials, total, err := h.catalog.ListMaterials(c.Request.Context(), c.Query("search"), c.Query("category_id"), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	paged(c, http.StatusOK, materials, p, total)
}

func (h *CatalogHandler) GetMaterial(c *gin.Context) {
	material, err := h.catalog.GetMaterial(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, material))
}

func (h *CatalogHandler) CreateMaterial(c *gin.Context) {
	var req service.MaterialRequest
	if !bindJSON(c, &req) {
		return
	}
	material, err := h.catalog.CreateMaterial(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, material))
}

func (h *CatalogHandler) UpdateMaterial(c *gin.Context) {
	var req service.MaterialRequest
	if !bindJSON(c, &req) {
		return
	}
	material, err := h.catalog.UpdateMaterial(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, material))
}

func (h *CatalogHandler) DeleteMaterial(c *gin.Context) {
	if err := h.catalog.DeleteMaterial(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Material deleted successfully"))
}

// ImportMaterials upserts materials from an XLSX sheet
// @Summary      Import materials
// @Description  Columns: code, name, category, unit, reorder level, description. Rows are upserted by code; invalid rows are reported and skipped.
// @Tags         catalog
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "XLSX workbook"
// @Success      200   {object}  response.Response{data=service.ImportResult}
// @Failure      400   {object}  response.Response
// @Router       /api/materials/import [post]
func (h *CatalogHandler) ImportMaterials(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, apperror.Validation("multipart field 'file' is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, apperror.Validationf("unable to open upload: %v", err))
		return
	}
	defer f.Close()

	result, err := h.catalog.ImportMaterials(c.Request.Context(), currentUser(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
