package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"requisition-backend/internal/middleware"
	"requisition-backend/internal/model"
	"requisition-backend/internal/service"
	"requisition-backend/pkg/pagination"
	"requisition-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestHandler exposes the requisition workflow: drafting, reviews, issuance and receipt.
type RequestHandler struct {
	requests service.RequestService
	auth     *middleware.Auth
}

func NewRequestHandler(requests service.RequestService, auth *middleware.Auth) *RequestHandler {
	return &RequestHandler{requests: requests, auth: auth}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.auth.RequirePermission(model.PermRequestsRead)
	create := h.auth.RequirePermission(model.PermRequestsCreate)
	issue := h.auth.RequirePermission(model.PermRequestsIssue)

	requests := router.Group("/requests")
	{
		requests.GET("", read, h.List)
		requests.GET("/:id", read, h.Get)
		requests.GET("/:id/issues", read, h.ListIssues)

		requests.POST("", create, h.Create)
		requests.PUT("/:id", create, h.Update)
		requests.POST("/:id/submit", create, h.Submit)

		requests.POST("/:id/start-review", h.auth.RequirePermission(model.PermRequestsReviewDSE), h.StartReview)
		// the level in the body decides which of the two the service insists on
		requests.POST("/:id/reviews", h.auth.RequireAnyPermission(model.PermRequestsReviewDSE, model.PermRequestsReviewPadiri), h.Review)

		requests.POST("/:id/open-issue", issue, h.OpenIssue)
		requests.POST("/:id/issues", issue, h.Issue)
		requests.POST("/:id/receive", h.auth.RequirePermission(model.PermRequestsReceive), h.Receive)
		requests.POST("/:id/close", h.auth.RequirePermission(model.PermRequestsClose), h.Close)
	}

	router.POST("/request-items/:id/issue", issue, h.IssueItem)
}

// List returns one page of requests
// @Summary      List requests
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status        query     string  false  "Status filter"
// @Param        site_id       query     string  false  "Site filter"
// @Param        store_id      query     string  false  "Store filter"
// @Param        requested_by  query     string  false  "Requester filter"
// @Param        search        query     string  false  "Code or purpose fragment"
// @Param        from          query     string  false  "Created at or after (RFC3339 or YYYY-MM-DD)"
// @Param        to            query     string  false  "Created before (RFC3339 or YYYY-MM-DD)"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Page size (default 20)"
// @Success      200           {object}  response.Response{data=[]model.Request}
// @Failure      400           {object}  response.Response
// @Router       /api/requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	q, p, ok := requestQuery(c)
	if !ok {
		return
	}
	requests, total, err := h.requests.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	paged(c, http.StatusOK, requests, p, total)
}

func requestQuery(c *gin.Context) (service.RequestQuery, pagination.Params, bool) {
	p := pagination.Parse(c)
	from, err := queryTime(c, "from")
	if err != nil {
		writeError(c, err)
		return service.RequestQuery{}, p, false
	}
	to, err := queryTime(c, "to")
	if err != nil {
		writeError(c, err)
		return service.RequestQuery{}, p, false
	}
	return service.RequestQuery{
		Status:      c.Query("status"),
		SiteID:      c.Query("site_id"),
		StoreID:     c.Query("store_id"),
		RequestedBy: c.Query("requested_by"),
		Search:      c.Query("search"),
		From:        from,
		To:          to,
		Page:        p.Page,
		Limit:       p.Limit,
	}, p, true
}

// Get returns a request with its items, approvals, issues and allowed transitions
// @Summary      Get request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestDetail}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.requests.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, detail))
}

func (h *RequestHandler) ListIssues(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	issues, err := h.requests.ListIssues(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, issues))
}

// Create drafts a new request in PENDING
// @Summary      Create request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRequestRequest  true  "Request"
// @Success      201      {object}  response.Response{data=model.Request}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req service.CreateRequestRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.requests.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, created))
}

// Update replaces the items of a PENDING request
// @Summary      Edit draft request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Request ID"
// @Param        payload  body      service.UpdateRequestRequest  true  "Draft"
// @Success      200      {object}  response.Response{data=model.Request}
// @Failure      403      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateRequestRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.requests.UpdateDraft(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, updated))
}

// Submit moves a draft to SUBMITTED
// @Summary      Submit request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.Request}
// @Failure      403  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/requests/{id}/submit [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	h.step(c, h.requests.Submit)
}

// StartReview
// @Summary      Start DSE review
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.Request}
// @Failure      422  {object}  response.Response
// @Router       /api/requests/{id}/start-review [post]
func (h *RequestHandler) StartReview(c *gin.Context) {
	h.step(c, h.requests.StartReview)
}

func (h *RequestHandler) OpenIssue(c *gin.Context) {
	h.step(c, h.requests.OpenIssue)
}

// Close
// @Summary      Close request
// @Description  Only RECEIVED requests can be closed.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.Request}
// @Failure      422  {object}  response.Response
// @Router       /api/requests/{id}/close [post]
func (h *RequestHandler) Close(c *gin.Context) {
	h.step(c, h.requests.Close)
}

// step runs a body-less workflow transition on the request in the path.
func (h *RequestHandler) step(c *gin.Context, fn func(ctx context.Context, actor, id uuid.UUID) (*model.Request, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	updated, err := fn(c.Request.Context(), currentUser(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, updated))
}

// Review records a DSE or PADIRI decision
// @Summary      Review request
// @Description  level is DSE or PADIRI; action is APPROVED, REJECTED, VERIFIED, MODIFIED or NEEDS_CHANGES. MODIFIED requires items with qty_approved overrides.
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Request ID"
// @Param        payload  body      service.ReviewRequest  true  "Decision"
// @Success      200      {object}  response.Response{data=model.Request}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/requests/{id}/reviews [post]
func (h *RequestHandler) Review(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.requests.Review(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, updated))
}

// Issue hands out several lines of one request under a single issue document
// @Summary      Issue request items
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                true  "Request ID"
// @Param        payload  body      service.IssueRequest  true  "Issue lines"
// @Success      201      {object}  response.Response{data=service.IssueResponse}
// @Failure      422      {object}  response.Response  "INVALID_TRANSITION, OVER_ISSUE or INSUFFICIENT_STOCK"
// @Router       /api/requests/{id}/issues [post]
func (h *RequestHandler) Issue(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.IssueRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.requests.IssueItems(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// IssueItem issues against a single request item
// @Summary      Issue against item
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Request item ID"
// @Param        payload  body      service.IssueItemRequest  true  "Quantity"
// @Success      201      {object}  response.Response{data=service.IssueResponse}
// @Failure      422      {object}  response.Response
// @Router       /api/request-items/{id}/issue [post]
func (h *RequestHandler) IssueItem(c *gin.Context) {
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.IssueItemRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.requests.IssueAgainstItem(c.Request.Context(), currentUser(c), itemID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// Receive confirms delivery at the site
// @Summary      Receive request
// @Description  Without items, everything issued and not yet received is confirmed.
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true   "Request ID"
// @Param        payload  body      service.ReceiveRequest  false  "Received lines"
// @Success      200      {object}  response.Response{data=model.Request}
// @Failure      422      {object}  response.Response
// @Router       /api/requests/{id}/receive [post]
func (h *RequestHandler) Receive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, bindError(err))
		return
	}
	updated, err := h.requests.Receive(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, updated))
}
