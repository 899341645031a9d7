package response

import (
	"requisition-backend/pkg/apperror"
	"requisition-backend/pkg/pagination"
)

// Response represents a standard API response format
type Response struct {
	Status     string         `json:"status"`      // "success" or "error"
	StatusCode int            `json:"status_code"` // HTTP status code
	Data       interface{}    `json:"data,omitempty"`
	Meta       *Meta          `json:"meta,omitempty"`
	Error      string         `json:"error,omitempty"`
	Code       string         `json:"code,omitempty"`    // machine-readable error kind
	Details    map[string]any `json:"details,omitempty"` // structured error context
}

// Meta carries paging information for list responses.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// SuccessWithPagination wraps one page of a list together with its paging metadata.
func SuccessWithPagination(statusCode int, data interface{}, p pagination.Params, total int64) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
		Meta:       &Meta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: p.Pages(total)},
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// FromError renders any error through the apperror taxonomy. Internal details never leak.
func FromError(err error) Response {
	e := apperror.From(err)
	resp := Error(e.HTTPStatus(), e.PublicMessage())
	resp.Code = e.Code()
	if e.Kind != apperror.KindInternal && len(e.Fields) > 0 {
		resp.Details = e.Fields
	}
	return resp
}
