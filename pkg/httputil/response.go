package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jwalitptl/care-scheduler/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      *Error      `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int         `json:"code"`
	Kind    errors.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// RespondWithSuccess sends a 200 response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// RespondWithError maps err to a status code and sends an error envelope.
// Unclassified errors never leak their message.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.Persistence("request", err)
	}

	status := appErr.StatusCode()
	message := appErr.Message
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    status,
			Kind:    appErr.Kind,
			Message: message,
		},
	})
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, limit, total int) {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
		Pagination: &Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pages,
		},
	})
}
