package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/artsync/internal/paging"
	"github.com/timmy/artsync/internal/repository"
	"github.com/timmy/artsync/internal/service"
)

// statusClientClosedRequest is the nginx convention for a request abandoned
// by the client.
const statusClientClosedRequest = 499

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// respondError maps service errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error()}

	var adapterErr *paging.AdapterError
	switch {
	case errors.Is(err, service.ErrUnknownSource), repository.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, paging.ErrInvalidConfiguration), errors.Is(err, service.ErrInvalidLimit):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNoMorePages), errors.Is(err, service.ErrNoPreviousPage),
		errors.Is(err, paging.ErrConcurrentFetch), errors.Is(err, service.ErrJobNotRunning):
		status = http.StatusConflict
	case paging.IsCancelled(err):
		status = statusClientClosedRequest
	case errors.As(err, &adapterErr):
		status = http.StatusBadGateway
		resp.Reason = adapterErr.Reason()
	}

	if status >= http.StatusInternalServerError {
		logFrom(c).WithError(err).Error("Request failed")
	}
	c.JSON(status, resp)
}
