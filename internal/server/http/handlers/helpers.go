package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/server/http/dto"
	"github.com/polkiloo/stockpoints/internal/server/http/middleware"
	"github.com/polkiloo/stockpoints/internal/worker"
)

// CurrentUserID extracts authenticated user identifier from context.
func CurrentUserID(c *gin.Context) int64 {
	val, ok := c.Get(middleware.UserIDContextKey)
	if !ok {
		return 0
	}
	id, _ := val.(int64)
	return id
}

// WriteError maps domain errors to status codes and stable error codes.
func WriteError(c *gin.Context, err error) {
	var (
		insufficient *domainErrors.InsufficientBalanceError
		limited      *domainErrors.RateLimitedError
	)
	switch {
	case errors.As(err, &insufficient):
		required, available, shortfall := insufficient.Required, insufficient.Available, insufficient.Shortfall()
		c.AbortWithStatusJSON(http.StatusPaymentRequired, dto.ErrorResponse{
			Code:      "INSUFFICIENT_BALANCE",
			Message:   err.Error(),
			Required:  &required,
			Available: &available,
			Shortfall: &shortfall,
		})
	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		abort(c, http.StatusTooManyRequests, "RATE_LIMITED", err)
	case errors.Is(err, domainErrors.ErrUnauthenticated):
		abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", err)
	case errors.Is(err, domainErrors.ErrEmptyBatch):
		abort(c, http.StatusBadRequest, "EMPTY_BATCH", err)
	case errors.Is(err, domainErrors.ErrBatchTooLarge):
		abort(c, http.StatusBadRequest, "BATCH_TOO_LARGE", err)
	case errors.Is(err, domainErrors.ErrInvalidItem):
		abort(c, http.StatusBadRequest, "INVALID_ITEM", err)
	case errors.Is(err, domainErrors.ErrInvalidAmount):
		abort(c, http.StatusBadRequest, "INVALID_AMOUNT", err)
	case errors.Is(err, domainErrors.ErrNotFound):
		abort(c, http.StatusNotFound, "NOT_FOUND", err)
	case errors.Is(err, worker.ErrSchedulerStopped):
		abort(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err)
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL", Message: "internal error"})
	}
}

func abort(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Code: code, Message: err.Error()})
}

func toItemResponses(items []model.ItemResult) []dto.ItemResponse {
	resp := make([]dto.ItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, dto.ItemResponse{
			Position:    it.Position,
			Site:        it.Site,
			AssetID:     it.AssetID,
			Outcome:     string(it.Outcome),
			OrderID:     it.OrderID,
			Cost:        it.Cost,
			DownloadURL: it.DownloadURL,
			Reason:      string(it.Reason),
			Refunded:    it.Refunded,
		})
	}
	return resp
}

func toBatchResponse(r *model.BatchResult) dto.BatchResponse {
	return dto.BatchResponse{
		BatchID:    r.BatchID,
		State:      string(r.State),
		Items:      toItemResponses(r.Items),
		TotalCost:  r.TotalCost,
		Refunded:   r.Refunded,
		NewBalance: r.NewBalance,
	}
}
