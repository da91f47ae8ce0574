package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/server/http/dto"
	"github.com/polkiloo/stockpoints/internal/worker"
)

// BatchHandler manages batch endpoints.
type BatchHandler struct {
	facade BatchFacade
}

// NewBatchHandler constructs BatchHandler.
func NewBatchHandler(facade BatchFacade) *BatchHandler {
	return &BatchHandler{facade: facade}
}

// Submit handles POST /api/user/batches. With ?wait=false it returns 202
// right after the reservation.
func (h *BatchHandler) Submit(c *gin.Context) {
	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Code: "BAD_REQUEST", Message: "malformed batch payload"})
		return
	}
	items := make([]model.AssetRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.AssetRequest{Site: it.Site, AssetID: it.AssetID, SourceURL: it.SourceURL})
	}

	ctx := c.Request.Context()
	userID := CurrentUserID(c)
	if c.Query("wait") == "false" {
		result, err := h.facade.StartBatch(ctx, userID, items)
		if err != nil {
			h.fail(c, result, err)
			return
		}
		c.Header("Location", "/api/user/batches/"+result.BatchID)
		c.JSON(http.StatusAccepted, toBatchResponse(result))
		return
	}

	result, err := h.facade.SubmitBatch(ctx, userID, items)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, toBatchResponse(result))
	case result != nil && (errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, worker.ErrSchedulerStopped)):
		c.JSON(http.StatusAccepted, toBatchResponse(result))
	default:
		h.fail(c, result, err)
	}
}

func (h *BatchHandler) fail(c *gin.Context, result *model.BatchResult, err error) {
	if errors.Is(err, domainErrors.ErrNoValidItems) && result != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "NO_VALID_ITEMS",
			"message": err.Error(),
			"items":   toItemResponses(result.Items),
		})
		return
	}
	WriteError(c, err)
}

// Status handles GET /api/user/batches/:id.
func (h *BatchHandler) Status(c *gin.Context) {
	status, err := h.facade.BatchStatus(c.Request.Context(), CurrentUserID(c), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BatchStatusResponse{
		BatchID:   status.BatchID,
		State:     string(status.State),
		TotalCost: status.TotalCost,
		Items:     toItemResponses(status.Items),
	})
}
