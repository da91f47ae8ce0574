package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/stockpoints/internal/server/http/dto"
)

// BalanceHandler manages balance-related endpoints.
type BalanceHandler struct {
	facade LedgerFacade
}

// NewBalanceHandler constructs BalanceHandler.
func NewBalanceHandler(facade LedgerFacade) *BalanceHandler {
	return &BalanceHandler{facade: facade}
}

// Balance handles GET /api/user/balance.
func (h *BalanceHandler) Balance(c *gin.Context) {
	points, err := h.facade.Balance(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BalanceResponse{Points: points})
}

// Transactions handles GET /api/user/transactions.
func (h *BalanceHandler) Transactions(c *gin.Context) {
	history, err := h.facade.Transactions(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	if len(history) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	resp := make([]dto.TransactionResponse, 0, len(history))
	for _, tx := range history {
		resp = append(resp, dto.TransactionResponse{
			ID:           tx.ID,
			Amount:       tx.Amount,
			Reason:       string(tx.Reason),
			Reference:    tx.Reference,
			BalanceAfter: tx.BalanceAfter,
			CreatedAt:    tx.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Adjust handles POST /api/admin/balance/adjust.
func (h *BalanceHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Code: "BAD_REQUEST", Message: "user_id and delta are required"})
		return
	}

	bal, err := h.facade.AdjustBalance(c.Request.Context(), req.UserID, req.Delta, req.Reference)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AdjustResponse{UserID: bal.UserID, Points: bal.Points, Version: bal.Version})
}
