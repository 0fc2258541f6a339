package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"settlement-service/internal/services"
	"settlement-service/pkg/common"

	"github.com/gin-gonic/gin"
)

type WithdrawalHandler struct {
	Settlement *services.SettlementService
}

func NewWithdrawalHandler(settlement *services.SettlementService) *WithdrawalHandler {
	return &WithdrawalHandler{Settlement: settlement}
}

type CreateWithdrawalRequest struct {
	UserId      int     `json:"user_id" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	Method      string  `json:"method" binding:"required"`
	Destination string  `json:"destination" binding:"required"`
}

func (h *WithdrawalHandler) CreateWithdrawal(c *gin.Context) {
	var req CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	result, err := h.Settlement.CreateWithdrawal(services.CreateWithdrawalDTO{
		UserId:      req.UserId,
		Amount:      req.Amount,
		Method:      req.Method,
		Destination: req.Destination,
	})
	if err != nil {
		status := statusForError(err)
		c.JSON(status, common.NewErrorResponse(err.Error(), nil, status))
		return
	}

	c.JSON(http.StatusCreated, common.NewSuccessResponse(result, "Withdrawal requested"))
}

type CancelWithdrawalRequest struct {
	UserId int `json:"user_id" binding:"required"`
}

func (h *WithdrawalHandler) CancelWithdrawal(c *gin.Context) {
	withdrawalId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid withdrawal id", nil, http.StatusBadRequest))
		return
	}

	var req CancelWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	withdrawal, err := h.Settlement.CancelWithdrawal(withdrawalId, req.UserId)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, common.NewErrorResponse(err.Error(), nil, status))
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(withdrawal, "Withdrawal cancelled"))
}

func (h *WithdrawalHandler) GetWithdrawalDetails(c *gin.Context) {
	withdrawalId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid withdrawal id", nil, http.StatusBadRequest))
		return
	}
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid user_id", nil, http.StatusBadRequest))
		return
	}

	withdrawal, err := h.Settlement.GetWithdrawalDetails(withdrawalId, userId)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, common.NewErrorResponse(err.Error(), nil, status))
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(withdrawal, "Successful"))
}

func (h *WithdrawalHandler) GetWithdrawalHistory(c *gin.Context) {
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid user_id", nil, http.StatusBadRequest))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, total, err := h.Settlement.GetWithdrawalHistory(services.HistoryDTO{
		UserId: userId,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, common.PaginateResponse(list, total, page, limit, "Withdrawals fetched successfully"))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrWalletNotFound), errors.Is(err, services.ErrWithdrawalNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInsufficientBalance), errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
