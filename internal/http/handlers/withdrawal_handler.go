package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ashar-khursheed/care-platform-backend/internal/http/handlers/common"
	"github.com/ashar-khursheed/care-platform-backend/internal/pkg/apperror"
	"github.com/ashar-khursheed/care-platform-backend/internal/service"
)

// WithdrawalHandler — операции исполнителя над собственными расчётами.
type WithdrawalHandler struct {
	svc *service.SettlementService
}

func NewWithdrawalHandler(s *service.SettlementService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: s}
}

// RequestWithdrawal POST /api/settlements/:id/request-withdrawal
func (h *WithdrawalHandler) RequestWithdrawal(c *gin.Context) {
	providerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	recordID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		BankName           string `json:"bank_name" binding:"required"`
		AccountNumberLast4 string `json:"account_number_last4" binding:"required,len=4"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if !h.ownsRecord(c, providerID, recordID) {
		return
	}

	rec, err := h.svc.RequestWithdrawal(c.Request.Context(), recordID, req.BankName, req.AccountNumberLast4)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CancelWithdrawal POST /api/settlements/:id/cancel-withdrawal
func (h *WithdrawalHandler) CancelWithdrawal(c *gin.Context) {
	providerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	recordID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if !h.ownsRecord(c, providerID, recordID) {
		return
	}

	rec, err := h.svc.CancelWithdrawal(c.Request.Context(), recordID)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetRecord GET /api/settlements/:id
func (h *WithdrawalHandler) GetRecord(c *gin.Context) {
	providerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	recordID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rec, err := h.svc.GetRecord(c.Request.Context(), recordID)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	if rec.ProviderID != providerID {
		common.RespondError(c, http.StatusForbidden, "недостаточно прав")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListMyRecords GET /api/settlements/my
func (h *WithdrawalHandler) ListMyRecords(c *gin.Context) {
	providerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	records, err := h.svc.ListByProvider(c.Request.Context(), providerID, limit, offset)
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "внутренняя ошибка сервера")
		return
	}
	c.JSON(http.StatusOK, records)
}

// ownsRecord проверяет, что запись принадлежит исполнителю.
// При отказе ответ уже отправлен.
func (h *WithdrawalHandler) ownsRecord(c *gin.Context, providerID, recordID uuid.UUID) bool {
	rec, err := h.svc.GetRecord(c.Request.Context(), recordID)
	if err != nil {
		respondSettlementError(c, err)
		return false
	}
	if rec.ProviderID != providerID {
		common.RespondError(c, http.StatusForbidden, "недостаточно прав")
		return false
	}
	return true
}

// respondSettlementError переводит AppError в HTTP ответ.
func respondSettlementError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		common.RespondError(c, appErr.HTTPStatus, appErr.Message)
		return
	}
	common.RespondError(c, http.StatusInternalServerError, "внутренняя ошибка сервера")
}
