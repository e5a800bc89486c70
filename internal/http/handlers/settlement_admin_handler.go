package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ashar-khursheed/care-platform-backend/internal/http/handlers/common"
	"github.com/ashar-khursheed/care-platform-backend/internal/service"
	"github.com/ashar-khursheed/care-platform-backend/internal/worker"
)

// Sweeper — ручной запуск прохода авторелиза из админки.
type Sweeper interface {
	RunSweep(ctx context.Context) (worker.SweepResult, error)
}

// SettlementAdminHandler — административные операции над расчётами.
// Создание записи вызывается системой бронирований после завершения
// и оплаты бронирования.
type SettlementAdminHandler struct {
	svc     *service.SettlementService
	sweeper Sweeper
}

func NewSettlementAdminHandler(s *service.SettlementService, sweeper Sweeper) *SettlementAdminHandler {
	return &SettlementAdminHandler{svc: s, sweeper: sweeper}
}

// CreateRecord POST /api/admin/settlements
func (h *SettlementAdminHandler) CreateRecord(c *gin.Context) {
	var req struct {
		ProviderID  uuid.UUID `json:"provider_id" binding:"required"`
		BookingID   uuid.UUID `json:"booking_id" binding:"required"`
		GrossAmount string    `json:"gross_amount" binding:"required"`
		Currency    string    `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	gross, err := decimal.NewFromString(req.GrossAmount)
	if err != nil {
		common.RespondBadRequest(c, "некорректная сумма")
		return
	}

	rec, err := h.svc.CreateRecord(c.Request.Context(), req.ProviderID, req.BookingID, gross, req.Currency)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// ListRecords GET /api/admin/settlements?escrow_status=&withdrawal_status=
func (h *SettlementAdminHandler) ListRecords(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	records, err := h.svc.ListRecords(c.Request.Context(), c.Query("escrow_status"), c.Query("withdrawal_status"), limit, offset)
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "внутренняя ошибка сервера")
		return
	}
	c.JSON(http.StatusOK, records)
}

// Approve POST /api/admin/settlements/:id/approve
func (h *SettlementAdminHandler) Approve(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	recordID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rec, err := h.svc.ApproveWithdrawal(c.Request.Context(), recordID, adminID)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Reject POST /api/admin/settlements/:id/reject
func (h *SettlementAdminHandler) Reject(c *gin.Context) {
	recordID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rec, err := h.svc.RejectWithdrawal(c.Request.Context(), recordID, req.Reason)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Release POST /api/admin/settlements/:id/release
func (h *SettlementAdminHandler) Release(c *gin.Context) {
	recordID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rec, err := h.svc.ReleaseEscrow(c.Request.Context(), recordID)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// MarkPaid POST /api/admin/settlements/:id/mark-paid
func (h *SettlementAdminHandler) MarkPaid(c *gin.Context) {
	recordID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		TransactionReference string `json:"transaction_reference" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rec, err := h.svc.MarkPaid(c.Request.Context(), recordID, req.TransactionReference)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Dispute POST /api/admin/settlements/:id/dispute
func (h *SettlementAdminHandler) Dispute(c *gin.Context) {
	recordID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rec, err := h.svc.MarkDisputed(c.Request.Context(), recordID)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RunSweep POST /api/admin/settlements/sweep
func (h *SettlementAdminHandler) RunSweep(c *gin.Context) {
	result, err := h.sweeper.RunSweep(c.Request.Context())
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "ошибка выполнения авторелиза")
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncPaymentStatus POST /api/internal/payments/status-sync
// Вызывается платёжной системой при достижении терминального статуса платежа.
func (h *SettlementAdminHandler) SyncPaymentStatus(c *gin.Context) {
	var req struct {
		BookingID     uuid.UUID `json:"booking_id" binding:"required"`
		PaymentStatus string    `json:"payment_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.SyncPaymentStatus(c.Request.Context(), req.BookingID, req.PaymentStatus); err != nil {
		respondSettlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
