package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/erp/service"
	"github.com/gin-gonic/gin"
)

type QuotationHandler struct {
	svc *service.QuotationService
}

func NewQuotationHandler(svc *service.QuotationService) *QuotationHandler {
	return &QuotationHandler{svc: svc}
}

func (h *QuotationHandler) Create(c *gin.Context) {
	var req service.CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	q, err := h.svc.Create(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	created(c, q)
}

func (h *QuotationHandler) Get(c *gin.Context) {
	q, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, q)
}

// Approve 审批并生成工单
func (h *QuotationHandler) Approve(c *gin.Context) {
	result, err := h.svc.Approve(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err, result)
		return
	}
	success(c, result)
}
