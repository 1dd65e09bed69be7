package handler

import (
	"errors"
	"io"

	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"github.com/bitfantasy/nimo-mes/internal/erp/service"
	"github.com/gin-gonic/gin"
)

type WorkOrderHandler struct {
	svc *service.ManufacturingService
}

func NewWorkOrderHandler(svc *service.ManufacturingService) *WorkOrderHandler {
	return &WorkOrderHandler{svc: svc}
}

// Generate 按审批通过的报价明细生成工单（无需已存储的报价单）
func (h *WorkOrderHandler) Generate(c *gin.Context) {
	var req service.QuotationApproval
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.svc.GenerateWorkOrders(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err, result)
		return
	}
	created(c, result)
}

func (h *WorkOrderHandler) Get(c *gin.Context) {
	wo, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, wo)
}

func (h *WorkOrderHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	params := repository.WOListParams{
		Status:      c.Query("status"),
		ProductID:   c.Query("product_id"),
		QuotationID: c.Query("quotation_id"),
		Keyword:     c.Query("keyword"),
		Page:        page,
		Size:        size,
	}
	wos, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	list(c, wos, total, page, size)
}

func (h *WorkOrderHandler) Children(c *gin.Context) {
	children, err := h.svc.ListSplitChildren(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, children)
}

func (h *WorkOrderHandler) Capacity(c *gin.Context) {
	result, err := h.svc.Capacity(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, result)
}

func (h *WorkOrderHandler) Allocate(c *gin.Context) {
	var req service.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.svc.Allocate(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, result)
}

func (h *WorkOrderHandler) AssignMachine(c *gin.Context) {
	var req service.AssignMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	op, err := h.svc.AssignMachine(c.Request.Context(), c.Param("id"), c.Param("opId"), req)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, op)
}

func (h *WorkOrderHandler) UnassignMachine(c *gin.Context) {
	op, err := h.svc.UnassignMachine(c.Request.Context(), c.Param("id"), c.Param("opId"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, op)
}

// CompletePlanning 发料并排产，中途失败时返回已发料行
func (h *WorkOrderHandler) CompletePlanning(c *gin.Context) {
	result, err := h.svc.CompletePlanning(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err, result)
		return
	}
	success(c, result)
}

func (h *WorkOrderHandler) Start(c *gin.Context) {
	wo, err := h.svc.StartProduction(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, wo)
}

func (h *WorkOrderHandler) Complete(c *gin.Context) {
	wo, err := h.svc.CompleteProduction(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, wo)
}

func (h *WorkOrderHandler) Cancel(c *gin.Context) {
	var req service.CancelRequest
	// 取消原因可选，允许空请求体
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	result, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err, result)
		return
	}
	success(c, result)
}
