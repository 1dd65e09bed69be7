package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"github.com/bitfantasy/nimo-mes/internal/erp/service"
	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	svc *service.InventoryService
}

func NewInventoryHandler(svc *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

func (h *InventoryHandler) Create(c *gin.Context) {
	var req service.CreateRawItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.svc.CreateRawItem(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	created(c, item)
}

func (h *InventoryHandler) Get(c *gin.Context) {
	item, err := h.svc.GetRawItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, item)
}

func (h *InventoryHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	items, total, err := h.svc.ListRawItems(c.Request.Context(), repository.RawItemListParams{
		Keyword: c.Query("keyword"),
		Page:    page,
		Size:    size,
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	list(c, items, total, page, size)
}

// Receive 原料入库
func (h *InventoryHandler) Receive(c *gin.Context) {
	var req service.ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	txn, err := h.svc.ReceiveStock(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, txn)
}

func (h *InventoryHandler) Transactions(c *gin.Context) {
	page, size := pageParams(c)
	txs, total, err := h.svc.ListTransactions(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	list(c, txs, total, page, size)
}
