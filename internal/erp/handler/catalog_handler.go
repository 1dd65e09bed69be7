package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/erp/repository"
	"github.com/bitfantasy/nimo-mes/internal/erp/service"
	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	svc *service.CatalogService
}

func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

func (h *CatalogHandler) Create(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.CreateProduct(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	created(c, p)
}

func (h *CatalogHandler) Get(c *gin.Context) {
	p, err := h.svc.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	success(c, p)
}

func (h *CatalogHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	products, total, err := h.svc.ListProducts(c.Request.Context(), repository.ProductListParams{
		Keyword: c.Query("keyword"),
		Page:    page,
		Size:    size,
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	list(c, products, total, page, size)
}
